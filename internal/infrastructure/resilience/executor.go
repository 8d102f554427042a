// Package resilience wraps calls to downstream dependencies (the model
// server, the message broker) with retries and per-operation circuit
// breakers, classified through the domain error taxonomy.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// ErrorClassification decides what the executor does with a failure:
// whether another attempt is worthwhile, and whether the failure counts
// against the operation's circuit breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs operations under one Policy, with a lazily created breaker
// per operation name ("ollama.generate", "nats.publish", ...). Safe for
// concurrent use.
type Executor struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.normalized(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = ClassifyDomainError
	}

	if !e.policy.BreakerEnabled {
		return e.runWithRetry(ctx, op, fn, classifier)
	}

	breaker := e.circuitBreaker(op, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.runWithRetry(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) runWithRetry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	backoff := e.policy.RetryInitialBackoff

	var err error
	for attempt := 1; attempt <= e.policy.RetryMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if class := classifier(err); !class.Retryable {
			return err
		}
		if attempt == e.policy.RetryMaxAttempts {
			return err
		}

		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.policy.RetryMaxAttempts,
			"backoff_ms", float64(backoff.Microseconds())/1000.0,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * e.policy.RetryMultiplier)
		if backoff > e.policy.RetryMaxBackoff {
			backoff = e.policy.RetryMaxBackoff
		}
	}
	return err
}

func (e *Executor) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.policy.BreakerHalfOpenMaxCalls,
		Timeout:     e.policy.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.policy.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.policy.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ClassifyDomainError is the fallback classifier. Temporary kinds are
// dependency failures worth retrying; invalid input, missing documents,
// drift refusals and a missing active index are domain outcomes, not
// dependency health, and must neither retry nor trip a breaker.
func ClassifyDomainError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}
	case domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrIndexDrift),
		domain.IsKind(err, domain.ErrNoActiveIndex):
		return ErrorClassification{}
	default:
		return ErrorClassification{RecordFailure: true}
	}
}
