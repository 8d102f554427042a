package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/resilience"
)

// reconnectableErrors are the client-side conditions a short retry rides
// out while the connection to the broker re-establishes.
var reconnectableErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
}

// classifyNATSError maps a publish failure onto the executor's
// retry/breaker decision. Reindex requests are idempotent (the version id
// travels in the payload), so retrying a publish is always safe.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	for _, target := range reconnectableErrors {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// wrapTemporaryIfNeeded tags broker outages with the temporary kind so the
// reindex endpoint serves 503 rather than a hard failure.
func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
