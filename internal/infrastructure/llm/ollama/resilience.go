package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/resilience"
)

// HTTPStatusError carries a non-2xx answer from the model server so the
// classifier can tell an overloaded server from a bad request.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

// Temporary reports whether the status is server-side pressure a retry can
// ride out. Anything else from the model server is a caller problem and
// retrying would just repeat it.
func (e *HTTPStatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// classifyOllamaError maps a model-server failure onto the executor's
// retry/breaker decision. Caller cancellation is neither; an open circuit
// stays retryable so a later attempt can probe the half-open breaker.
func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error

	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &statusErr):
		if statusErr.Temporary() {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// wrapTemporaryIfNeeded tags retry-worthy failures with the temporary kind
// so the HTTP edge serves 503 instead of 500 and callers know waiting
// helps.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
