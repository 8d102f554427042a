package httpadapter

import (
	"net/http"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrIndexDrift):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrNoActiveIndex):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessageFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusNotFound:
		return "document not found"
	case http.StatusConflict:
		return "index is out of sync with the document store"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
