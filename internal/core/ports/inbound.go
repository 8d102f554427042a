package ports

import (
	"context"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// QueryAnswerer is the inbound contract for question answering.
type QueryAnswerer interface {
	AnswerQuery(ctx context.Context, query string, topK int) (*domain.Answer, error)
}

// IndexAdmin is the inbound contract for index administration.
type IndexAdmin interface {
	Rebuild(ctx context.Context, versionID string) (domain.IndexVersion, error)
	Status(ctx context.Context) (domain.IndexStatus, error)
}
