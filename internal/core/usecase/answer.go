package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

// AnswerConfig tunes the per-mode retrieval depth and the search deadline.
type AnswerConfig struct {
	DefaultTopK    int
	CostTopK       int
	DocumentTopK   int
	SearchTopK     int
	SearchDeadline time.Duration
}

func (c AnswerConfig) normalized() AnswerConfig {
	out := c
	if out.DefaultTopK < 1 {
		out.DefaultTopK = 5
	}
	if out.CostTopK < 1 {
		out.CostTopK = 3
	}
	if out.DocumentTopK < 1 {
		out.DocumentTopK = 6
	}
	if out.SearchTopK < 1 {
		out.SearchTopK = 10
	}
	if out.SearchDeadline <= 0 {
		out.SearchDeadline = 5 * time.Second
	}
	return out
}

// AnswerUseCase orchestrates one question: cache probe, pre-classification,
// hybrid retrieval, confidence-checked final classification, mode-specific
// answer assembly and cache fill.
type AnswerUseCase struct {
	retriever *HybridRetriever
	router    *QueryRouter
	generator ports.AnswerGenerator
	cache     ports.ResponseCache
	cfg       AnswerConfig
}

func NewAnswerUseCase(
	retriever *HybridRetriever,
	router *QueryRouter,
	generator ports.AnswerGenerator,
	cache ports.ResponseCache,
	cfg AnswerConfig,
) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		router:    router,
		generator: generator,
		cache:     cache,
		cfg:       cfg.normalized(),
	}
}

func (uc *AnswerUseCase) AnswerQuery(ctx context.Context, query string, topK int) (*domain.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", errors.New("empty query"))
	}

	fingerprint := Fingerprint(query)
	if cached, ok := uc.cache.Get(fingerprint); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	preMode := uc.router.Classify(query)
	if topK < 1 {
		topK = uc.topKFor(preMode)
	}

	retrieval, err := uc.retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	mode, confidence := uc.router.ClassifyWithRetrieval(query, preMode, retrieval.Hits, retrieval.Stats)

	slog.Info("query_routed",
		"fingerprint", fingerprint,
		"pre_mode", string(preMode),
		"mode", string(mode),
		"confidence", string(confidence),
		"hits", len(retrieval.Hits),
		"top1", retrieval.Stats.Top1,
		"delta12", retrieval.Stats.Delta12,
		"degraded", retrieval.Degraded,
	)

	answer, err := uc.assemble(ctx, query, mode, confidence, retrieval)
	if err != nil {
		return nil, err
	}

	uc.cache.Put(fingerprint, answer)

	out := *answer
	return &out, nil
}

// retrieve runs the hybrid search under the configured deadline. A missing
// active index degrades to an empty result instead of failing the request:
// the router then settles on ungrounded QA.
func (uc *AnswerUseCase) retrieve(ctx context.Context, query string, topK int) (domain.RetrievalResult, error) {
	searchCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, uc.cfg.SearchDeadline)
		defer cancel()
	}

	retrieval, err := uc.retriever.Search(searchCtx, query, topK)
	if err != nil {
		if domain.IsKind(err, domain.ErrNoActiveIndex) {
			slog.Warn("retrieval_skipped_no_index", "query_len", len(query))
			return domain.RetrievalResult{Degraded: true}, nil
		}
		return domain.RetrievalResult{}, fmt.Errorf("hybrid search: %w", err)
	}
	return retrieval, nil
}

func (uc *AnswerUseCase) assemble(
	ctx context.Context,
	query string,
	mode domain.QueryMode,
	confidence domain.Confidence,
	retrieval domain.RetrievalResult,
) (*domain.Answer, error) {
	answer := &domain.Answer{
		Mode:       mode,
		Confidence: confidence,
		Hits:       retrieval.Hits,
		Degraded:   retrieval.Degraded,
	}

	if confidence == domain.ConfidenceLow && mode != domain.ModeQA {
		switch uc.router.Fallback() {
		case FallbackDecline:
			answer.Text = domain.NoGroundedAnswer
		default:
			answer.Text = listingAnswer(retrieval.Hits)
		}
		return answer, nil
	}

	assembler := assemblerFor(mode)
	prompt, contextBlock := assembler.BuildPrompt(query, retrieval.Hits)

	text, err := uc.generator.Generate(ctx, prompt, contextBlock)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer.Text = text
	return answer, nil
}

func (uc *AnswerUseCase) topKFor(mode domain.QueryMode) int {
	switch mode {
	case domain.ModeCost:
		return uc.cfg.CostTopK
	case domain.ModeDocument:
		return uc.cfg.DocumentTopK
	case domain.ModeSearch:
		return uc.cfg.SearchTopK
	default:
		return uc.cfg.DefaultTopK
	}
}
