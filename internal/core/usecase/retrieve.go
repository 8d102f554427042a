package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

// RetrieverConfig carries the tunables of the hybrid search.
type RetrieverConfig struct {
	// ExpansionFactor multiplies top_k for each sub-search so fusion has
	// enough material to work with. Floor of 2.
	ExpansionFactor int
	// SnippetMaxChars bounds every hit excerpt, in runes. Truncating too
	// aggressively silently destroys answer quality, so this is a single
	// configuration constant rather than a per-call choice.
	SnippetMaxChars int
	Weights         FusionWeights
}

func (c RetrieverConfig) normalized() RetrieverConfig {
	out := c
	if out.ExpansionFactor < 2 {
		out.ExpansionFactor = 2
	}
	if out.SnippetMaxChars <= 0 {
		out.SnippetMaxChars = 400
	}
	return out
}

// HybridRetriever runs the lexical and semantic sub-searches concurrently
// against one pinned index version, joins them before fusion, and produces
// normalized hits with bounded snippets. Read-only; safe for concurrent use.
type HybridRetriever struct {
	index ports.IndexProvider
	cfg   RetrieverConfig
}

func NewHybridRetriever(index ports.IndexProvider, cfg RetrieverConfig) *HybridRetriever {
	return &HybridRetriever{
		index: index,
		cfg:   cfg.normalized(),
	}
}

type subSearchResult struct {
	lexical bool
	hits    []domain.SearchHit
	err     error
}

// Search honors the caller-supplied deadline: on timeout it fuses whatever
// sub-search results completed and never returns an error for partial data.
// Only both sub-searches failing outright escalates as a hard failure.
func (r *HybridRetriever) Search(ctx context.Context, query string, topK int) (domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("empty query"))
	}
	if topK < 1 {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("top_k must be >= 1"))
	}

	handle, err := r.index.Acquire()
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	candidates := topK * r.cfg.ExpansionFactor
	results := make(chan subSearchResult, 2)

	var running sync.WaitGroup
	running.Add(2)
	go func() {
		defer running.Done()
		hits, err := handle.SearchLexical(ctx, query, candidates)
		results <- subSearchResult{lexical: true, hits: hits, err: err}
	}()
	go func() {
		defer running.Done()
		hits, err := handle.SearchSemantic(ctx, query, candidates)
		results <- subSearchResult{lexical: false, hits: hits, err: err}
	}()

	var lexical, semantic []domain.SearchHit
	completed := 0
	failed := 0
	degraded := false
	abandoned := false

collect:
	for completed+failed < 2 {
		select {
		case res := <-results:
			if res.err != nil {
				failed++
				degraded = true
				slog.Warn("retrieval_degraded",
					"lexical", res.lexical,
					"query_len", len(query),
					"error", res.err,
				)
				continue
			}
			completed++
			if res.lexical {
				lexical = res.hits
			} else {
				semantic = res.hits
			}
		case <-ctx.Done():
			// Deadline: fuse whatever arrived, never fail the request.
			degraded = true
			abandoned = true
			break collect
		}
	}

	// An abandoned sub-search may still be scanning the pinned version, so
	// the pin is dropped only after both goroutines return. On the deadline
	// path that wait leaves the request path; otherwise both scans have
	// already finished and the release is immediate.
	if abandoned {
		go func() {
			running.Wait()
			handle.Release()
		}()
	} else {
		handle.Release()
	}

	if completed == 0 && failed == 2 {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrTemporary, "search", errors.New("both sub-indexes failed"))
	}

	fused := fuseHits(query, lexical, semantic, r.cfg.Weights)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	for i := range fused {
		fused[i].Snippet = makeSnippet(fused[i].Snippet, query, r.cfg.SnippetMaxChars)
	}

	return domain.RetrievalResult{
		Hits:     fused,
		Stats:    domain.ComputeScoreStats(fused),
		Degraded: degraded,
	}, nil
}

// makeSnippet cuts a bounded excerpt from the chunk text, centered on the
// first query-token occurrence when one exists.
func makeSnippet(text, query string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	start := 0
	lower := strings.ToLower(text)
	for _, token := range tokenizeLower(query) {
		if idx := strings.Index(lower, token); idx >= 0 {
			start = len([]rune(lower[:idx]))
			break
		}
	}

	// Center the window on the match, clamped to the text bounds.
	start -= maxRunes / 4
	if start < 0 {
		start = 0
	}
	if start+maxRunes > len(runes) {
		start = len(runes) - maxRunes
	}
	return strings.TrimSpace(string(runes[start : start+maxRunes]))
}
