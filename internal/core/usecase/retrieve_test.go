package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

func testRetriever(handle *fakeHandle) *HybridRetriever {
	return NewHybridRetriever(&fakeProvider{handle: handle}, RetrieverConfig{
		ExpansionFactor: 2,
		SnippetMaxChars: 100,
		Weights:         DefaultFusionWeights(),
	})
}

func TestSearchReturnsAtMostTopKSorted(t *testing.T) {
	handle := &fakeHandle{
		lexical: []domain.SearchHit{
			{DocumentID: "doc-1", Page: 1, Score: 0.9, Snippet: "nvr storage capacity is 2TB"},
			{DocumentID: "doc-2", Page: 1, Score: 0.7, Snippet: "storage bay manual"},
			{DocumentID: "doc-3", Page: 2, Score: 0.5, Snippet: "installation guide"},
		},
		semantic: []domain.SearchHit{
			{DocumentID: "doc-1", Page: 1, Score: 0.8, Snippet: "nvr storage capacity is 2TB"},
			{DocumentID: "doc-4", Page: 1, Score: 0.3, Snippet: "warranty terms"},
		},
	}
	retriever := testRetriever(handle)

	result, err := retriever.Search(context.Background(), "nvr storage capacity", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Hits) > 2 {
		t.Fatalf("expected at most 2 hits, got %d", len(result.Hits))
	}
	for i := 1; i < len(result.Hits); i++ {
		if result.Hits[i].Score > result.Hits[i-1].Score {
			t.Fatalf("hits not sorted by non-increasing score")
		}
	}
	if result.Stats.Top1 != result.Hits[0].Score {
		t.Fatalf("stats.top1 %f != hits[0].score %f", result.Stats.Top1, result.Hits[0].Score)
	}
	if handle.released != 1 {
		t.Fatalf("expected index handle released exactly once, got %d", handle.released)
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	retriever := testRetriever(&fakeHandle{})

	if _, err := retriever.Search(context.Background(), "   ", 5); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank query, got %v", err)
	}
	if _, err := retriever.Search(context.Background(), "query", 0); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for top_k=0, got %v", err)
	}
}

func TestSearchEmptyIndexesIsValidOutcome(t *testing.T) {
	retriever := testRetriever(&fakeHandle{})

	result, err := retriever.Search(context.Background(), "nothing matches", 5)
	if err != nil {
		t.Fatalf("empty result must not be an error, got %v", err)
	}
	if len(result.Hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(result.Hits))
	}
	if result.Stats != (domain.ScoreStats{}) {
		t.Fatalf("expected all-zero stats, got %+v", result.Stats)
	}
	if result.Degraded {
		t.Fatalf("empty-but-healthy search must not be degraded")
	}
}

func TestSearchDegradesWhenOneSubIndexFails(t *testing.T) {
	handle := &fakeHandle{
		lexical:     []domain.SearchHit{{DocumentID: "doc-1", Page: 1, Score: 0.9, Snippet: "rack layout"}},
		semanticErr: errors.New("vector index offline"),
	}
	retriever := testRetriever(handle)

	result, err := retriever.Search(context.Background(), "rack layout", 3)
	if err != nil {
		t.Fatalf("one failed sub-index must degrade, not fail: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded result")
	}
	if len(result.Hits) == 0 {
		t.Fatalf("expected hits from the healthy sub-index")
	}
}

func TestSearchFailsWhenBothSubIndexesFail(t *testing.T) {
	handle := &fakeHandle{
		lexicalErr:  errors.New("lexical offline"),
		semanticErr: errors.New("semantic offline"),
	}
	retriever := testRetriever(handle)

	_, err := retriever.Search(context.Background(), "query", 3)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary failure when both sub-indexes fail, got %v", err)
	}
}

func TestSearchDeadlineReturnsPartialResults(t *testing.T) {
	handle := &fakeHandle{
		lexical:        []domain.SearchHit{{DocumentID: "doc-1", Page: 1, Score: 0.9, Snippet: "fast lexical hit"}},
		semanticBlocks: true,
	}
	retriever := testRetriever(handle)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := retriever.Search(ctx, "fast lexical", 3)
	if err != nil {
		t.Fatalf("deadline must yield partial results, not an error: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded result after deadline")
	}
	if len(result.Hits) != 1 {
		t.Fatalf("expected the completed lexical hit, got %d hits", len(result.Hits))
	}
	if result.Stats.Top1 != result.Hits[0].Score {
		t.Fatalf("stats must be computed over completed data only")
	}
}

func TestSnippetCentersOnMatchWhenLoweringChangesByteLength(t *testing.T) {
	// 'İ' (U+0130) is two bytes but lowercases to the one-byte 'i', so byte
	// offsets into the lowered text diverge from the original. The rune
	// offset still lines up because lowering maps runes one to one.
	text := strings.Repeat("İ", 300) + " nvr price 1200000 " + strings.Repeat("a", 300)

	got := makeSnippet(text, "price", 100)
	if !strings.Contains(got, "price 1200000") {
		t.Fatalf("snippet window drifted off the match: %q", got)
	}
}

func TestSearchReleasesPinOnlyAfterSubSearchesFinish(t *testing.T) {
	gate := make(chan struct{})
	handle := &fakeHandle{
		lexical:      []domain.SearchHit{{DocumentID: "doc-1", Page: 1, Score: 0.9, Snippet: "switch port count"}},
		semanticGate: gate,
	}
	retriever := testRetriever(handle)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := retriever.Search(ctx, "switch port count", 3)
	if err != nil {
		t.Fatalf("deadline must yield partial results, not an error: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded result after deadline")
	}
	// The semantic scan is still running; releasing now would let a swap
	// free the version under it.
	if got := handle.releaseCount(); got != 0 {
		t.Fatalf("version pin dropped while a sub-search was still running (released %d)", got)
	}

	close(gate)

	deadline := time.Now().Add(time.Second)
	for handle.releaseCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("version pin never dropped after sub-searches finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := handle.releaseCount(); got != 1 {
		t.Fatalf("expected exactly one release, got %d", got)
	}
}

func TestSearchSnippetBounded(t *testing.T) {
	long := make([]rune, 0, 1200)
	for i := 0; i < 1200; i++ {
		long = append(long, 'a')
	}
	handle := &fakeHandle{
		lexical: []domain.SearchHit{{DocumentID: "doc-1", Page: 1, Score: 0.9, Snippet: string(long)}},
	}
	retriever := testRetriever(handle)

	result, err := retriever.Search(context.Background(), "aaa", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len([]rune(result.Hits[0].Snippet)); got > 100 {
		t.Fatalf("snippet exceeds configured bound: %d runes", got)
	}
}
