package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

type fakeHandle struct {
	info     domain.IndexVersion
	lexical  []domain.SearchHit
	semantic []domain.SearchHit

	lexicalErr  error
	semanticErr error
	// semanticBlocks makes the semantic branch hang until the context is
	// done, to exercise deadline degradation.
	semanticBlocks bool
	// semanticGate makes the semantic branch hang until the channel closes,
	// ignoring the context, so tests can keep a scan running past the
	// caller's deadline.
	semanticGate chan struct{}

	released int
	mu       sync.Mutex
}

func (h *fakeHandle) Info() domain.IndexVersion { return h.info }

func (h *fakeHandle) SearchLexical(_ context.Context, _ string, limit int) ([]domain.SearchHit, error) {
	if h.lexicalErr != nil {
		return nil, h.lexicalErr
	}
	return capHits(h.lexical, limit), nil
}

func (h *fakeHandle) SearchSemantic(ctx context.Context, _ string, limit int) ([]domain.SearchHit, error) {
	if h.semanticGate != nil {
		<-h.semanticGate
		return capHits(h.semantic, limit), nil
	}
	if h.semanticBlocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if h.semanticErr != nil {
		return nil, h.semanticErr
	}
	return capHits(h.semantic, limit), nil
}

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.released++
	h.mu.Unlock()
}

func (h *fakeHandle) releaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func capHits(hits []domain.SearchHit, limit int) []domain.SearchHit {
	if limit < len(hits) {
		return hits[:limit]
	}
	return hits
}

type fakeProvider struct {
	handle *fakeHandle
	err    error
}

func (p *fakeProvider) Acquire() (ports.IndexHandle, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.handle, nil
}

type fakeGenerator struct {
	answer  string
	err     error
	calls   int
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt, _ string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if g.answer == "" {
		return "generated answer", nil
	}
	return g.answer, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.Answer
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.Answer)}
}

func (c *fakeCache) Get(fingerprint string) (*domain.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	answer, ok := c.entries[fingerprint]
	return answer, ok
}

func (c *fakeCache) Put(fingerprint string, answer *domain.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = answer
}

type fakeSource struct {
	docs  []domain.StoredDocument
	count int
	// liveCounts lets tests vary the count per call to simulate drift
	// between rebuild and swap.
	liveCounts []int
	countCalls int
}

func (s *fakeSource) CountDocuments(context.Context) (int, error) {
	if len(s.liveCounts) > 0 {
		idx := s.countCalls
		if idx >= len(s.liveCounts) {
			idx = len(s.liveCounts) - 1
		}
		s.countCalls++
		return s.liveCounts[idx], nil
	}
	if s.count > 0 {
		return s.count, nil
	}
	return len(s.docs), nil
}

func (s *fakeSource) IterateDocuments(ctx context.Context, fn func(context.Context, domain.StoredDocument) error) error {
	for _, doc := range s.docs {
		if err := fn(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) GetByID(_ context.Context, id string) (*domain.StoredDocument, error) {
	for i := range s.docs {
		if s.docs[i].ID == id {
			return &s.docs[i], nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

type fakeBuilder struct {
	versionID string
	docs      int
	chunks    int
	artifacts map[string][]byte
	committed bool
	discarded bool
}

func (b *fakeBuilder) PutArtifact(name string, data []byte) error {
	if b.artifacts == nil {
		b.artifacts = make(map[string][]byte)
	}
	b.artifacts[name] = data
	return nil
}

func (b *fakeBuilder) AddDocument(_ context.Context, _ domain.StoredDocument, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks/vectors mismatch")
	}
	b.docs++
	b.chunks += len(chunks)
	return nil
}

func (b *fakeBuilder) Commit(_ context.Context, docCount int) (domain.IndexVersion, error) {
	b.committed = true
	return domain.IndexVersion{
		VersionID: b.versionID,
		BuiltAt:   time.Now().UTC(),
		DocCount:  docCount,
	}, nil
}

func (b *fakeBuilder) Discard() { b.discarded = true }

type fakeCatalog struct {
	mu       sync.Mutex
	active   domain.IndexVersion
	hasActv  bool
	builders []*fakeBuilder
	swapped  []string
	swapErr  error
}

func (c *fakeCatalog) Acquire() (ports.IndexHandle, error) {
	return nil, domain.ErrNoActiveIndex
}

func (c *fakeCatalog) NewBuilder(_ context.Context, versionID string) (ports.IndexBuilder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	builder := &fakeBuilder{versionID: versionID}
	c.builders = append(c.builders, builder)
	return builder, nil
}

func (c *fakeCatalog) Swap(_ context.Context, versionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.swapErr != nil {
		return c.swapErr
	}
	c.swapped = append(c.swapped, versionID)
	for _, b := range c.builders {
		if b.versionID == versionID {
			c.active = domain.IndexVersion{VersionID: versionID, DocCount: b.docs}
			c.hasActv = true
		}
	}
	return nil
}

func (c *fakeCatalog) ActiveInfo() (domain.IndexVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.hasActv
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

type fakeChunker struct{}

func (fakeChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []string{text}
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, doc *domain.StoredDocument) ([]string, error) {
	return []string{"extracted text for " + doc.ID}, nil
}
