package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

// embedderArtifact is the per-version file holding a corpus-fitted embedder
// snapshot, when the configured embedder needs one.
const embedderArtifact = "embedder.json"

// ReindexConfig tunes the rebuild pipeline and the swap consistency gate.
type ReindexConfig struct {
	// Workers bounds the parallel per-document extraction/chunking stage.
	Workers int
	// EmbedBatch caps how many chunk texts go into one embedding call.
	EmbedBatch int
	// DriftRatio and DriftFloor define the swap tolerance
	// max(count*ratio, floor). Small drift is benign near-simultaneous
	// ingestion; large drift means a broken build.
	DriftRatio float64
	DriftFloor int
	// TextCacheSize bounds the extracted-text reuse cache across rebuilds.
	TextCacheSize int
}

func (c ReindexConfig) normalized() ReindexConfig {
	out := c
	if out.Workers < 1 {
		out.Workers = 4
	}
	if out.EmbedBatch < 1 {
		out.EmbedBatch = 32
	}
	if out.DriftRatio <= 0 {
		out.DriftRatio = 0.05
	}
	if out.DriftFloor <= 0 {
		out.DriftFloor = 10
	}
	if out.TextCacheSize < 1 {
		out.TextCacheSize = 256
	}
	return out
}

// ReindexUseCase rebuilds both indexes from the document store into a fresh
// staging version and promotes it through the catalog's atomic swap. The
// active version is never touched until the swap succeeds; any failure
// leaves it as it was.
type ReindexUseCase struct {
	source    ports.DocumentSource
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	catalog   ports.IndexCatalog
	cfg       ReindexConfig

	textMu    sync.Mutex
	textCache map[string]cachedText
}

type cachedText struct {
	updatedAt time.Time
	pages     []string
}

func NewReindexUseCase(
	source ports.DocumentSource,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	catalog ports.IndexCatalog,
	cfg ReindexConfig,
) *ReindexUseCase {
	return &ReindexUseCase{
		source:    source,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		catalog:   catalog,
		cfg:       cfg.normalized(),
		textCache: make(map[string]cachedText),
	}
}

type documentChunks struct {
	doc    domain.StoredDocument
	chunks []domain.Chunk
}

// Rebuild reads every document, re-derives chunks and embeddings into a
// staged version, verifies the staged document count against the live store
// count, and atomically swaps the new version in. A drift refusal or any
// build error reports back without touching the active version.
func (uc *ReindexUseCase) Rebuild(ctx context.Context, versionID string) (domain.IndexVersion, error) {
	started := time.Now()

	docs, err := uc.extractAll(ctx)
	if err != nil {
		return domain.IndexVersion{}, fmt.Errorf("extract documents: %w", err)
	}

	builder, err := uc.catalog.NewBuilder(ctx, versionID)
	if err != nil {
		return domain.IndexVersion{}, fmt.Errorf("open staging builder: %w", err)
	}

	version, err := uc.populate(ctx, builder, docs)
	if err != nil {
		builder.Discard()
		return domain.IndexVersion{}, err
	}

	if err := uc.promote(ctx, version); err != nil {
		return domain.IndexVersion{}, err
	}

	slog.Info("index_rebuilt",
		"version_id", version.VersionID,
		"doc_count", version.DocCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return version, nil
}

// Status compares the active version against the live store count and flags
// drift using the same tolerance the swap gate applies.
func (uc *ReindexUseCase) Status(ctx context.Context) (domain.IndexStatus, error) {
	live, err := uc.source.CountDocuments(ctx)
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("count documents: %w", err)
	}

	info, ok := uc.catalog.ActiveInfo()
	if !ok {
		return domain.IndexStatus{StoreCount: live, Drift: live > 0}, nil
	}

	return domain.IndexStatus{
		ActiveVersion: info.VersionID,
		DocCount:      info.DocCount,
		StoreCount:    live,
		LastBuildAt:   info.BuiltAt,
		Drift:         driftExceeded(info.DocCount, live, uc.cfg.DriftRatio, uc.cfg.DriftFloor),
	}, nil
}

// extractAll runs the extraction/chunking stage with a bounded worker pool.
// Document order in the output is not significant; the builder sorts by its
// own keys.
func (uc *ReindexUseCase) extractAll(ctx context.Context) ([]documentChunks, error) {
	jobs := make(chan domain.StoredDocument)
	results := make(chan documentChunks)
	errs := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < uc.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				chunks, err := uc.chunkDocument(ctx, doc)
				if err != nil {
					// A single unreadable document must not sink the whole
					// rebuild; it is logged and skipped.
					slog.Warn("document_skipped", "doc_id", doc.ID, "filename", doc.Filename, "error", err)
					continue
				}
				select {
				case results <- documentChunks{doc: doc, chunks: chunks}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		err := uc.source.IterateDocuments(ctx, func(ctx context.Context, doc domain.StoredDocument) error {
			select {
			case jobs <- doc:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []documentChunks
	for dc := range results {
		out = append(out, dc)
	}

	select {
	case err := <-errs:
		return nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *ReindexUseCase) chunkDocument(ctx context.Context, doc domain.StoredDocument) ([]domain.Chunk, error) {
	pages, err := uc.pagesFor(ctx, doc)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for pageIdx, page := range pages {
		for chunkIdx, text := range uc.chunker.Split(page) {
			chunks = append(chunks, domain.Chunk{
				DocumentID: doc.ID,
				Page:       pageIdx + 1,
				ChunkIndex: chunkIdx,
				Text:       text,
			})
		}
	}
	return chunks, nil
}

// pagesFor prefers pre-extracted text from the store and consults the
// recently-extracted cache before paying for extraction I/O again.
func (uc *ReindexUseCase) pagesFor(ctx context.Context, doc domain.StoredDocument) ([]string, error) {
	if text := strings.TrimSpace(doc.ExtractedText); text != "" {
		return strings.Split(text, "\f"), nil
	}

	uc.textMu.Lock()
	if cached, ok := uc.textCache[doc.ID]; ok && cached.updatedAt.Equal(doc.UpdatedAt) {
		uc.textMu.Unlock()
		return cached.pages, nil
	}
	uc.textMu.Unlock()

	pages, err := uc.extractor.Extract(ctx, &doc)
	if err != nil {
		return nil, err
	}

	uc.textMu.Lock()
	if len(uc.textCache) >= uc.cfg.TextCacheSize {
		// Full cache: drop an arbitrary entry. Reuse across consecutive
		// rebuilds is best effort.
		for id := range uc.textCache {
			delete(uc.textCache, id)
			break
		}
	}
	uc.textCache[doc.ID] = cachedText{updatedAt: doc.UpdatedAt, pages: pages}
	uc.textMu.Unlock()

	return pages, nil
}

// populate fits the embedder when it is corpus-derived, embeds every chunk
// batch and writes the staged version.
func (uc *ReindexUseCase) populate(ctx context.Context, builder ports.IndexBuilder, docs []documentChunks) (domain.IndexVersion, error) {
	if preparer, ok := uc.embedder.(ports.CorpusPreparer); ok {
		corpus := make([]string, 0, len(docs)*4)
		for _, dc := range docs {
			for _, chunk := range dc.chunks {
				corpus = append(corpus, chunk.Text)
			}
		}
		if len(corpus) > 0 {
			if err := preparer.Prepare(corpus); err != nil {
				return domain.IndexVersion{}, fmt.Errorf("prepare corpus embedder: %w", err)
			}
			snapshot, err := preparer.Snapshot()
			if err != nil {
				return domain.IndexVersion{}, fmt.Errorf("snapshot corpus embedder: %w", err)
			}
			if err := builder.PutArtifact(embedderArtifact, snapshot); err != nil {
				return domain.IndexVersion{}, fmt.Errorf("store embedder snapshot: %w", err)
			}
		}
	}

	for _, dc := range docs {
		vectors, err := uc.embedChunks(ctx, dc.chunks)
		if err != nil {
			return domain.IndexVersion{}, fmt.Errorf("embed chunks for doc %s: %w", dc.doc.ID, err)
		}
		if err := builder.AddDocument(ctx, dc.doc, dc.chunks, vectors); err != nil {
			return domain.IndexVersion{}, fmt.Errorf("index doc %s: %w", dc.doc.ID, err)
		}
	}

	version, err := builder.Commit(ctx, len(docs))
	if err != nil {
		return domain.IndexVersion{}, fmt.Errorf("commit staged index: %w", err)
	}
	return version, nil
}

func (uc *ReindexUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.cfg.EmbedBatch {
		end := start + uc.cfg.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}
		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// promote runs the mandatory consistency check and only then asks the
// catalog for the atomic swap.
func (uc *ReindexUseCase) promote(ctx context.Context, version domain.IndexVersion) error {
	live, err := uc.source.CountDocuments(ctx)
	if err != nil {
		return fmt.Errorf("count documents before swap: %w", err)
	}

	if driftExceeded(version.DocCount, live, uc.cfg.DriftRatio, uc.cfg.DriftFloor) {
		slog.Error("index_swap_refused",
			"version_id", version.VersionID,
			"staged_count", version.DocCount,
			"store_count", live,
			"ratio", uc.cfg.DriftRatio,
			"floor", uc.cfg.DriftFloor,
		)
		return domain.WrapError(domain.ErrIndexDrift, "swap",
			fmt.Errorf("staged=%d live=%d exceeds max(%d*%.2f, %d)", version.DocCount, live, live, uc.cfg.DriftRatio, uc.cfg.DriftFloor))
	}

	if err := uc.catalog.Swap(ctx, version.VersionID); err != nil {
		return fmt.Errorf("swap index version: %w", err)
	}
	return nil
}

// driftExceeded applies the tolerance band max(count*ratio, floor) to the
// absolute difference between the staged and live document counts.
func driftExceeded(staged, live int, ratio float64, floor int) bool {
	diff := staged - live
	if diff < 0 {
		diff = -diff
	}
	tolerance := float64(live) * ratio
	if float64(floor) > tolerance {
		tolerance = float64(floor)
	}
	return float64(diff) > tolerance
}
