package ports

import (
	"context"
	"io"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

// DocumentSource is the read-only view over the authoritative document
// store. Iteration is finite and restartable from the beginning only.
type DocumentSource interface {
	CountDocuments(ctx context.Context) (int, error)
	IterateDocuments(ctx context.Context, fn func(context.Context, domain.StoredDocument) error) error
	GetByID(ctx context.Context, id string) (*domain.StoredDocument, error)
}

// ObjectStorage serves the raw bytes of stored documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor turns a stored document into page texts.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.StoredDocument) ([]string, error)
}

// Chunker splits page text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunk batches and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CorpusPreparer is implemented by embedders whose vector space is derived
// from the corpus itself. Prepare runs once per rebuild before Embed;
// Snapshot serializes the fitted state into the index version so query-time
// embedding matches the build.
type CorpusPreparer interface {
	Prepare(corpus []string) error
	Snapshot() ([]byte, error)
}

// AnswerGenerator is the external text-generation model. The retrieval core
// never calls it directly; answer assembly hands it a prompt and a context
// block.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt, contextBlock string) (string, error)
}

// IndexSearcher runs sub-searches against one pinned index version. Both
// searches always answer from the same version.
type IndexSearcher interface {
	Info() domain.IndexVersion
	SearchLexical(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
	SearchSemantic(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}

// IndexHandle pins an index version for the duration of a request. Release
// must be called exactly once; the version stays readable until every
// in-flight holder has released it, even across a concurrent swap.
type IndexHandle interface {
	IndexSearcher
	Release()
}

// IndexProvider hands out handles to the currently active version.
type IndexProvider interface {
	Acquire() (IndexHandle, error)
}

// IndexBuilder accumulates one staged index version. Commit finalizes the
// staging area and returns its metadata; it does not activate the version.
type IndexBuilder interface {
	PutArtifact(name string, data []byte) error
	AddDocument(ctx context.Context, doc domain.StoredDocument, chunks []domain.Chunk, vectors [][]float32) error
	Commit(ctx context.Context, docCount int) (domain.IndexVersion, error)
	Discard()
}

// IndexCatalog owns the version directories and the single mutable active
// pointer. Swap either activates the named staged version completely or
// leaves the previous one active.
type IndexCatalog interface {
	IndexProvider
	NewBuilder(ctx context.Context, versionID string) (IndexBuilder, error)
	Swap(ctx context.Context, versionID string) error
	ActiveInfo() (domain.IndexVersion, bool)
}

// ReindexQueue carries rebuild requests from the admin API to the worker.
type ReindexQueue interface {
	PublishReindexRequested(ctx context.Context, req domain.ReindexRequest) error
	SubscribeReindexRequested(ctx context.Context, handler func(context.Context, domain.ReindexRequest) error) error
}

// ResponseCache memoizes final answers per normalized query fingerprint.
// A TTL-expired entry behaves exactly like a miss.
type ResponseCache interface {
	Get(fingerprint string) (*domain.Answer, bool)
	Put(fingerprint string, answer *domain.Answer)
}
