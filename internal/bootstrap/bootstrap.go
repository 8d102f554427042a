// Package bootstrap wires configuration into a runnable application graph.
// Both binaries (api and worker) share the same graph; they differ only in
// which entry points they drive.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/hyeonsoft/document-qa/internal/config"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
	"github.com/hyeonsoft/document-qa/internal/core/usecase"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/cache"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/chunking"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/embedding/tfidf"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/extractor"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/index/sqlite"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/llm/ollama"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/queue/nats"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/repository/postgres"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/resilience"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/storage/localfs"
)

// embedderArtifactFile is the per-version snapshot written during rebuild
// and restored when a version is opened for serving.
const embedderArtifactFile = "embedder.json"

type App struct {
	Config config.Config

	Queue   *nats.Queue
	Source  ports.DocumentSource
	Catalog *sqlite.Catalog

	AnswerUC  *usecase.AnswerUseCase
	ReindexUC *usecase.ReindexUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	source := postgres.NewDocumentSource(db)
	if err := source.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.NATSPolicy()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).
		WithExecutor(resilience.NewExecutor(resilience.OllamaPolicy()))
	generator := ollama.NewGenerator(ollamaClient)

	indexEmbedder, embedders := selectEmbedder(cfg, ollamaClient)

	catalog, err := sqlite.OpenCatalog(cfg.IndexPath, embedders)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open index catalog: %w", err)
	}

	textExtractor := extractor.New(storage)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	responseCache := cache.New(cfg.CacheCapacity, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	retriever := usecase.NewHybridRetriever(catalog, usecase.RetrieverConfig{
		ExpansionFactor: cfg.ExpansionFactor,
		SnippetMaxChars: cfg.SnippetMaxChars,
		Weights:         fusionWeights(cfg),
	})
	router := usecase.NewQueryRouter(routerConfig(cfg))

	answerUC := usecase.NewAnswerUseCase(retriever, router, generator, responseCache, usecase.AnswerConfig{
		DefaultTopK:    cfg.QueryTopK,
		CostTopK:       cfg.CostTopK,
		DocumentTopK:   cfg.DocumentTopK,
		SearchTopK:     cfg.SearchTopK,
		SearchDeadline: time.Duration(cfg.SearchDeadlineMS) * time.Millisecond,
	})
	reindexUC := usecase.NewReindexUseCase(source, textExtractor, chunker, indexEmbedder, catalog, usecase.ReindexConfig{
		Workers:       cfg.ReindexWorkers,
		EmbedBatch:    cfg.EmbedBatch,
		DriftRatio:    cfg.DriftRatio,
		DriftFloor:    cfg.DriftFloor,
		TextCacheSize: cfg.TextCacheSize,
	})

	return &App{
		Config: cfg,

		Queue:   queue,
		Source:  source,
		Catalog: catalog,

		AnswerUC:  answerUC,
		ReindexUC: reindexUC,

		closeFn: func() {
			queue.Close()
			catalog.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// selectEmbedder returns the embedder used while building an index and the
// factory used when a built version is opened for querying. The tfidf kind
// is corpus-fitted, so each version restores its own snapshot; the ollama
// kind embeds against a fixed external model and ignores the version dir.
func selectEmbedder(cfg config.Config, client *ollama.Client) (ports.Embedder, sqlite.EmbedderFactory) {
	if cfg.EmbedderKind == "ollama" {
		embedder := ollama.NewEmbedder(client)
		return embedder, func(string) (ports.Embedder, error) {
			return embedder, nil
		}
	}
	return tfidf.NewEmbedder(), func(versionDir string) (ports.Embedder, error) {
		return tfidf.Load(versionDir, embedderArtifactFile)
	}
}

func fusionWeights(cfg config.Config) usecase.FusionWeights {
	weights := usecase.DefaultFusionWeights()
	weights.Lexical = cfg.LexicalWeight
	weights.Semantic = cfg.SemanticWeight
	weights.Overlap = cfg.OverlapWeight
	weights.PhraseBonus = cfg.PhraseBonus
	weights.LengthNorm = cfg.LengthNormWeight
	return weights
}

func routerConfig(cfg config.Config) usecase.RouterConfig {
	routerCfg := usecase.DefaultRouterConfig()
	routerCfg.LowConfidenceScore = cfg.LowConfidenceScore
	routerCfg.LowConfidenceDelta = cfg.LowConfidenceDelta
	routerCfg.Fallback = cfg.FallbackStrategy
	return routerCfg
}
