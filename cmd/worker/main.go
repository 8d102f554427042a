package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyeonsoft/document-qa/internal/bootstrap"
	"github.com/hyeonsoft/document-qa/internal/config"
	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/index/sqlite"
	"github.com/hyeonsoft/document-qa/internal/observability/logging"
	"github.com/hyeonsoft/document-qa/internal/observability/metrics"
)

const rebuildTimeout = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New("worker", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go driftProbe(ctx, app)

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeReindexRequested(ctx, func(handlerCtx context.Context, req domain.ReindexRequest) error {
		jobCtx, cancel := context.WithTimeout(handlerCtx, rebuildTimeout)
		defer cancel()
		return rebuild(jobCtx, app, workerMetrics, req)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func rebuild(ctx context.Context, app *bootstrap.App, workerMetrics *metrics.WorkerMetrics, req domain.ReindexRequest) error {
	slog.Info("index_rebuild_started", "version_id", req.VersionID, "reason", req.Reason)
	workerMetrics.StartRebuild()
	start := time.Now()

	version, err := app.ReindexUC.Rebuild(ctx, req.VersionID)
	workerMetrics.FinishRebuild("worker", time.Since(start), version.DocCount, err)

	if err != nil {
		if domain.IsKind(err, domain.ErrIndexDrift) {
			workerMetrics.RecordSwapRefused("worker")
		}
		return err
	}

	if err := app.Catalog.Prune(app.Config.VersionsKept); err != nil {
		slog.Warn("index_prune_failed", "error", err)
	}
	slog.Info("index_rebuild_finished",
		"version_id", version.VersionID,
		"doc_count", version.DocCount,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}

// driftProbe periodically compares the active index against the document
// store and requests a rebuild when the drift tolerance is exceeded. The
// request goes through the queue so concurrent probes and manual triggers
// share one code path.
func driftProbe(ctx context.Context, app *bootstrap.App) {
	interval := time.Duration(app.Config.DriftProbeIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := app.ReindexUC.Status(ctx)
		if err != nil {
			slog.Warn("drift_probe_failed", "error", err)
			continue
		}
		if !status.Drift {
			continue
		}

		req := domain.ReindexRequest{
			VersionID:   sqlite.NewVersionID(),
			Reason:      "drift_probe",
			RequestedAt: time.Now().UTC(),
		}
		if err := app.Queue.PublishReindexRequested(ctx, req); err != nil {
			slog.Warn("drift_rebuild_request_failed", "error", err)
			continue
		}
		slog.Info("drift_rebuild_requested",
			"version_id", req.VersionID,
			"active_version", status.ActiveVersion,
			"index_doc_count", status.DocCount,
			"store_doc_count", status.StoreCount,
		)
	}
}

func startMetricsServer(port string, workerMetrics *metrics.WorkerMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()
	return server
}
