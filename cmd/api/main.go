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

	httpadapter "github.com/hyeonsoft/document-qa/internal/adapters/http"
	"github.com/hyeonsoft/document-qa/internal/bootstrap"
	"github.com/hyeonsoft/document-qa/internal/config"
	"github.com/hyeonsoft/document-qa/internal/infrastructure/index/sqlite"
	"github.com/hyeonsoft/document-qa/internal/observability/logging"
	"github.com/hyeonsoft/document-qa/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New("api", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The worker swaps index versions in its own process; the API learns
	// about them through the CURRENT pointer file.
	go func() {
		if err := sqlite.WatchCurrentPointer(ctx, app.Catalog); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("index_watch_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(
		app.AnswerUC,
		app.ReindexUC,
		app.Queue,
		app.Source,
		metrics.NewHTTPServerMetrics("api"),
		httpadapter.RouterConfig{
			ServiceName:     "api",
			RateLimitRPS:    cfg.APIRateLimitRPS,
			RateLimitBurst:  cfg.APIRateLimitBurst,
			MaxInFlight:     cfg.APIMaxInFlight,
			BackpressureMax: time.Duration(cfg.BackpressureWaitMS) * time.Millisecond,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
