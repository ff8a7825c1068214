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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/firm-distillery/internal/bootstrap"
	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/usecase"
	"github.com/kirillkom/firm-distillery/internal/observability/logging"
	"github.com/kirillkom/firm-distillery/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithQueue(), bootstrap.WithBatchObserver(workerMetrics))
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	runner := usecase.NewJobRunner(app.BatchUC, app.EmbedUC,
		usecase.WithJobTimeout(cfg.JobTimeout),
		usecase.WithJobObserver(workerMetrics),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSExtractionSubject, "group", cfg.NATSQueueGroup)
		return app.Queue.SubscribeExtractionJobs(gctx, runner.HandleExtractionJob)
	})
	g.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSEmbedSubject, "group", cfg.NATSQueueGroup)
		return app.Queue.SubscribeEmbedJobs(gctx, runner.HandleEmbedJob)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("worker_stopped", "error", err)
		app.Close()
		os.Exit(1)
	}
}
