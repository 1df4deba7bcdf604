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

	"github.com/kirillkom/script-kb-assistant/internal/bootstrap"
	"github.com/kirillkom/script-kb-assistant/internal/config"
	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/observability/logging"
	"github.com/kirillkom/script-kb-assistant/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: service, Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_query_events", "setting", "QUERY_EVENTS_ENABLED")
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSQuerySubject)
	err = app.Queue.SubscribeQueryCompleted(ctx, func(handlerCtx context.Context, event domain.QueryEvent) error {
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(event.OccurredAt))
		}
		done := workerMetrics.Track()

		saveCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		err := app.QueryLog.SaveQueryEvent(saveCtx, event)
		done(err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
