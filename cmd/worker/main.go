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

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hinfinity/hrdesk/internal/app"
	jobmetrics "github.com/hinfinity/hrdesk/internal/jobs"
	"github.com/hinfinity/hrdesk/internal/platform/cache"
	"github.com/hinfinity/hrdesk/internal/platform/db"
	"github.com/hinfinity/hrdesk/jobs"
)

const idempotencyCleanupSpec = "30 3 * * *"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	services, err := app.NewServices(cfg, logger, pool, redisClient, queue)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	sweepJob := jobs.NewEscalationSweepJob(services.Documents, logger, metrics)
	notifyJob := &jobs.NotifyEscalationJob{Logger: logger, Metrics: metrics}
	generateJob := &jobs.GenerateDocumentJob{Completer: services.Documents, Logger: logger, Metrics: metrics}
	cleanupJob := &jobs.IdempotencyCleanupJob{Purger: services.Idempotency, Logger: logger, Metrics: metrics}

	var cron []jobs.CronRegistration
	if cfg.EscalationSweepCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.EscalationSweepCron, Task: jobs.NewEscalationSweepTask()})
	}
	cron = append(cron, jobs.CronRegistration{Spec: idempotencyCleanupSpec, Task: jobs.NewIdempotencyCleanupTask()})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEscalationSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskNotifyEscalation, Handler: notifyJob.Handle},
			{Type: jobs.TaskGenerateDocument, Handler: generateJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting worker",
		slog.String("sweep_cron", cfg.EscalationSweepCron),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
