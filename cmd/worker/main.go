package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inventra/inventra/internal/app"
	"github.com/inventra/inventra/internal/dashboard"
	"github.com/inventra/inventra/internal/inventory"
	jobmetrics "github.com/inventra/inventra/internal/jobs"
	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/observability"
	"github.com/inventra/inventra/internal/platform/cache"
	"github.com/inventra/inventra/internal/platform/db"
	"github.com/inventra/inventra/internal/shared"
	"github.com/inventra/inventra/jobs"
)

const (
	dashboardCacheTTL      = 5 * time.Minute
	idempotencyCleanupCron = "30 3 * * *"
)

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
	logger := app.NewLogger(cfg, "worker")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, "inventra-worker")
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
	appMetrics := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(appMetrics.Registerer())

	jobClient := jobs.NewClient(redisOpts)
	defer func() { _ = jobClient.Close() }()
	notificationService := notifications.NewService(notifications.NewRepository(pool),
		notifications.NewRedisPublisher(redisClient, logger), jobClient, appMetrics, logger)

	mailer, err := jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	if err != nil {
		logger.Error("configure mailer", slog.Any("error", err))
		os.Exit(1)
	}
	emailJob := jobs.NewEmailJob(mailer, logger, metrics)
	digestJob := &jobs.LowStockDigestJob{
		Source:   inventory.NewRepository(pool),
		Notifier: notificationService,
		Logger:   logger,
		Metrics:  metrics,
	}
	warmupJob := &jobs.DashboardWarmupJob{
		Warmer: dashboard.NewService(dashboard.NewRepository(pool),
			cache.NewVersioned(redisClient, "dashboard", dashboardCacheTTL), logger),
		Logger:  logger,
		Metrics: metrics,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Cleaner:   shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyTTL,
		Logger:    logger,
		Metrics:   metrics,
	}

	now := time.Now().UTC()
	var cron []jobs.CronRegistration
	for _, c := range []struct {
		spec, task string
	}{
		{cfg.LowStockDigestCron, jobs.TaskLowStockDigest},
		{cfg.DashboardWarmCron, jobs.TaskDashboardWarmup},
		{idempotencyCleanupCron, jobs.TaskIdempotencyCleanup},
	} {
		if c.spec == "" {
			continue
		}
		task, err := jobs.NewScheduledTask(c.task, now)
		if err != nil {
			logger.Error("build scheduled task", slog.String("task", c.task), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: c.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: emailJob.Handle},
			{Type: jobs.TaskLowStockDigest, Handler: digestJob.Handle},
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
