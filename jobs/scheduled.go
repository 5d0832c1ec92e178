package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inventra/inventra/internal/fulfillment"
	jobmetrics "github.com/inventra/inventra/internal/jobs"
)

// LowStockSource lists parts and products at or below their reorder point.
type LowStockSource interface {
	ListLowStock(ctx context.Context) ([]fulfillment.LowStockAlert, error)
}

// LowStockNotifier sends one digest covering every low-stock entity.
type LowStockNotifier interface {
	NotifyLowStockDigest(ctx context.Context, alerts []fulfillment.LowStockAlert) error
}

// LowStockDigestJob notifies owners about everything currently below threshold.
type LowStockDigestJob struct {
	Source   LowStockSource
	Notifier LowStockNotifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle runs one digest pass. An empty scan sends nothing.
func (j *LowStockDigestJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil || j.Notifier == nil {
		return errors.New("low stock digest: handler not configured")
	}
	payload, err := decodeScheduled(t)
	if err != nil {
		return err
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskLowStockDigest)
	defer func() { err = tracker.End(err) }()

	logger := loggerFor(j.Logger, TaskLowStockDigest)
	alerts, err := j.Source.ListLowStock(ctx)
	if err != nil {
		logger.Error("scan low stock", slog.Any("error", err))
		return err
	}
	if len(alerts) == 0 {
		logger.Info("no low stock entities", slog.Time("scheduled_for", payload.ScheduledFor))
		return nil
	}
	if err = j.Notifier.NotifyLowStockDigest(ctx, alerts); err != nil {
		return err
	}
	metricsOrDefault(j.Metrics).AddProcessed(TaskLowStockDigest, len(alerts))
	logger.Info("low stock digest sent", slog.Int("entities", len(alerts)))
	return nil
}

// Warmer recomputes a cached view.
type Warmer interface {
	Warm(ctx context.Context) error
}

// DashboardWarmupJob pre-populates the dashboard cache.
type DashboardWarmupJob struct {
	Warmer  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// Handle refreshes the dashboard within the configured timeout.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Warmer == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	if _, err := decodeScheduled(t); err != nil {
		return err
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskDashboardWarmup)
	defer func() { err = tracker.End(err) }()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err = j.Warmer.Warm(warmCtx); err != nil {
		loggerFor(j.Logger, TaskDashboardWarmup).Error("warm dashboard", slog.Any("error", err))
		return err
	}
	loggerFor(j.Logger, TaskDashboardWarmup).Info("dashboard warmed", slog.Duration("duration", time.Since(start)))
	return nil
}

// IdempotencyCleaner removes idempotency keys older than a cutoff.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes stale order idempotency keys.
type IdempotencyCleanupJob struct {
	Cleaner   IdempotencyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle deletes keys past retention.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	if _, err := decodeScheduled(t); err != nil {
		return err
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	retention := j.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	removed, err := j.Cleaner.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	metricsOrDefault(j.Metrics).AddProcessed(TaskIdempotencyCleanup, int(removed))
	loggerFor(j.Logger, TaskIdempotencyCleanup).Info("idempotency keys pruned", slog.Int64("removed", removed))
	return nil
}
