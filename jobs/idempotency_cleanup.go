package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hinfinity/hrdesk/internal/jobs"
)

// DefaultKeyRetention keeps submission keys long enough to cover client retries.
const DefaultKeyRetention = 72 * time.Hour

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob purges expired submission keys.
type IdempotencyCleanupJob struct {
	Purger    KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	metrics := defaultJobMetrics
	if j.Metrics != nil {
		metrics = j.Metrics
	}
	retention := j.Retention
	if retention <= 0 {
		retention = DefaultKeyRetention
	}
	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	if err := j.Purger.Cleanup(ctx, retention); err != nil {
		logger.Error("idempotency cleanup failed", slog.String("job", TaskIdempotencyCleanup), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("idempotency keys purged", slog.String("job", TaskIdempotencyCleanup), slog.Duration("retention", retention))
	return tracker.End(nil)
}
