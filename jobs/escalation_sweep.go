package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hinfinity/hrdesk/internal/documents"
	jobmetrics "github.com/hinfinity/hrdesk/internal/jobs"
)

// Sweeper runs one escalation sweep.
type Sweeper interface {
	SweepEscalations(ctx context.Context, now time.Time) (documents.SweepResult, error)
}

// EscalationSweepJob escalates breached requests on a schedule.
type EscalationSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewEscalationSweepJob wires dependencies for the sweep handler.
func NewEscalationSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *EscalationSweepJob {
	return &EscalationSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskEscalationSweep tasks.
func (j *EscalationSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("escalation sweep: handler not configured")
	}
	start := j.now()
	tracker := j.metrics().Track(TaskEscalationSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	result, err := j.Sweeper.SweepEscalations(ctx, start)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddEscalations(jobmetrics.OutcomeEscalated, result.Escalated)
	j.metrics().AddEscalations(jobmetrics.OutcomeNotified, result.Notified)
	j.metrics().AddEscalations(jobmetrics.OutcomeSkipped, result.Skipped)
	j.metrics().AddEscalations(jobmetrics.OutcomeFailed, result.Failed)

	logger.Info("completed escalation sweep",
		slog.Int("candidates", result.Candidates),
		slog.Int("escalated", result.Escalated),
		slog.Int("notified", result.Notified),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *EscalationSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEscalationSweep))
	}
	return slog.Default().With(slog.String("job", TaskEscalationSweep))
}

func (j *EscalationSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *EscalationSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
