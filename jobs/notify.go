package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hinfinity/hrdesk/internal/documents"
	jobmetrics "github.com/hinfinity/hrdesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NotifyEscalationJob delivers escalation notices to the log stream read by
// the on-call HR channel.
type NotifyEscalationJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskNotifyEscalation tasks.
func (j *NotifyEscalationJob) Handle(ctx context.Context, t *asynq.Task) error {
	var esc documents.Escalation
	if err := json.Unmarshal(t.Payload(), &esc); err != nil {
		return asynq.SkipRetry
	}
	metrics := defaultJobMetrics
	if j.Metrics != nil {
		metrics = j.Metrics
	}
	tracker := metrics.Track(TaskNotifyEscalation)
	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	logger.With(slog.String("job", TaskNotifyEscalation)).Warn("document request escalated",
		slog.String("request_id", esc.RequestID.String()),
		slog.String("requester", esc.RequesterName),
		slog.String("document_type", string(esc.DocumentType)),
		slog.Int("level", esc.Level),
		slog.Time("due_by", esc.DueBy),
		slog.String("approver_role", esc.ApproverRole),
	)
	return tracker.End(nil)
}
