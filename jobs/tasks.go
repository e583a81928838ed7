package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/hinfinity/hrdesk/internal/documents"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries escalation notices.
	QueueNotifications = "notifications"

	// TaskNotifyEscalation delivers an escalation notice.
	TaskNotifyEscalation = "notify:escalation"
	// TaskEscalationSweep escalates every breached open request.
	TaskEscalationSweep = "documents:escalation_sweep"
	// TaskGenerateDocument completes an auto-generated request.
	TaskGenerateDocument = "documents:generate"
	// TaskIdempotencyCleanup purges expired submission keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// GeneratePayload identifies the request to generate.
type GeneratePayload struct {
	RequestID uuid.UUID `json:"request_id"`
}

// NewNotifyEscalationTask wraps an escalation notice. The task id makes a
// notice for the same request and level unique.
func NewNotifyEscalationTask(esc documents.Escalation) (*asynq.Task, error) {
	data, err := json.Marshal(esc)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyEscalation, data,
		asynq.TaskID(fmt.Sprintf("escalation:%s:%d", esc.RequestID, esc.Level)),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(5),
	), nil
}

// NewEscalationSweepTask builds the periodic sweep task.
func NewEscalationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskEscalationSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewGenerateDocumentTask builds the generation task for a request.
func NewGenerateDocumentTask(requestID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(GeneratePayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGenerateDocument, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask builds the daily key purge.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(2))
}
