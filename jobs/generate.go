package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/hinfinity/hrdesk/internal/documents"
	jobmetrics "github.com/hinfinity/hrdesk/internal/jobs"
)

// Completer finishes an auto-generated request.
type Completer interface {
	CompleteGeneration(ctx context.Context, id uuid.UUID) (documents.Request, error)
}

// GenerateDocumentJob marks auto-generated requests completed once the
// document is produced.
type GenerateDocumentJob struct {
	Completer Completer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskGenerateDocument tasks.
func (j *GenerateDocumentJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Completer == nil {
		return errors.New("generate document: handler not configured")
	}
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RequestID == uuid.Nil {
		return asynq.SkipRetry
	}
	metrics := defaultJobMetrics
	if j.Metrics != nil {
		metrics = j.Metrics
	}
	tracker := metrics.Track(TaskGenerateDocument)
	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	logger = logger.With(slog.String("job", TaskGenerateDocument), slog.String("request_id", payload.RequestID.String()))

	req, err := j.Completer.CompleteGeneration(ctx, payload.RequestID)
	switch {
	case err == nil:
		logger.Info("document generated", slog.String("document_type", string(req.DocumentType)))
		return tracker.End(nil)
	case errors.Is(err, documents.ErrNotFound),
		errors.Is(err, documents.ErrAlreadyResolved),
		errors.Is(err, documents.ErrInvalidTransition):
		logger.Warn("generation skipped", slog.Any("error", err))
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	default:
		logger.Error("generation failed", slog.Any("error", err))
		return tracker.End(err)
	}
}
