package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/documents"
	jobmetrics "github.com/hinfinity/hrdesk/internal/jobs"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	seen  map[string]bool
}

func (e *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if task.Type() == TaskNotifyEscalation {
		key := string(task.Payload())
		if e.seen[key] {
			return nil, asynq.ErrTaskIDConflict
		}
		e.seen[key] = true
	}
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (e *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueuesDocumentTasks(t *testing.T) {
	enq := &recordingEnqueuer{seen: map[string]bool{}}
	client := NewClientWith(enq)
	ctx := context.Background()
	esc := documents.Escalation{RequestID: uuid.New(), Level: 2, DocumentType: documents.TypeSalarySlip}

	require.NoError(t, client.NotifyEscalation(ctx, esc))
	require.NoError(t, client.NotifyEscalation(ctx, esc))
	require.Len(t, enq.tasks, 1)

	var decoded documents.Escalation
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, esc.RequestID, decoded.RequestID)
	require.Equal(t, 2, decoded.Level)

	id := uuid.New()
	require.NoError(t, client.DispatchGeneration(ctx, id))
	require.Equal(t, TaskGenerateDocument, enq.tasks[1].Type())
	var payload GeneratePayload
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &payload))
	require.Equal(t, id, payload.RequestID)

	info, err := client.EnqueueEscalationSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, TaskEscalationSweep, info.Type)
	require.Len(t, enq.opts[2], 1)
}

type stubSweeper struct {
	result documents.SweepResult
	err    error
	calls  int
}

func (s *stubSweeper) SweepEscalations(ctx context.Context, now time.Time) (documents.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

func TestEscalationSweepJobRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	sweeper := &stubSweeper{result: documents.SweepResult{Candidates: 5, Escalated: 3, Notified: 1, Skipped: 1, Failed: 1}}
	job := NewEscalationSweepJob(sweeper, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewEscalationSweepTask()))
	require.Equal(t, 1, sweeper.calls)

	count, err := testutil.GatherAndCount(reg, "hrdesk_document_escalations_total")
	require.NoError(t, err)
	require.Equal(t, 4, count)

	sweeper.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), NewEscalationSweepTask()))
	count, err = testutil.GatherAndCount(reg, "hrdesk_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type stubCompleter struct {
	err error
	ids []uuid.UUID
}

func (s *stubCompleter) CompleteGeneration(ctx context.Context, id uuid.UUID) (documents.Request, error) {
	s.ids = append(s.ids, id)
	return documents.Request{ID: id, Status: documents.StatusCompleted}, s.err
}

func TestGenerateDocumentJob(t *testing.T) {
	completer := &stubCompleter{}
	job := &GenerateDocumentJob{Completer: completer, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	id := uuid.New()
	task, err := NewGenerateDocumentTask(id)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []uuid.UUID{id}, completer.ids)

	completer.err = &documents.TransitionError{RequestID: id, From: documents.StatusCompleted, To: documents.StatusCompleted}
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	completer.err = errors.New("timeout")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskGenerateDocument, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNotifyEscalationJob(t *testing.T) {
	job := &NotifyEscalationJob{Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	task, err := NewNotifyEscalationTask(documents.Escalation{RequestID: uuid.New(), Level: 2})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskNotifyEscalation, []byte("nope"))), asynq.SkipRetry)
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsQueues(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{QueueDefault: {Queue: QueueDefault, Pending: 3}}, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `{"queue":"default","pending":3,"active":0,"retry":0}`)
	require.Contains(t, rr.Body.String(), `"queue":"notifications"`)
}

type stubPurger struct {
	retention time.Duration
	err       error
}

func (s *stubPurger) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.retention = olderThan
	return s.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	purger := &stubPurger{}
	job := &IdempotencyCleanupJob{Purger: purger, Metrics: jobmetrics.NewMetrics(reg)}

	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, DefaultKeyRetention, purger.retention)

	job.Retention = time.Hour
	purger.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, time.Hour, purger.retention)
	count, err := testutil.GatherAndCount(reg, "hrdesk_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
