package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/eligibility"
	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
	"github.com/hinfinity/hrdesk/internal/sla"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	List(ctx context.Context, query ListQuery) ([]Request, error)
	ListBreachCandidates(ctx context.Context, now time.Time, maxLevel int) ([]Request, error)
	History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	Insert(ctx context.Context, req Request) error
	// Update persists req only if the stored version equals expectedVersion,
	// otherwise it returns ErrConcurrentModification.
	Update(ctx context.Context, req Request, expectedVersion int64) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
}

// ListQuery narrows repository listings. Zero values mean no filter.
type ListQuery struct {
	RequesterID uuid.UUID
	Statuses    []Status
	// Search matches requester name, purpose and document type (raw or
	// labelled) case-insensitively.
	Search string
	// BreachedAt, when set, orders requests overdue at that instant first.
	BreachedAt time.Time
	Limit      int
}

// EligibilityPort evaluates whether a document type may be requested.
type EligibilityPort interface {
	Check(docType string, facts eligibility.Facts) (eligibility.Result, error)
}

// FactsProvider looks up the employee facts eligibility rules read.
type FactsProvider interface {
	Facts(ctx context.Context, employeeID uuid.UUID) (eligibility.Facts, error)
}

// Escalation is the notice sent when a request reaches the escalation ceiling.
type Escalation struct {
	RequestID     uuid.UUID    `json:"request_id"`
	RequesterID   uuid.UUID    `json:"requester_id"`
	RequesterName string       `json:"requester_name"`
	DocumentType  DocumentType `json:"document_type"`
	Level         int          `json:"level"`
	DueBy         time.Time    `json:"due_by"`
	ApproverRole  string       `json:"approver_role,omitempty"`
}

// Notifier delivers escalation notices.
type Notifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) error
}

// GenerationDispatcher schedules automatic document generation.
type GenerationDispatcher interface {
	DispatchGeneration(ctx context.Context, requestID uuid.UUID) error
}

// Locker serialises work on a single request across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Options tunes escalation behaviour.
type Options struct {
	MaxEscalationLevel int
	SweepConcurrency   int
	LockTTL            time.Duration
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{MaxEscalationLevel: 2, SweepConcurrency: 4, LockTTL: 30 * time.Second}
}

// Service orchestrates the document request lifecycle.
type Service struct {
	repo       RepositoryPort
	checker    EligibilityPort
	facts      FactsProvider
	audit      shared.AuditSink
	notifier   Notifier
	dispatcher GenerationDispatcher
	locker     Locker
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo       RepositoryPort
	Checker    EligibilityPort
	Facts      FactsProvider
	Audit      shared.AuditSink
	Notifier   Notifier
	Dispatcher GenerationDispatcher
	Locker     Locker
	Logger     *slog.Logger
}

// NewService constructs the orchestrator.
func NewService(deps Deps, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.MaxEscalationLevel <= 0 {
		opts.MaxEscalationLevel = defaults.MaxEscalationLevel
	}
	if opts.SweepConcurrency <= 0 {
		opts.SweepConcurrency = defaults.SweepConcurrency
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       deps.Repo,
		checker:    deps.Checker,
		facts:      deps.Facts,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// SubmitInput describes a new document request.
type SubmitInput struct {
	DocumentType   DocumentType
	Purpose        string
	Period         string
	Format         Format
	DeliveryMethod DeliveryMethod
}

// CheckEligibility evaluates the actor's eligibility for docType.
func (s *Service) CheckEligibility(ctx context.Context, actor rbac.Principal, docType DocumentType) (eligibility.Result, error) {
	if s.checker == nil {
		return eligibility.Result{}, errors.New("documents: eligibility checker not configured")
	}
	facts, err := s.lookupFacts(ctx, actor.ID)
	if err != nil {
		return eligibility.Result{}, err
	}
	result, err := s.checker.Check(string(docType), facts)
	if err != nil {
		return eligibility.Result{}, fmt.Errorf("documents: eligibility: %w", err)
	}
	s.recordAudit(ctx, shared.AuditRecord{
		ActorID:      actor.ID,
		Action:       "eligibility_checked",
		ResourceType: "document_type",
		ResourceID:   string(docType),
		After:        result,
	})
	return result, nil
}

// Submit creates a request and routes it according to eligibility.
func (s *Service) Submit(ctx context.Context, actor rbac.Principal, input SubmitInput) (Request, error) {
	if actor.ID == uuid.Nil {
		return Request{}, fmt.Errorf("%w: requester required", ErrValidation)
	}
	input.Purpose = strings.TrimSpace(input.Purpose)
	if strings.TrimSpace(string(input.DocumentType)) == "" {
		return Request{}, &FieldError{Field: "document_type"}
	}
	if input.Purpose == "" {
		return Request{}, &FieldError{Field: "purpose"}
	}
	if input.Format == "" {
		input.Format = FormatPDF
	}
	if input.DeliveryMethod == "" {
		input.DeliveryMethod = DeliveryBoth
	}

	result, err := s.CheckEligibility(ctx, actor, input.DocumentType)
	if err != nil {
		return Request{}, err
	}
	if !result.Eligible {
		return Request{}, &EligibilityError{DocumentType: input.DocumentType, Reason: result.Reason}
	}

	createdAt := s.now().UTC()
	dueBy, err := sla.ComputeDueBy(createdAt, result.SLAHours)
	if err != nil {
		return Request{}, fmt.Errorf("documents: %s: %w", input.DocumentType, err)
	}
	req := Request{
		ID:             uuid.New(),
		RequesterID:    actor.ID,
		RequesterName:  actor.Name,
		DocumentType:   input.DocumentType,
		Purpose:        input.Purpose,
		Period:         strings.TrimSpace(input.Period),
		Format:         input.Format,
		DeliveryMethod: input.DeliveryMethod,
		Status:         StatusPending,
		SLAHours:       result.SLAHours,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		DueBy:          dueBy,
		ApproverRole:   result.ApproverRole,
		Version:        1,
	}
	target := routeFor(result)

	var routed Request
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, req); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, HistoryEntry{
			RequestID: req.ID, ActorID: actor.ID, Action: "request_created",
			ToStatus: StatusPending, At: createdAt,
		}); err != nil {
			return err
		}
		if err := checkTransition(req.ID, req.Status, target); err != nil {
			return err
		}
		routed = req
		routed.Status = target
		routed.Version = req.Version + 1
		if err := tx.Update(ctx, routed, req.Version); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, HistoryEntry{
			RequestID: req.ID, ActorID: actor.ID, Action: "request_" + string(target),
			FromStatus: StatusPending, ToStatus: target, At: createdAt,
		})
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, shared.AuditRecord{
		ActorID:      actor.ID,
		Action:       "request_created",
		ResourceType: "document_request",
		ResourceID:   routed.ID.String(),
		After:        routed,
		At:           createdAt,
	})
	if target == StatusAutoGenerating && s.dispatcher != nil {
		if err := s.dispatcher.DispatchGeneration(ctx, routed.ID); err != nil {
			s.logger.Warn("dispatch generation", slog.String("request_id", routed.ID.String()), slog.Any("error", err))
		}
	}
	return routed, nil
}

// routeFor picks the post-creation status. Eligible requests that neither
// require approval nor support auto generation wait for manual handling.
func routeFor(result eligibility.Result) Status {
	if !result.RequiresApproval && result.AutoGenerateAvailable {
		return StatusAutoGenerating
	}
	return StatusAwaitingApproval
}

// Approve moves an awaiting request to approved.
func (s *Service) Approve(ctx context.Context, actor rbac.Principal, id uuid.UUID) (Request, error) {
	if !rbac.CanApproveRequests(actor.Role) {
		return Request{}, denied(actor, "approve")
	}
	return s.transition(ctx, actor, id, StatusApproved, "request_approved", "", func(r *Request, now time.Time) {
		approver := actor.ID
		r.ApprovedBy = &approver
		r.ApprovedAt = &now
	})
}

// Reject closes an awaiting request with a reason.
func (s *Service) Reject(ctx context.Context, actor rbac.Principal, id uuid.UUID, reason string) (Request, error) {
	if !rbac.CanApproveRequests(actor.Role) {
		return Request{}, denied(actor, "reject")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Request{}, &FieldError{Field: "reason"}
	}
	return s.transition(ctx, actor, id, StatusRejected, "request_rejected", reason, func(r *Request, _ time.Time) {
		r.RejectionReason = reason
	})
}

// RequestChanges sends an awaiting request back to the requester.
func (s *Service) RequestChanges(ctx context.Context, actor rbac.Principal, id uuid.UUID, comment string) (Request, error) {
	if !rbac.CanApproveRequests(actor.Role) {
		return Request{}, denied(actor, "request changes on")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return Request{}, &FieldError{Field: "comment"}
	}
	return s.transition(ctx, actor, id, StatusChangesRequested, "request_changes_requested", comment, func(r *Request, _ time.Time) {
		r.Comment = comment
	})
}

// ResubmitInput carries the requester's revisions.
type ResubmitInput struct {
	Purpose string
	Period  string
}

// Resubmit returns a request with requested changes to the approval queue.
// Only the original requester may resubmit.
func (s *Service) Resubmit(ctx context.Context, actor rbac.Principal, id uuid.UUID, input ResubmitInput) (Request, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if current.RequesterID != actor.ID {
		return Request{}, fmt.Errorf("%w: only the requester may resubmit", rbac.ErrPolicyDenied)
	}
	purpose := strings.TrimSpace(input.Purpose)
	period := strings.TrimSpace(input.Period)
	return s.transition(ctx, actor, id, StatusAwaitingApproval, "request_resubmitted", "", func(r *Request, _ time.Time) {
		if purpose != "" {
			r.Purpose = purpose
		}
		if period != "" {
			r.Period = period
		}
	})
}

// StartProcessing marks an approved request as being prepared.
func (s *Service) StartProcessing(ctx context.Context, actor rbac.Principal, id uuid.UUID) (Request, error) {
	if !canProcess(actor.Role) {
		return Request{}, denied(actor, "process")
	}
	return s.transition(ctx, actor, id, StatusInProgress, "request_in_progress", "", nil)
}

// Complete closes an in-progress or auto-generating request.
func (s *Service) Complete(ctx context.Context, actor rbac.Principal, id uuid.UUID) (Request, error) {
	if !canProcess(actor.Role) {
		return Request{}, denied(actor, "complete")
	}
	return s.transition(ctx, actor, id, StatusCompleted, "request_completed", "", func(r *Request, now time.Time) {
		r.CompletedAt = &now
	})
}

// CompleteGeneration finishes an automatically generated request.
func (s *Service) CompleteGeneration(ctx context.Context, id uuid.UUID) (Request, error) {
	return s.Complete(ctx, SystemPrincipal, id)
}

// SystemPrincipal is the actor recorded for background transitions.
var SystemPrincipal = rbac.Principal{Name: "system", Role: rbac.RoleAdmin, Active: true}

// Get returns a request visible to actor.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id uuid.UUID) (View, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !canSee(actor, req) {
		return View{}, ErrNotFound
	}
	return NewView(req, s.now()), nil
}

// History returns the mutation trail of a request visible to actor.
func (s *Service) History(ctx context.Context, actor rbac.Principal, id uuid.UUID) ([]HistoryEntry, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, req) {
		return nil, ErrNotFound
	}
	return s.repo.History(ctx, id)
}

type mutateFn func(r *Request, now time.Time)

func (s *Service) transition(ctx context.Context, actor rbac.Principal, id uuid.UUID, to Status, action, note string, mutate mutateFn) (Request, error) {
	now := s.now().UTC()
	var before, after Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(id, current.Status, to); err != nil {
			return err
		}
		before = current
		next := current
		next.Status = to
		next.UpdatedAt = now
		next.Version = current.Version + 1
		if mutate != nil {
			mutate(&next, now)
		}
		if err := tx.Update(ctx, next, current.Version); err != nil {
			return err
		}
		after = next
		return tx.AppendHistory(ctx, HistoryEntry{
			RequestID: id, ActorID: actor.ID, Action: action,
			FromStatus: current.Status, ToStatus: to, Note: note,
			Level: next.EscalationLevel, At: now,
		})
	})
	if err != nil {
		return Request{}, s.resolveConflict(ctx, id, err)
	}
	s.recordAudit(ctx, shared.AuditRecord{
		ActorID:      actor.ID,
		Action:       action,
		ResourceType: "document_request",
		ResourceID:   id.String(),
		Before:       before,
		After:        after,
		At:           now,
	})
	return after, nil
}

// resolveConflict reports ErrAlreadyResolved when a lost race left the
// request terminal.
func (s *Service) resolveConflict(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, ErrConcurrentModification) {
		return err
	}
	latest, getErr := s.repo.Get(ctx, id)
	if getErr != nil {
		return err
	}
	if latest.Status.Terminal() {
		return fmt.Errorf("%w: request %s is %s", ErrAlreadyResolved, id, latest.Status)
	}
	return err
}

func (s *Service) lookupFacts(ctx context.Context, employeeID uuid.UUID) (eligibility.Facts, error) {
	if s.facts == nil {
		return eligibility.Facts{}, nil
	}
	facts, err := s.facts.Facts(ctx, employeeID)
	if err != nil {
		return eligibility.Facts{}, fmt.Errorf("documents: employee facts: %w", err)
	}
	return facts, nil
}

func (s *Service) recordAudit(ctx context.Context, rec shared.AuditRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Warn("record audit", slog.String("action", rec.Action), slog.String("resource_id", rec.ResourceID), slog.Any("error", err))
	}
}

func canProcess(role rbac.Role) bool {
	return role == rbac.RoleAdmin || role == rbac.RoleHR
}

func canSee(actor rbac.Principal, req Request) bool {
	if actor.Role == rbac.RoleEmployee {
		return req.RequesterID == actor.ID
	}
	return actor.Role.Valid()
}

func denied(actor rbac.Principal, what string) error {
	return fmt.Errorf("%w: role %s may not %s document requests", rbac.ErrPolicyDenied, actor.Role, what)
}
