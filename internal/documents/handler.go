package documents

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/platform/httpx"
	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
	"github.com/hinfinity/hrdesk/internal/sla"
)

// IdempotencyHeader deduplicates retried submissions.
const IdempotencyHeader = "Idempotency-Key"

const submitScope = "documents.submit"

// IdempotencyGuard records submission keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes the request lifecycle over JSON.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyGuard
	validate    *validator.Validate
}

// NewHandler builds the documents handler.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotency: idem, validate: validator.New()}
}

// MountRoutes registers document request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/eligibility", h.handleEligibility)
		r.Post("/", h.handleSubmit)
		r.Get("/", h.handleList)
		r.Get("/metrics", h.handleMetrics)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/history", h.handleHistory)
			r.Post("/approve", h.handleApprove)
			r.Post("/reject", h.handleReject)
			r.Post("/changes", h.handleRequestChanges)
			r.Post("/resubmit", h.handleResubmit)
			r.Post("/start", h.handleStart)
			r.Post("/complete", h.handleComplete)
		})
	})
}

type eligibilityRequest struct {
	DocumentType string `json:"document_type" validate:"required,max=64"`
}

type submitRequest struct {
	DocumentType   string `json:"document_type" validate:"required,max=64"`
	Purpose        string `json:"purpose" validate:"required,max=500"`
	Period         string `json:"period" validate:"omitempty,max=64"`
	Format         string `json:"format" validate:"omitempty,oneof=pdf docx"`
	DeliveryMethod string `json:"delivery_method" validate:"omitempty,oneof=portal email both"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

type resubmitRequest struct {
	Purpose string `json:"purpose" validate:"omitempty,max=500"`
	Period  string `json:"period" validate:"omitempty,max=64"`
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var body eligibilityRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	result, err := h.service.CheckEligibility(r.Context(), actor, DocumentType(body.DocumentType))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var body submitRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, submitScope); err != nil {
			h.respondError(w, err)
			return
		}
	}
	req, err := h.service.Submit(r.Context(), actor, SubmitInput{
		DocumentType:   DocumentType(body.DocumentType),
		Purpose:        body.Purpose,
		Period:         body.Period,
		Format:         Format(body.Format),
		DeliveryMethod: DeliveryMethod(body.DeliveryMethod),
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(context.WithoutCancel(r.Context()), key); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewView(req, h.service.now()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := QueueFilter{
		Search: q.Get("search"),
		Status: Status(strings.TrimSpace(q.Get("status"))),
		Health: sla.Health(strings.TrimSpace(q.Get("sla"))),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	views, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views, "total": len(views)})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	metrics, err := h.service.Summarize(r.Context(), actor, h.service.now())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	h.respondMutation(w, func() (Request, error) { return h.service.Approve(r.Context(), actor, id) })
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var body reasonRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondMutation(w, func() (Request, error) { return h.service.Reject(r.Context(), actor, id, body.Reason) })
}

func (h *Handler) handleRequestChanges(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var body commentRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondMutation(w, func() (Request, error) { return h.service.RequestChanges(r.Context(), actor, id, body.Comment) })
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var body resubmitRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
			h.respondError(w, err)
			return
		}
	}
	h.respondMutation(w, func() (Request, error) {
		return h.service.Resubmit(r.Context(), actor, id, ResubmitInput{Purpose: body.Purpose, Period: body.Period})
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	h.respondMutation(w, func() (Request, error) { return h.service.StartProcessing(r.Context(), actor, id) })
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	h.respondMutation(w, func() (Request, error) { return h.service.Complete(r.Context(), actor, id) })
}

func (h *Handler) respondMutation(w http.ResponseWriter, fn func() (Request, error)) {
	req, err := fn()
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewView(req, h.service.now()))
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return rbac.Principal{}, false
	}
	return p, true
}

func (h *Handler) principalAndID(w http.ResponseWriter, r *http.Request) (rbac.Principal, uuid.UUID, bool) {
	p, ok := h.principal(w, r)
	if !ok {
		return rbac.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return rbac.Principal{}, uuid.Nil, false
	}
	return p, id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	mapped := mapError(err)
	if errors.Is(mapped, errUnmapped) {
		h.logger.Error("documents request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

var errUnmapped = errors.New("unmapped")

func mapError(err error) error {
	switch {
	case errors.Is(err, httpx.ErrValidation):
		return err
	case errors.Is(err, ErrNotFound):
		return httpx.As(httpx.ErrNotFound, err)
	case errors.Is(err, rbac.ErrPolicyDenied):
		return httpx.As(httpx.ErrForbidden, err)
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.As(httpx.ErrConflict, err)
	case errors.Is(err, ErrMissingRequiredField), errors.Is(err, ErrNotEligible):
		return httpx.As(httpx.ErrUnprocessable, err)
	case errors.Is(err, ErrValidation):
		return httpx.As(httpx.ErrValidation, err)
	}
	return httpx.As(errUnmapped, err)
}
