package projects

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/platform/httpx"
	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/teams"
)

// Handler exposes team projects over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds the projects handler.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Use(h.guard.Require(rbac.ActionRead, rbac.ResourceProject))
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

type createRequest struct {
	TeamID          string   `json:"team_id" validate:"required,uuid"`
	Name            string   `json:"name" validate:"required,max=200"`
	Description     string   `json:"description" validate:"max=2000"`
	Status          string   `json:"status" validate:"omitempty,oneof=planning in_progress on_hold completed cancelled"`
	Priority        string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	StartDate       string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Completion      int      `json:"completion_percentage" validate:"min=0,max=100"`
	AssignedMembers []string `json:"assigned_members" validate:"max=200,dive,uuid"`
	Tags            []string `json:"tags" validate:"max=20,dive,max=40"`
}

type updateRequest struct {
	Name            *string  `json:"name" validate:"omitempty,max=200"`
	Description     *string  `json:"description" validate:"omitempty,max=2000"`
	Status          *string  `json:"status" validate:"omitempty,oneof=planning in_progress on_hold completed cancelled"`
	Priority        *string  `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	StartDate       *string  `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         *string  `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Completion      *int     `json:"completion_percentage" validate:"omitempty,min=0,max=100"`
	AssignedMembers []string `json:"assigned_members" validate:"omitempty,max=200,dive,uuid"`
	Tags            []string `json:"tags" validate:"omitempty,max=20,dive,max=40"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	teamID, err := uuid.Parse(r.URL.Query().Get("team_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "team_id is required")
		return
	}
	projects, err := h.service.List(r.Context(), actor, Filters{TeamID: teamID, Status: Status(r.URL.Query().Get("status"))})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if projects == nil {
		projects = []Project{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": projects, "total": len(projects)})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var body createRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	project, err := h.service.Create(r.Context(), actor, CreateInput{
		TeamID:          uuid.MustParse(body.TeamID),
		Name:            body.Name,
		Description:     body.Description,
		Status:          Status(body.Status),
		Priority:        Priority(body.Priority),
		StartDate:       parseDate(body.StartDate),
		EndDate:         parseDate(body.EndDate),
		Completion:      body.Completion,
		AssignedMembers: parseIDs(body.AssignedMembers),
		Tags:            body.Tags,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, project)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	project, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var body updateRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	input := UpdateInput{
		Name:        body.Name,
		Description: body.Description,
		Completion:  body.Completion,
		Tags:        body.Tags,
	}
	if body.Status != nil {
		status := Status(*body.Status)
		input.Status = &status
	}
	if body.Priority != nil {
		priority := Priority(*body.Priority)
		input.Priority = &priority
	}
	if body.StartDate != nil {
		input.StartDate = parseDate(*body.StartDate)
	}
	if body.EndDate != nil {
		input.EndDate = parseDate(*body.EndDate)
	}
	if body.AssignedMembers != nil {
		input.AssignedMembers = parseIDs(body.AssignedMembers)
	}
	project, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseDate expects input already checked by the datetime validator.
func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, uuid.MustParse(s))
	}
	return ids
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid project id")
		return rbac.Principal{}, uuid.Nil, false
	}
	return p, id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	case errors.Is(err, ErrNotFound), errors.Is(err, teams.ErrNotFound):
		httpx.RespondError(w, httpx.As(httpx.ErrNotFound, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.As(httpx.ErrValidation, err))
	case errors.Is(err, rbac.ErrPolicyDenied):
		httpx.RespondError(w, httpx.As(httpx.ErrForbidden, err))
	default:
		h.logger.Error("projects request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
