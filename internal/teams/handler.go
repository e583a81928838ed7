package teams

import (
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
)

const maxImportBytes = 1 << 20

// Handler exposes team management over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds the teams handler.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers team routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/teams", func(r chi.Router) {
		r.With(h.guard.Require(rbac.ActionRead, rbac.ResourceTeam)).Get("/", h.handleList)
		r.With(h.guard.Require(rbac.ActionCreate, rbac.ResourceTeam)).Post("/", h.handleCreate)
		r.With(h.guard.Require(rbac.ActionExport, rbac.ResourceTeam)).Get("/export.csv", h.handleExport)
		r.Route("/{id}", func(r chi.Router) {
			r.With(h.guard.Require(rbac.ActionRead, rbac.ResourceTeam)).Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.With(h.guard.Require(rbac.ActionDelete, rbac.ResourceTeam)).Delete("/", h.handleDelete)
			r.With(h.guard.Require(rbac.ActionRead, rbac.ResourceMember)).Get("/members", h.handleMembers)
			r.Post("/members", h.handleAddMember)
			r.With(h.guard.Require(rbac.ActionExport, rbac.ResourceMember)).Get("/members/export.csv", h.handleExportMembers)
			r.With(h.guard.Require(rbac.ActionBulkImport, rbac.ResourceMember)).Post("/members/import", h.handleImport)
			r.Patch("/members/{memberID}", h.handleUpdateMember)
			r.Post("/members/{memberID}/transfer", h.handleTransfer)
			r.Delete("/members/{memberID}", h.handleRemoveMember)
		})
	})
}

type createRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Department  string   `json:"department" validate:"required,max=120"`
	ManagerID   string   `json:"manager_id" validate:"required,uuid"`
	Description string   `json:"description" validate:"max=1000"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=40"`
}

type updateRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=120"`
	Department  *string  `json:"department" validate:"omitempty,max=120"`
	ManagerID   *string  `json:"manager_id" validate:"omitempty,uuid"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=40"`
	IsActive    *bool    `json:"is_active"`
}

type updateMemberRequest struct {
	RoleInTeam *string `json:"role_in_team" validate:"omitempty,oneof=lead member contributor"`
	Status     *string `json:"status" validate:"omitempty,oneof=active on_leave inactive"`
	IsPrimary  *bool   `json:"is_primary"`
}

type transferRequest struct {
	ToTeamID string `json:"to_team_id" validate:"required,uuid"`
	Reason   string `json:"reason" validate:"max=500"`
}

type addMemberRequest struct {
	EmployeeID string `json:"employee_id" validate:"required,uuid"`
	RoleInTeam string `json:"role_in_team" validate:"omitempty,oneof=lead member contributor"`
	IsPrimary  bool   `json:"is_primary"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := Filters{
		Department: strings.TrimSpace(q.Get("department")),
		Search:     q.Get("search"),
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "active must be a boolean")
			return
		}
		filters.IsActive = &active
	}
	if raw := q.Get("manager_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid manager_id")
			return
		}
		filters.ManagerID = id
	}
	if raw := q.Get("tags"); raw != "" {
		filters.Tags = strings.Split(raw, ",")
	}
	teams, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if teams == nil {
		teams = []Team{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": teams, "total": len(teams)})
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
	team, err := h.service.Create(r.Context(), actor, CreateInput{
		Name:        body.Name,
		Department:  body.Department,
		ManagerID:   uuid.MustParse(body.ManagerID),
		Description: body.Description,
		Tags:        body.Tags,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, team)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	team, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, team)
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
		Department:  body.Department,
		Description: body.Description,
		Tags:        body.Tags,
		IsActive:    body.IsActive,
	}
	if body.ManagerID != nil {
		managerID := uuid.MustParse(*body.ManagerID)
		input.ManagerID = &managerID
	}
	team, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, team)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	team, err := h.service.Delete(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, team)
}

func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": members})
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var body addMemberRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	member, err := h.service.AddMember(r.Context(), actor, id, AddMemberInput{
		EmployeeID: uuid.MustParse(body.EmployeeID),
		RoleInTeam: MemberRole(body.RoleInTeam),
		IsPrimary:  body.IsPrimary,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, teamID, memberID, ok := h.principalAndMember(w, r)
	if !ok {
		return
	}
	member, err := h.service.RemoveMember(r.Context(), actor, teamID, memberID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	actor, teamID, memberID, ok := h.principalAndMember(w, r)
	if !ok {
		return
	}
	var body updateMemberRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	var input UpdateMemberInput
	if body.RoleInTeam != nil {
		role := MemberRole(*body.RoleInTeam)
		input.RoleInTeam = &role
	}
	if body.Status != nil {
		status := MemberStatus(*body.Status)
		input.Status = &status
	}
	input.IsPrimary = body.IsPrimary
	member, err := h.service.UpdateMember(r.Context(), actor, teamID, memberID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	actor, teamID, memberID, ok := h.principalAndMember(w, r)
	if !ok {
		return
	}
	var body transferRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	member, err := h.service.TransferMember(r.Context(), actor, teamID, memberID, TransferInput{
		ToTeamID: uuid.MustParse(body.ToTeamID),
		Reason:   body.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	actor, teamID, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	dryRun := true
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dry_run must be a boolean")
			return
		}
		dryRun = parsed
	}
	rows, err := ParseImportCSV(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.respondError(w, err)
		return
	}
	report, err := h.service.BulkImportMembers(r.Context(), actor, teamID, rows, dryRun)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := Filters{Department: strings.TrimSpace(q.Get("department")), Search: q.Get("search")}
	teams, err := h.service.Export(r.Context(), actor, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	body, err := WriteTeamsCSV(teams)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeCSV(w, "teams.csv", body)
}

func (h *Handler) handleExportMembers(w http.ResponseWriter, r *http.Request) {
	actor, teamID, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	members, err := h.service.ExportMembers(r.Context(), actor, teamID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	body, err := WriteMembersCSV(members)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeCSV(w, "team-members.csv", body)
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) principalAndMember(w http.ResponseWriter, r *http.Request) (rbac.Principal, uuid.UUID, uuid.UUID, bool) {
	p, teamID, ok := h.principalAndID(w, r)
	if !ok {
		return rbac.Principal{}, uuid.Nil, uuid.Nil, false
	}
	memberID, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid member id")
		return rbac.Principal{}, uuid.Nil, uuid.Nil, false
	}
	return p, teamID, memberID, true
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid team id")
		return rbac.Principal{}, uuid.Nil, false
	}
	return p, id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.As(httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.As(httpx.ErrDuplicate, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.As(httpx.ErrValidation, err))
	case errors.Is(err, rbac.ErrPolicyDenied):
		httpx.RespondError(w, httpx.As(httpx.ErrForbidden, err))
	default:
		h.logger.Error("teams request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
