package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/platform/httpx"
	"github.com/hinfinity/hrdesk/internal/rbac"
)

// Handler manages user directory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/me", h.me)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleHR, rbac.RoleManager))
			r.Get("/", h.listUsers)
		})
		r.Get("/{id}", h.getUser)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleHR))
			r.Post("/{id}/role", h.changeRole)
			r.Post("/{id}/deactivate", h.deactivate)
		})
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin hr manager employee"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, err := h.service.Get(r.Context(), actor, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	users, pagination, err := h.service.List(r.Context(), actor, ListFilters{
		Role:       rbac.Role(q.Get("role")),
		Department: q.Get("department"),
		Search:     q.Get("search"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": users, "pagination": pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var body roleRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &body); err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.ChangeRole(r.Context(), actor, id, rbac.Role(body.Role))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Deactivate(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) principalAndID(w http.ResponseWriter, r *http.Request) (rbac.Principal, uuid.UUID, bool) {
	actor, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return rbac.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return rbac.Principal{}, uuid.Nil, false
	}
	return actor, id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.As(httpx.ErrNotFound, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.As(httpx.ErrValidation, err))
	case errors.Is(err, rbac.ErrPolicyDenied):
		httpx.RespondError(w, httpx.As(httpx.ErrForbidden, err))
	default:
		h.logger.Error("users request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
