package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/eligibility"
	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
	Update(ctx context.Context, user User) error
}

// Service handles directory lookups and role administration.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// FindPrincipal resolves an identity for the HTTP principal middleware.
func (s *Service) FindPrincipal(ctx context.Context, id uuid.UUID) (rbac.Principal, error) {
	user, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return rbac.Principal{}, rbac.ErrPrincipalNotFound
	}
	if err != nil {
		return rbac.Principal{}, err
	}
	return user.Principal(), nil
}

// Facts returns the employee attributes eligibility rules evaluate.
func (s *Service) Facts(ctx context.Context, employeeID uuid.UUID) (eligibility.Facts, error) {
	user, err := s.repo.Get(ctx, employeeID)
	if err != nil {
		return eligibility.Facts{}, err
	}
	return eligibility.Facts{
		TenureDays:       user.TenureDays(s.now()),
		EmploymentStatus: user.EmploymentStatus,
		Confidential:     user.Confidential,
		Attributes: map[string]any{
			"department": user.Department,
			"role":       string(user.Role),
		},
	}, nil
}

// Get returns a single user. Employees may only read themselves.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id uuid.UUID) (User, error) {
	if actor.Role == rbac.RoleEmployee && actor.ID != id {
		return User{}, ErrNotFound
	}
	if !actor.Role.Valid() {
		return User{}, &rbac.DeniedError{Role: actor.Role, Action: rbac.ActionRead, Resource: rbac.ResourceMember}
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of users matching filters.
func (s *Service) List(ctx context.Context, actor rbac.Principal, filters ListFilters) ([]User, shared.Pagination, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceMember, nil); err != nil {
		return nil, shared.Pagination{}, err
	}
	if actor.Role == rbac.RoleEmployee {
		return nil, shared.Pagination{}, &rbac.DeniedError{Role: actor.Role, Action: rbac.ActionRead, Resource: rbac.ResourceMember}
	}
	if filters.Role != "" && !filters.Role.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown role %q", ErrValidation, filters.Role)
	}
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	users, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// ChangeRole assigns a new role. Only admin and hr may do this and nobody
// may change their own role.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Principal, id uuid.UUID, role rbac.Role) (User, error) {
	if err := requireAdministrator(actor, rbac.ActionUpdate); err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if actor.ID == id {
		return User{}, fmt.Errorf("%w: cannot change own role", ErrValidation)
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if before.Role == role {
		return before, nil
	}
	after := before
	after.Role = role
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, after); err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "role_changed", id, before, after)
	return after, nil
}

// Deactivate marks a user inactive. Users are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, actor rbac.Principal, id uuid.UUID) (User, error) {
	if err := requireAdministrator(actor, rbac.ActionDelete); err != nil {
		return User{}, err
	}
	if actor.ID == id {
		return User{}, fmt.Errorf("%w: cannot deactivate yourself", ErrValidation)
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !before.IsActive {
		return before, nil
	}
	after := before
	after.IsActive = false
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, after); err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "deactivate", id, before, after)
	return after, nil
}

func requireAdministrator(actor rbac.Principal, action rbac.Action) error {
	switch actor.Role {
	case rbac.RoleAdmin, rbac.RoleHR:
		return nil
	}
	return &rbac.DeniedError{Role: actor.Role, Action: action, Resource: rbac.ResourceMember}
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Principal, action string, id uuid.UUID, before, after User) {
	if s.audit == nil {
		return
	}
	rec := shared.AuditRecord{
		ActorID:      actor.ID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   id.String(),
		Before:       before,
		After:        after,
		At:           s.now().UTC(),
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.String("resource_id", rec.ResourceID), slog.Any("error", err))
	}
}
