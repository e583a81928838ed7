package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
	"github.com/hinfinity/hrdesk/internal/teams"
)

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, p Project) error
	Get(ctx context.Context, id uuid.UUID) (Project, error)
	Update(ctx context.Context, p Project) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters Filters) ([]Project, error)
}

// TeamReader resolves a team as seen by actor. Employees only see teams they
// belong to.
type TeamReader interface {
	Get(ctx context.Context, actor rbac.Principal, id uuid.UUID) (teams.Team, error)
}

// Service manages team projects.
type Service struct {
	repo   RepositoryPort
	teams  TeamReader
	audit  shared.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the project service.
func NewService(repo RepositoryPort, teamReader TeamReader, audit shared.AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, teams: teamReader, audit: audit, logger: logger, now: time.Now}
}

// List returns the projects of a team, newest first.
func (s *Service) List(ctx context.Context, actor rbac.Principal, filters Filters) ([]Project, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceProject, nil); err != nil {
		return nil, err
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filters.Status)
	}
	if _, err := s.teams.Get(ctx, actor, filters.TeamID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filters)
}

// Get returns one project when its team is visible to actor.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id uuid.UUID) (Project, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceProject, nil); err != nil {
		return Project{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if _, err := s.teams.Get(ctx, actor, p.TeamID); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Create adds a project to an active team.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, input CreateInput) (Project, error) {
	team, err := s.ownedTeam(ctx, actor, input.TeamID, rbac.ActionCreate)
	if err != nil {
		return Project{}, err
	}
	if !team.IsActive {
		return Project{}, fmt.Errorf("%w: team is inactive", ErrValidation)
	}
	now := s.now().UTC()
	p := Project{
		ID:              uuid.New(),
		TeamID:          team.ID,
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Status:          input.Status,
		Priority:        input.Priority,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		Completion:      input.Completion,
		AssignedMembers: dedupeIDs(input.AssignedMembers),
		Tags:            normalizeTags(input.Tags),
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.Status == "" {
		p.Status = StatusPlanning
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if err := validate(p); err != nil {
		return Project{}, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, actor, "create", p.ID, nil, p)
	return p, nil
}

// Update applies changes. Managers may only update projects of teams they
// manage.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id uuid.UUID, input UpdateInput) (Project, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if _, err := s.ownedTeam(ctx, actor, before.TeamID, rbac.ActionUpdate); err != nil {
		return Project{}, err
	}
	after := before
	if input.Name != nil {
		after.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		after.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		after.Status = *input.Status
	}
	if input.Priority != nil {
		after.Priority = *input.Priority
	}
	if input.StartDate != nil {
		after.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		after.EndDate = input.EndDate
	}
	if input.Completion != nil {
		after.Completion = *input.Completion
	}
	if input.AssignedMembers != nil {
		after.AssignedMembers = dedupeIDs(input.AssignedMembers)
	}
	if input.Tags != nil {
		after.Tags = normalizeTags(input.Tags)
	}
	if err := validate(after); err != nil {
		return Project{}, err
	}
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, after); err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, actor, "update", id, before, after)
	return after, nil
}

// Delete removes a project.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id uuid.UUID) error {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.ownedTeam(ctx, actor, before.TeamID, rbac.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "delete", id, before, nil)
	return nil
}

// ownedTeam checks the project grant and, for managers, that actor is the
// team's manager of record.
func (s *Service) ownedTeam(ctx context.Context, actor rbac.Principal, teamID uuid.UUID, action rbac.Action) (teams.Team, error) {
	if err := rbac.Authorize(actor, action, rbac.ResourceProject, nil); err != nil {
		return teams.Team{}, err
	}
	team, err := s.teams.Get(ctx, actor, teamID)
	if err != nil {
		return teams.Team{}, err
	}
	if !rbac.CanManageTeam(actor, team.ManagerID) {
		return teams.Team{}, &rbac.DeniedError{Role: actor.Role, Action: action, Resource: rbac.ResourceProject}
	}
	return team, nil
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Principal, action string, id uuid.UUID, before, after any) {
	if s.audit == nil {
		return
	}
	rec := shared.AuditRecord{
		ActorID:      actor.ID,
		Action:       action,
		ResourceType: string(rbac.ResourceProject),
		ResourceID:   id.String(),
		Before:       before,
		After:        after,
		At:           s.now().UTC(),
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.String("resource_id", rec.ResourceID), slog.Any("error", err))
	}
}

func validate(p Project) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name required", ErrValidation)
	case !p.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrValidation, p.Status)
	case !p.Priority.Valid():
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, p.Priority)
	case p.Completion < 0 || p.Completion > 100:
		return fmt.Errorf("%w: completion must be between 0 and 100", ErrValidation)
	case p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate):
		return fmt.Errorf("%w: end date before start date", ErrValidation)
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
