package teams

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
)

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	CreateTeam(ctx context.Context, team Team) error
	GetTeam(ctx context.Context, id uuid.UUID) (Team, error)
	UpdateTeam(ctx context.Context, team Team) error
	ListTeams(ctx context.Context, filters Filters) ([]Team, error)
	ActiveTeamIDs(ctx context.Context, employeeID uuid.UUID) ([]uuid.UUID, error)
	AddMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, id uuid.UUID) (Member, error)
	UpdateMember(ctx context.Context, member Member) error
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error)
	// TransferMember retires from and inserts to atomically.
	TransferMember(ctx context.Context, from, to Member) error
}

// Service manages teams and memberships.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the team service.
func NewService(repo RepositoryPort, audit shared.AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Create registers a new active team.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, input CreateInput) (Team, error) {
	if err := rbac.Authorize(actor, rbac.ActionCreate, rbac.ResourceTeam, nil); err != nil {
		return Team{}, err
	}
	name := strings.TrimSpace(input.Name)
	slug := Slugify(name)
	if name == "" || slug == "" {
		return Team{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if strings.TrimSpace(input.Department) == "" {
		return Team{}, fmt.Errorf("%w: department required", ErrValidation)
	}
	if input.ManagerID == uuid.Nil {
		return Team{}, fmt.Errorf("%w: manager required", ErrValidation)
	}
	now := s.now().UTC()
	team := Team{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Department:  strings.TrimSpace(input.Department),
		ManagerID:   input.ManagerID,
		Description: strings.TrimSpace(input.Description),
		Tags:        normalizeTags(input.Tags),
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return Team{}, err
	}
	s.recordAudit(ctx, actor, "create", rbac.ResourceTeam, team.ID, nil, team)
	return team, nil
}

// Get returns a team visible to actor.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id uuid.UUID) (Team, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceTeam, nil); err != nil {
		return Team{}, err
	}
	team, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if actor.Role == rbac.RoleEmployee {
		ids, err := s.repo.ActiveTeamIDs(ctx, actor.ID)
		if err != nil {
			return Team{}, err
		}
		if !containsID(ids, id) {
			return Team{}, ErrNotFound
		}
	}
	return team, nil
}

// List returns teams matching filters. Employees only see teams they are an
// active member of.
func (s *Service) List(ctx context.Context, actor rbac.Principal, filters Filters) ([]Team, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceTeam, nil); err != nil {
		return nil, err
	}
	filters.Search = strings.TrimSpace(filters.Search)
	filters.Tags = normalizeTags(filters.Tags)
	filters.TeamIDs = nil
	if actor.Role == rbac.RoleEmployee {
		ids, err := s.repo.ActiveTeamIDs(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []Team{}, nil
		}
		filters.TeamIDs = ids
	}
	return s.repo.ListTeams(ctx, filters)
}

// Update applies changes. Managers may only update teams they manage and
// may neither reassign the manager nor toggle activation.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id uuid.UUID, input UpdateInput) (Team, error) {
	before, err := s.manageable(ctx, actor, id, rbac.ActionUpdate, rbac.ResourceTeam)
	if err != nil {
		return Team{}, err
	}
	if input.ManagerID != nil && *input.ManagerID != before.ManagerID && !canAssignManager(actor.Role) {
		return Team{}, &rbac.DeniedError{Role: actor.Role, Action: rbac.ActionManage, Resource: rbac.ResourceTeam}
	}
	if input.IsActive != nil && *input.IsActive != before.IsActive {
		// deactivation is a soft delete, reactivation re-creates
		action := rbac.ActionDelete
		if *input.IsActive {
			action = rbac.ActionCreate
		}
		if err := rbac.Authorize(actor, action, rbac.ResourceTeam, nil); err != nil {
			return Team{}, err
		}
	}
	after := before
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if Slugify(name) == "" {
			return Team{}, fmt.Errorf("%w: name required", ErrValidation)
		}
		after.Name = name
		after.Slug = Slugify(name)
	}
	if input.Department != nil {
		after.Department = strings.TrimSpace(*input.Department)
	}
	if input.ManagerID != nil {
		if *input.ManagerID == uuid.Nil {
			return Team{}, fmt.Errorf("%w: manager required", ErrValidation)
		}
		after.ManagerID = *input.ManagerID
	}
	if input.Description != nil {
		after.Description = strings.TrimSpace(*input.Description)
	}
	if input.Tags != nil {
		after.Tags = normalizeTags(input.Tags)
	}
	if input.IsActive != nil {
		after.IsActive = *input.IsActive
	}
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTeam(ctx, after); err != nil {
		return Team{}, err
	}
	s.recordAudit(ctx, actor, "update", rbac.ResourceTeam, id, before, after)
	return after, nil
}

// Delete deactivates a team. Teams are never hard-deleted.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id uuid.UUID) (Team, error) {
	if err := rbac.Authorize(actor, rbac.ActionDelete, rbac.ResourceTeam, nil); err != nil {
		return Team{}, err
	}
	before, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	after := before
	after.IsActive = false
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTeam(ctx, after); err != nil {
		return Team{}, err
	}
	s.recordAudit(ctx, actor, "delete", rbac.ResourceTeam, id, before, after)
	return after, nil
}

// Members lists memberships of a team.
func (s *Service) Members(ctx context.Context, actor rbac.Principal, teamID uuid.UUID) ([]Member, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceMember, nil); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, actor, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

// AddMember enrols an employee in a team.
func (s *Service) AddMember(ctx context.Context, actor rbac.Principal, teamID uuid.UUID, input AddMemberInput) (Member, error) {
	if _, err := s.manageable(ctx, actor, teamID, rbac.ActionCreate, rbac.ResourceMember); err != nil {
		return Member{}, err
	}
	if input.EmployeeID == uuid.Nil {
		return Member{}, fmt.Errorf("%w: employee required", ErrValidation)
	}
	role := input.RoleInTeam
	if role == "" {
		role = RoleMember
	}
	if !validRole(role) {
		return Member{}, fmt.Errorf("%w: unknown team role %q", ErrValidation, role)
	}
	member := Member{
		ID:         uuid.New(),
		TeamID:     teamID,
		EmployeeID: input.EmployeeID,
		RoleInTeam: role,
		JoinedOn:   s.now().UTC(),
		Status:     MemberActive,
		IsPrimary:  input.IsPrimary,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return Member{}, err
	}
	s.recordAudit(ctx, actor, "create", rbac.ResourceMember, member.ID, nil, member)
	return member, nil
}

// RemoveMember marks a membership inactive.
func (s *Service) RemoveMember(ctx context.Context, actor rbac.Principal, teamID, memberID uuid.UUID) (Member, error) {
	before, err := s.memberOf(ctx, teamID, memberID)
	if err != nil {
		return Member{}, err
	}
	if _, err := s.manageable(ctx, actor, before.TeamID, rbac.ActionUpdate, rbac.ResourceMember); err != nil {
		return Member{}, err
	}
	if before.Status == MemberInactive {
		return before, nil
	}
	after := before
	after.Status = MemberInactive
	if err := s.repo.UpdateMember(ctx, after); err != nil {
		return Member{}, err
	}
	s.recordAudit(ctx, actor, "update", rbac.ResourceMember, memberID, before, after)
	return after, nil
}

// UpdateMember changes role, status or primary flag of a membership.
func (s *Service) UpdateMember(ctx context.Context, actor rbac.Principal, teamID, memberID uuid.UUID, input UpdateMemberInput) (Member, error) {
	before, err := s.memberOf(ctx, teamID, memberID)
	if err != nil {
		return Member{}, err
	}
	if _, err := s.manageable(ctx, actor, teamID, rbac.ActionUpdate, rbac.ResourceMember); err != nil {
		return Member{}, err
	}
	after := before
	if input.RoleInTeam != nil {
		if !validRole(*input.RoleInTeam) {
			return Member{}, fmt.Errorf("%w: unknown team role %q", ErrValidation, *input.RoleInTeam)
		}
		after.RoleInTeam = *input.RoleInTeam
	}
	if input.Status != nil {
		switch *input.Status {
		case MemberActive, MemberOnLeave, MemberInactive:
		default:
			return Member{}, fmt.Errorf("%w: unknown member status %q", ErrValidation, *input.Status)
		}
		after.Status = *input.Status
	}
	if input.IsPrimary != nil {
		after.IsPrimary = *input.IsPrimary
	}
	if after == before {
		return before, nil
	}
	if err := s.repo.UpdateMember(ctx, after); err != nil {
		return Member{}, err
	}
	s.recordAudit(ctx, actor, "update", rbac.ResourceMember, memberID, before, after)
	return after, nil
}

// TransferMember moves an active membership to another team. The old
// membership is retired and a new one keeps the role and primary flag.
func (s *Service) TransferMember(ctx context.Context, actor rbac.Principal, fromTeamID, memberID uuid.UUID, input TransferInput) (Member, error) {
	before, err := s.memberOf(ctx, fromTeamID, memberID)
	if err != nil {
		return Member{}, err
	}
	if input.ToTeamID == uuid.Nil || input.ToTeamID == fromTeamID {
		return Member{}, fmt.Errorf("%w: target team must differ from source", ErrValidation)
	}
	if before.Status == MemberInactive {
		return Member{}, fmt.Errorf("%w: membership is inactive", ErrValidation)
	}
	if _, err := s.manageable(ctx, actor, fromTeamID, rbac.ActionUpdate, rbac.ResourceMember); err != nil {
		return Member{}, err
	}
	target, err := s.manageable(ctx, actor, input.ToTeamID, rbac.ActionCreate, rbac.ResourceMember)
	if err != nil {
		return Member{}, err
	}
	if !target.IsActive {
		return Member{}, fmt.Errorf("%w: target team is inactive", ErrValidation)
	}
	retired := before
	retired.Status = MemberInactive
	moved := Member{
		ID:         uuid.New(),
		TeamID:     target.ID,
		EmployeeID: before.EmployeeID,
		RoleInTeam: before.RoleInTeam,
		JoinedOn:   s.now().UTC(),
		Status:     MemberActive,
		IsPrimary:  before.IsPrimary,
	}
	if err := s.repo.TransferMember(ctx, retired, moved); err != nil {
		return Member{}, err
	}
	s.recordAudit(ctx, actor, "transfer", rbac.ResourceMember, moved.ID, before, map[string]any{
		"member": moved,
		"reason": strings.TrimSpace(input.Reason),
	})
	s.logger.Info("member transferred",
		slog.String("employee_id", before.EmployeeID.String()),
		slog.String("from_team", fromTeamID.String()),
		slog.String("to_team", target.ID.String()))
	return moved, nil
}

// BulkImportMembers validates rows and, unless dryRun, enrols every valid
// row. Row failures are reported and never abort the batch.
func (s *Service) BulkImportMembers(ctx context.Context, actor rbac.Principal, teamID uuid.UUID, rows []ImportRow, dryRun bool) (ImportReport, error) {
	if !rbac.CanBulkImport(actor.Role) {
		return ImportReport{}, &rbac.DeniedError{Role: actor.Role, Action: rbac.ActionBulkImport, Resource: rbac.ResourceMember}
	}
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return ImportReport{}, err
	}
	if !team.IsActive {
		return ImportReport{}, fmt.Errorf("%w: team is inactive", ErrValidation)
	}
	existing, err := s.repo.ListMembers(ctx, teamID)
	if err != nil {
		return ImportReport{}, err
	}
	seen := make(map[uuid.UUID]int, len(existing)+len(rows))
	for _, m := range existing {
		if m.Status == MemberActive {
			seen[m.EmployeeID] = 0
		}
	}

	report := ImportReport{DryRun: dryRun, Errors: []RowError{}}
	for _, row := range rows {
		report.Processed++
		role := row.RoleInTeam
		if role == "" {
			role = RoleMember
		}
		switch {
		case row.Problem != "":
			report.fail(row.Line, row.Problem)
			continue
		case row.EmployeeID == uuid.Nil:
			report.fail(row.Line, "employee_id required")
			continue
		case !validRole(role):
			report.fail(row.Line, fmt.Sprintf("unknown team role %q", role))
			continue
		}
		if line, dup := seen[row.EmployeeID]; dup {
			if line == 0 {
				report.fail(row.Line, "employee already in team")
			} else {
				report.fail(row.Line, fmt.Sprintf("duplicate of row %d", line))
			}
			continue
		}
		seen[row.EmployeeID] = row.Line
		report.Valid++
		if dryRun {
			continue
		}
		member := Member{
			ID:         uuid.New(),
			TeamID:     teamID,
			EmployeeID: row.EmployeeID,
			RoleInTeam: role,
			JoinedOn:   s.now().UTC(),
			Status:     MemberActive,
			IsPrimary:  row.IsPrimary,
		}
		if err := s.repo.AddMember(ctx, member); err != nil {
			report.Valid--
			report.fail(row.Line, err.Error())
			continue
		}
		report.Created++
	}
	if !dryRun && report.Created > 0 {
		s.recordAudit(ctx, actor, "bulk_import", rbac.ResourceMember, teamID, nil, report)
	}
	return report, nil
}

// Export returns the teams matching filters for a CSV download.
func (s *Service) Export(ctx context.Context, actor rbac.Principal, filters Filters) ([]Team, error) {
	if !rbac.CanExport(actor.Role) {
		return nil, &rbac.DeniedError{Role: actor.Role, Action: rbac.ActionExport, Resource: rbac.ResourceTeam}
	}
	return s.List(ctx, actor, filters)
}

// ExportMembers returns every membership of a team for a CSV download.
func (s *Service) ExportMembers(ctx context.Context, actor rbac.Principal, teamID uuid.UUID) ([]Member, error) {
	if err := rbac.Authorize(actor, rbac.ActionExport, rbac.ResourceMember, nil); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

func (s *Service) memberOf(ctx context.Context, teamID, memberID uuid.UUID) (Member, error) {
	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return Member{}, err
	}
	if m.TeamID != teamID {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func canAssignManager(role rbac.Role) bool {
	return role == rbac.RoleAdmin || role == rbac.RoleHR
}

func validRole(role MemberRole) bool {
	switch role {
	case RoleLead, RoleMember, RoleContributor:
		return true
	}
	return false
}

// manageable loads the team and checks both the matrix grant and, for
// managers, that the actor is the team's manager of record.
func (s *Service) manageable(ctx context.Context, actor rbac.Principal, teamID uuid.UUID, action rbac.Action, resource rbac.ResourceType) (Team, error) {
	if err := rbac.Authorize(actor, action, resource, nil); err != nil {
		return Team{}, err
	}
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return Team{}, err
	}
	if actor.Role == rbac.RoleManager && !rbac.CanManageTeam(actor, team.ManagerID) {
		return Team{}, &rbac.DeniedError{Role: actor.Role, Action: action, Resource: resource}
	}
	return team, nil
}

func (s *Service) recordAudit(ctx context.Context, actor rbac.Principal, action string, resource rbac.ResourceType, id uuid.UUID, before, after any) {
	if s.audit == nil {
		return
	}
	rec := shared.AuditRecord{
		ActorID:      actor.ID,
		Action:       action,
		ResourceType: string(resource),
		ResourceID:   id.String(),
		Before:       before,
		After:        after,
		At:           s.now().UTC(),
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.String("resource_id", rec.ResourceID), slog.Any("error", err))
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
