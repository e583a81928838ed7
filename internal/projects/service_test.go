package projects

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
	"github.com/hinfinity/hrdesk/internal/teams"
)

type memoryProjectRepo struct {
	mu       sync.Mutex
	projects map[uuid.UUID]Project
}

func newMemoryProjectRepo() *memoryProjectRepo {
	return &memoryProjectRepo{projects: map[uuid.UUID]Project{}}
}

func (r *memoryProjectRepo) Create(ctx context.Context, p Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p
	return nil
}

func (r *memoryProjectRepo) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryProjectRepo) Update(ctx context.Context, p Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return ErrNotFound
	}
	r.projects[p.ID] = p
	return nil
}

func (r *memoryProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

func (r *memoryProjectRepo) List(ctx context.Context, f Filters) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Project
	for _, p := range r.projects {
		if p.TeamID != f.TeamID || (f.Status != "" && p.Status != f.Status) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// stubTeams mirrors teams.Service.Get: employees only see their own teams.
type stubTeams struct {
	teams   map[uuid.UUID]teams.Team
	members map[uuid.UUID][]uuid.UUID
}

func (s stubTeams) Get(ctx context.Context, actor rbac.Principal, id uuid.UUID) (teams.Team, error) {
	team, ok := s.teams[id]
	if !ok {
		return teams.Team{}, teams.ErrNotFound
	}
	if actor.Role == rbac.RoleEmployee {
		for _, member := range s.members[id] {
			if member == actor.ID {
				return team, nil
			}
		}
		return teams.Team{}, teams.ErrNotFound
	}
	return team, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	records []shared.AuditRecord
}

func (a *recordingAudit) Record(ctx context.Context, rec shared.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

var (
	adminUser   = rbac.Principal{ID: uuid.New(), Name: "Ada Admin", Role: rbac.RoleAdmin, Active: true}
	hrUser      = rbac.Principal{ID: uuid.New(), Name: "Hana HR", Role: rbac.RoleHR, Active: true}
	managerUser = rbac.Principal{ID: uuid.New(), Name: "Mo Manager", Role: rbac.RoleManager, Active: true}
	otherMgr    = rbac.Principal{ID: uuid.New(), Name: "Olga Manager", Role: rbac.RoleManager, Active: true}
	staffUser   = rbac.Principal{ID: uuid.New(), Name: "Sam Staff", Role: rbac.RoleEmployee, Active: true}
	outsider    = rbac.Principal{ID: uuid.New(), Name: "Ola Outsider", Role: rbac.RoleEmployee, Active: true}

	teamID     = uuid.New()
	retiredID  = uuid.New()
	clockStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func newTestService() (*Service, *memoryProjectRepo, *recordingAudit) {
	repo := newMemoryProjectRepo()
	audit := &recordingAudit{}
	reader := stubTeams{
		teams: map[uuid.UUID]teams.Team{
			teamID:    {ID: teamID, Name: "Platform", ManagerID: managerUser.ID, IsActive: true},
			retiredID: {ID: retiredID, Name: "Legacy", ManagerID: managerUser.ID},
		},
		members: map[uuid.UUID][]uuid.UUID{teamID: {staffUser.ID}},
	}
	svc := NewService(repo, reader, audit, nil)
	tick := clockStart
	svc.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return svc, repo, audit
}

func TestCreateProjectDefaultsAndOwnership(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := context.Background()
	input := CreateInput{TeamID: teamID, Name: " Billing revamp ", Tags: []string{"Q3", "q3"}, AssignedMembers: []uuid.UUID{staffUser.ID, staffUser.ID, uuid.Nil}}

	_, err := svc.Create(ctx, staffUser, input)
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	_, err = svc.Create(ctx, otherMgr, input)
	var denied *rbac.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, rbac.ResourceProject, denied.Resource)

	p, err := svc.Create(ctx, managerUser, input)
	require.NoError(t, err)
	require.Equal(t, "Billing revamp", p.Name)
	require.Equal(t, StatusPlanning, p.Status)
	require.Equal(t, PriorityMedium, p.Priority)
	require.Equal(t, []string{"q3"}, p.Tags)
	require.Equal(t, []uuid.UUID{staffUser.ID}, p.AssignedMembers)
	require.Equal(t, managerUser.ID, p.CreatedBy)

	_, err = svc.Create(ctx, hrUser, CreateInput{TeamID: retiredID, Name: "Ghost"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, hrUser, CreateInput{TeamID: uuid.New(), Name: "Nowhere"})
	require.ErrorIs(t, err, teams.ErrNotFound)

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = svc.Create(ctx, hrUser, CreateInput{TeamID: teamID, Name: "Backwards", StartDate: &start, EndDate: &end})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, hrUser, CreateInput{TeamID: teamID, Name: "Overdone", Completion: 120})
	require.ErrorIs(t, err, ErrValidation)

	require.Len(t, audit.records, 1)
	require.Equal(t, string(rbac.ResourceProject), audit.records[0].ResourceType)
}

func TestListAndGetProjectsAreTeamScoped(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	first, err := svc.Create(ctx, managerUser, CreateInput{TeamID: teamID, Name: "First"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, managerUser, CreateInput{TeamID: teamID, Name: "Second", Status: StatusInProgress})
	require.NoError(t, err)

	list, err := svc.List(ctx, staffUser, Filters{TeamID: teamID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Second", list[0].Name)

	list, err = svc.List(ctx, hrUser, Filters{TeamID: teamID, Status: StatusInProgress})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.List(ctx, hrUser, Filters{TeamID: teamID, Status: "paused"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.List(ctx, outsider, Filters{TeamID: teamID})
	require.ErrorIs(t, err, teams.ErrNotFound)

	got, err := svc.Get(ctx, staffUser, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	_, err = svc.Get(ctx, outsider, first.ID)
	require.ErrorIs(t, err, teams.ErrNotFound)
}

func TestUpdateAndDeleteProject(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, managerUser, CreateInput{TeamID: teamID, Name: "Migration"})
	require.NoError(t, err)

	done := StatusCompleted
	full := 100
	_, err = svc.Update(ctx, otherMgr, p.ID, UpdateInput{Status: &done})
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	bogus := Priority("urgent")
	_, err = svc.Update(ctx, managerUser, p.ID, UpdateInput{Priority: &bogus})
	require.ErrorIs(t, err, ErrValidation)

	updated, err := svc.Update(ctx, managerUser, p.ID, UpdateInput{Status: &done, Completion: &full, Tags: []string{"Done"}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)
	require.Equal(t, 100, updated.Completion)
	require.Equal(t, []string{"done"}, updated.Tags)
	require.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	err = svc.Delete(ctx, managerUser, p.ID)
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied), "managers hold no delete grant on projects")
	err = svc.Delete(ctx, hrUser, p.ID)
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	require.NoError(t, svc.Delete(ctx, adminUser, p.ID))
	_, err = repo.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, adminUser, p.ID), ErrNotFound)

	last := audit.records[len(audit.records)-1]
	require.Equal(t, "delete", last.Action)
	require.Nil(t, last.After)
}
