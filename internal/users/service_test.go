package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
}

func (r *memoryUserRepo) Get(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) List(ctx context.Context, f ListFilters) ([]User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []User
	for _, u := range r.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Department != "" && u.Department != f.Department {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(u.Name+" "+u.Email), strings.ToLower(f.Search)) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	start := (f.Page - 1) * f.PerPage
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memoryUserRepo) Update(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return ErrNotFound
	}
	r.users[u.ID] = u
	return nil
}

type recordingAudit struct {
	records []shared.AuditRecord
}

func (a *recordingAudit) Record(ctx context.Context, rec shared.AuditRecord) error {
	a.records = append(a.records, rec)
	return nil
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func seed(repo *memoryUserRepo, name string, role rbac.Role, hired time.Time) User {
	u := User{
		ID:               uuid.New(),
		Email:            strings.ToLower(name) + "@example.com",
		Name:             name,
		Role:             role,
		Department:       "Engineering",
		EmploymentStatus: "active",
		HireDate:         hired,
		IsActive:         true,
	}
	repo.users[u.ID] = u
	return u
}

func newTestService() (*Service, *memoryUserRepo, *recordingAudit) {
	repo := &memoryUserRepo{users: map[uuid.UUID]User{}}
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	svc.now = func() time.Time { return now }
	return svc, repo, audit
}

func TestFindPrincipalAndFacts(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	u := seed(repo, "Dewi", rbac.RoleEmployee, now.AddDate(0, 0, -120))

	p, err := svc.FindPrincipal(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, rbac.Principal{ID: u.ID, Name: "Dewi", Role: rbac.RoleEmployee, Active: true}, p)

	_, err = svc.FindPrincipal(ctx, uuid.New())
	require.ErrorIs(t, err, rbac.ErrPrincipalNotFound)

	facts, err := svc.Facts(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 120, facts.TenureDays)
	require.Equal(t, "active", facts.EmploymentStatus)
	require.Equal(t, "Engineering", facts.Attributes["department"])

	require.Zero(t, User{HireDate: now.Add(time.Hour)}.TenureDays(now))
}

func TestChangeRoleAndDeactivate(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()
	admin := seed(repo, "Ade", rbac.RoleAdmin, now)
	mgr := seed(repo, "Mika", rbac.RoleManager, now)
	emp := seed(repo, "Eko", rbac.RoleEmployee, now)

	_, err := svc.ChangeRole(ctx, mgr.Principal(), emp.ID, rbac.RoleManager)
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	_, err = svc.ChangeRole(ctx, admin.Principal(), emp.ID, "owner")
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ChangeRole(ctx, admin.Principal(), admin.ID, rbac.RoleHR)
	require.ErrorIs(t, err, ErrValidation)

	changed, err := svc.ChangeRole(ctx, admin.Principal(), emp.ID, rbac.RoleManager)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleManager, changed.Role)
	require.Len(t, audit.records, 1)
	require.Equal(t, "role_changed", audit.records[0].Action)
	require.Equal(t, rbac.RoleEmployee, audit.records[0].Before.(User).Role)

	off, err := svc.Deactivate(ctx, admin.Principal(), emp.ID)
	require.NoError(t, err)
	require.False(t, off.IsActive)

	_, err = svc.Deactivate(ctx, admin.Principal(), emp.ID)
	require.NoError(t, err)
	require.Len(t, audit.records, 2)

	p, err := svc.FindPrincipal(ctx, emp.ID)
	require.NoError(t, err)
	require.False(t, p.Active)
	_, ok := repo.users[emp.ID]
	require.True(t, ok)
}

func TestListPaginatesAndScopes(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	hr := seed(repo, "Hani", rbac.RoleHR, now)
	emp := seed(repo, "Budi", rbac.RoleEmployee, now)
	for i := 0; i < 4; i++ {
		seed(repo, "Staff"+string(rune('A'+i)), rbac.RoleEmployee, now)
	}

	users, page, err := svc.List(ctx, hr.Principal(), ListFilters{Role: rbac.RoleEmployee, PerPage: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.TotalPages)

	_, _, err = svc.List(ctx, emp.Principal(), ListFilters{})
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	_, _, err = svc.List(ctx, hr.Principal(), ListFilters{Role: "root"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Get(ctx, emp.Principal(), hr.ID)
	require.ErrorIs(t, err, ErrNotFound)
	self, err := svc.Get(ctx, emp.Principal(), emp.ID)
	require.NoError(t, err)
	require.Equal(t, "Budi", self.Name)
}

func TestHandlerRoutes(t *testing.T) {
	svc, repo, _ := newTestService()
	hr := seed(repo, "Hesti", rbac.RoleHR, now)
	emp := seed(repo, "Joko", rbac.RoleEmployee, now)
	router := chi.NewRouter()
	router.Use(rbac.Middleware{Directory: svc}.Identify)
	NewHandler(nil, svc, rbac.Middleware{}).MountRoutes(router)

	call := func(actor uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(rbac.PrincipalHeader, actor.String())
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := call(emp.ID, http.MethodGet, "/users/me", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"name":"Joko"`)

	rr = call(emp.ID, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(hr.ID, http.MethodGet, "/users?per_page=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data       []User            `json:"data"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 2, body.Pagination.Total)

	rr = call(emp.ID, http.MethodPost, "/users/"+hr.ID.String()+"/deactivate", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(hr.ID, http.MethodPost, "/users/"+emp.ID.String()+"/role", `{"role":"superuser"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(hr.ID, http.MethodPost, "/users/"+emp.ID.String()+"/deactivate", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(emp.ID, http.MethodGet, "/users/me", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(uuid.New(), http.MethodGet, "/users/me", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
