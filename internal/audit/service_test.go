package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/rbac"
)

type stubTimelineRepo struct {
	rows     []Entry
	lastCall Query
}

func (s *stubTimelineRepo) Timeline(ctx context.Context, q Query) ([]Entry, error) {
	s.lastCall = q
	rows := s.rows
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

var (
	hrActor      = rbac.Principal{ID: uuid.New(), Role: rbac.RoleHR, Active: true}
	managerActor = rbac.Principal{ID: uuid.New(), Role: rbac.RoleManager, Active: true}
	staffActor   = rbac.Principal{ID: uuid.New(), Role: rbac.RoleEmployee, Active: true}
)

func entry(at string, action, resourceType, resourceID string) Entry {
	ts, _ := time.Parse(time.RFC3339, at)
	return Entry{At: ts, ActorID: hrActor.ID, Action: action, ResourceType: resourceType, ResourceID: resourceID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []Entry{
		entry("2026-03-10T10:00:00Z", "request_approved", "document_request", "1"),
		entry("2026-03-09T09:00:00Z", "update", "team", "2"),
		entry("2026-03-08T08:00:00Z", "create", "team", "3"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), managerActor, TimelineFilters{
		From:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:           time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ResourceType: " team ",
		Page:         1,
		PageSize:     2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Equal(t, 3, repo.lastCall.Limit)
	require.Zero(t, repo.lastCall.Offset)
	require.Equal(t, "team", repo.lastCall.ResourceType)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), hrActor, TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, result.Paging.PageSize)
	require.Equal(t, MaxPageSize+1, repo.lastCall.Limit)
	require.Equal(t, 2*MaxPageSize, repo.lastCall.Offset)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.NotNil(t, result.Rows)
}

func TestServiceGatesByRole(t *testing.T) {
	svc := NewService(&stubTimelineRepo{})
	_, err := svc.Timeline(context.Background(), staffActor, TimelineFilters{})
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	_, err = svc.Export(context.Background(), managerActor, TimelineFilters{})
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	_, err = svc.Export(context.Background(), hrActor, TimelineFilters{})
	require.NoError(t, err)
}

func TestServiceExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []Entry{
		entry("2026-03-10T10:00:00Z", "delete", "team", "9"),
	}}
	svc := NewService(repo)
	rows, err := svc.Export(context.Background(), hrActor, TimelineFilters{Action: "delete"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Zero(t, repo.lastCall.Limit)
	require.Equal(t, "delete", repo.lastCall.Action)
}

func TestWriteCSV(t *testing.T) {
	e := entry("2026-03-10T10:00:00Z", "update", "team", "7")
	e.ActorName = "Hana, HR"
	e.Before = json.RawMessage(`{"name":"a"}`)
	e.After = json.RawMessage(`{"name":"b"}`)

	out, err := WriteCSV([]Entry{e})
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, "2026-03-10T10:00:00Z", records[1][0])
	require.Equal(t, "Hana, HR", records[1][2])
	require.Equal(t, `{"name":"b"}`, records[1][7])
}
