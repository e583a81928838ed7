package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/sla"
)

func TestStateMachineEdges(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusAwaitingApproval))
	require.True(t, CanTransition(StatusPending, StatusAutoGenerating))
	require.True(t, CanTransition(StatusChangesRequested, StatusAwaitingApproval))
	require.True(t, CanTransition(StatusAutoGenerating, StatusCompleted))
	require.False(t, CanTransition(StatusApproved, StatusApproved))
	require.False(t, CanTransition(StatusAwaitingApproval, StatusCompleted))
	require.False(t, CanTransition(StatusPending, StatusSLABreached))
	for _, terminal := range []Status{StatusCompleted, StatusRejected} {
		for _, to := range Statuses() {
			require.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
		require.Empty(t, NextStatuses(terminal))
	}
}

func TestNewViewBreachOverlay(t *testing.T) {
	open := Request{DocumentType: TypeSalarySlip, Status: StatusAwaitingApproval, CreatedAt: t0, DueBy: t0.Add(24 * time.Hour)}

	v := NewView(open, t0.Add(20*time.Hour))
	require.False(t, v.Breached)
	require.Equal(t, StatusAwaitingApproval, v.DisplayStatus)
	require.Equal(t, sla.HealthAtRisk, v.Health)
	require.Equal(t, "4 hours", v.TimeRemaining)
	require.Equal(t, "Awaiting Approval", v.StatusLabel)

	v = NewView(open, t0.Add(25*time.Hour))
	require.True(t, v.Breached)
	require.Equal(t, StatusSLABreached, v.DisplayStatus)
	require.Equal(t, StatusAwaitingApproval, v.Status)
	require.Equal(t, sla.UrgencyCritical, v.Urgency)

	done := open
	done.Status = StatusCompleted
	v = NewView(done, t0.Add(100*time.Hour))
	require.False(t, v.Breached)
	require.Equal(t, StatusCompleted, v.DisplayStatus)
	require.Empty(t, v.Health)
}

func TestListQueueScopesFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock = t0.Add(30 * time.Hour)

	oldBreached := seedRequest(t, f.repo, StatusAwaitingApproval, t0, 24)
	newer := seedRequest(t, f.repo, StatusAwaitingApproval, t0.Add(20*time.Hour), 48)
	atRisk := seedRequest(t, f.repo, StatusInProgress, t0.Add(10*time.Hour), 24)
	closed := seedRequest(t, f.repo, StatusCompleted, t0.Add(25*time.Hour), 1)

	views, err := f.svc.List(ctx, hrUser, QueueFilter{})
	require.NoError(t, err)
	require.Len(t, views, 4)
	require.Equal(t, oldBreached.ID, views[0].ID)
	require.Equal(t, closed.ID, views[1].ID)
	require.Equal(t, newer.ID, views[2].ID)
	require.Equal(t, atRisk.ID, views[3].ID)

	views, err = f.svc.List(ctx, hrUser, QueueFilter{Health: sla.HealthBreached})
	require.NoError(t, err)
	require.Len(t, views, 1)

	views, err = f.svc.List(ctx, hrUser, QueueFilter{Status: StatusSLABreached})
	require.NoError(t, err)
	require.Len(t, views, 1)

	views, err = f.svc.List(ctx, hrUser, QueueFilter{Health: sla.HealthAtRisk})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, atRisk.ID, views[0].ID)

	views, err = f.svc.List(ctx, hrUser, QueueFilter{Health: sla.HealthOnTrack})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, newer.ID, views[0].ID)

	views, err = f.svc.List(ctx, hrUser, QueueFilter{Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, views, 1)

	views, err = f.svc.List(ctx, hrUser, QueueFilter{Search: "employment VERIF"})
	require.NoError(t, err)
	require.Len(t, views, 4)

	_, err = f.svc.List(ctx, hrUser, QueueFilter{Status: "archived"})
	require.True(t, errors.Is(err, ErrValidation))
}

func TestListQueuePushesSearchAndLimitToRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock = t0.Add(30 * time.Hour)

	overdue := seedRequest(t, f.repo, StatusAwaitingApproval, t0, 24)
	seedRequest(t, f.repo, StatusAwaitingApproval, t0.Add(20*time.Hour), 48)
	seedRequest(t, f.repo, StatusInProgress, t0.Add(25*time.Hour), 48)

	views, err := f.svc.List(ctx, hrUser, QueueFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, overdue.ID, views[0].ID)
	require.Equal(t, 1, f.repo.lastList.Limit)
	require.Equal(t, f.clock, f.repo.lastList.BreachedAt)

	_, err = f.svc.List(ctx, hrUser, QueueFilter{Search: "  Salary Slip "})
	require.NoError(t, err)
	require.Equal(t, "Salary Slip", f.repo.lastList.Search)
	require.Equal(t, DefaultQueueLimit, f.repo.lastList.Limit)

	_, err = f.svc.List(ctx, hrUser, QueueFilter{Limit: MaxQueueLimit * 5})
	require.NoError(t, err)
	require.Equal(t, MaxQueueLimit, f.repo.lastList.Limit)

	_, err = f.svc.List(ctx, hrUser, QueueFilter{Limit: -1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestListQueueEmployeeSeesOwnRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := employee("Mira")
	f.submitAwaiting(t, mine)
	f.submitAwaiting(t, employee("Nina"))

	views, err := f.svc.List(ctx, mine, QueueFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, mine.ID, views[0].RequesterID)

	views, err = f.svc.List(ctx, managerUser, QueueFilter{Search: "visa"})
	require.NoError(t, err)
	require.Len(t, views, 2)

	_, err = f.svc.List(ctx, rbac.Principal{Role: "guest"}, QueueFilter{})
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))
}

func TestSummarizeMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := t0.Add(30 * time.Hour)

	seedRequest(t, f.repo, StatusAwaitingApproval, t0, 24)
	seedRequest(t, f.repo, StatusAwaitingApproval, t0.Add(20*time.Hour), 48)
	onTime := seedRequest(t, f.repo, StatusCompleted, t0, 24)
	late := seedRequest(t, f.repo, StatusCompleted, t0, 4)

	f.repo.mu.Lock()
	finishedEarly := t0.Add(12 * time.Hour)
	finishedLate := t0.Add(26 * time.Hour)
	r := f.repo.requests[onTime.ID]
	r.CompletedAt = &finishedEarly
	r.DocumentType = TypeSalarySlip
	f.repo.requests[onTime.ID] = r
	r = f.repo.requests[late.ID]
	r.CompletedAt = &finishedLate
	f.repo.requests[late.ID] = r
	f.repo.mu.Unlock()

	m, err := f.svc.Summarize(ctx, hrUser, now)
	require.NoError(t, err)
	require.Equal(t, 4, m.TotalRequests)
	require.Equal(t, 2, m.PendingApprovals)
	require.Equal(t, 1, m.BreachedRequests)
	require.InDelta(t, 19, m.AverageCompletionHours, 0.001)
	require.InDelta(t, 50, m.SLAComplianceRate, 0.001)
	require.Equal(t, 1, m.DocumentsGeneratedToday)
	require.Equal(t, TypeEmploymentVerification, m.TopRequestedTypes[0].Type)
	require.Equal(t, 3, m.TopRequestedTypes[0].Count)

	_, err = f.svc.Summarize(ctx, employee("Oki"), now)
	require.True(t, errors.Is(err, rbac.ErrPolicyDenied))

	empty := summarize(nil, now)
	require.Equal(t, 100.0, empty.SLAComplianceRate)
	require.Empty(t, empty.TopRequestedTypes)
}
