package documents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/sla"
)

// Queue size bounds. Limit zero means DefaultQueueLimit.
const (
	DefaultQueueLimit = 200
	MaxQueueLimit     = 1000
)

// QueueFilter narrows the request queue.
type QueueFilter struct {
	Search string
	Status Status
	Health sla.Health
	Limit  int
}

// List returns the request queue visible to actor. Employees only see their
// own requests. Breached requests sort first, then newest first.
func (s *Service) List(ctx context.Context, actor rbac.Principal, filter QueueFilter) ([]View, error) {
	if !actor.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", rbac.ErrPolicyDenied, actor.Role)
	}
	now := s.now()
	query := ListQuery{Search: strings.TrimSpace(filter.Search), BreachedAt: now, Limit: filter.Limit}
	switch {
	case query.Limit < 0:
		return nil, fmt.Errorf("%w: limit must be positive", ErrValidation)
	case query.Limit == 0:
		query.Limit = DefaultQueueLimit
	case query.Limit > MaxQueueLimit:
		query.Limit = MaxQueueLimit
	}
	if actor.Role == rbac.RoleEmployee {
		query.RequesterID = actor.ID
	}
	health := filter.Health
	switch filter.Status {
	case "":
	case StatusSLABreached:
		health = sla.HealthBreached
	default:
		if _, ok := ParseStatus(string(filter.Status)); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
		}
		query.Statuses = []Status{filter.Status}
	}
	if health != "" {
		if _, ok := sla.ParseHealth(string(health)); !ok {
			return nil, fmt.Errorf("%w: unknown sla filter %q", ErrValidation, health)
		}
	}

	requests, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(requests))
	for _, req := range requests {
		v := NewView(req, now)
		if health != "" && (!req.Status.Open() || v.Health != health) {
			continue
		}
		views = append(views, v)
	}
	SortQueue(views)
	return views, nil
}

// SortQueue orders breached requests first, then by creation time descending.
func SortQueue(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Breached != views[j].Breached {
			return views[i].Breached
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
}
