package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/hinfinity/hrdesk/internal/rbac"
)

// Repository reads the audit_logs table.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]Entry, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService creates a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, actor rbac.Principal, filters TimelineFilters) (Result, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.ResourceAudit, nil); err != nil {
		return Result{}, err
	}
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches every matching entry without paging.
func (s *Service) Export(ctx context.Context, actor rbac.Principal, filters TimelineFilters) ([]Entry, error) {
	if err := rbac.Authorize(actor, rbac.ActionExport, rbac.ResourceAudit, nil); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.Timeline(ctx, toQuery(filters))
}

func toQuery(f TimelineFilters) Query {
	return Query{
		From:         f.From,
		To:           f.To,
		ActorID:      f.ActorID,
		ResourceType: strings.TrimSpace(f.ResourceType),
		ResourceID:   strings.TrimSpace(f.ResourceID),
		Action:       strings.TrimSpace(f.Action),
	}
}
