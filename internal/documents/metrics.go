package documents

import (
	"context"
	"sort"
	"time"

	"github.com/hinfinity/hrdesk/internal/rbac"
)

const topTypesLimit = 5

// TypeCount is a request count per document type.
type TypeCount struct {
	Type  DocumentType `json:"type"`
	Label string       `json:"label"`
	Count int          `json:"count"`
}

// Metrics is the SLA dashboard summary.
type Metrics struct {
	TotalRequests           int         `json:"total_requests"`
	PendingApprovals        int         `json:"pending_approvals"`
	BreachedRequests        int         `json:"breached_requests"`
	AverageCompletionHours  float64     `json:"average_completion_time"`
	SLAComplianceRate       float64     `json:"sla_compliance_rate"`
	DocumentsGeneratedToday int         `json:"documents_generated_today"`
	TopRequestedTypes       []TypeCount `json:"top_requested_types"`
}

// Summarize computes dashboard metrics at now. Compliance is the share of
// completed requests finished by their deadline; with nothing completed it
// is 100.
func (s *Service) Summarize(ctx context.Context, actor rbac.Principal, now time.Time) (Metrics, error) {
	if !rbac.CanApproveRequests(actor.Role) {
		return Metrics{}, denied(actor, "summarize")
	}
	requests, err := s.repo.List(ctx, ListQuery{})
	if err != nil {
		return Metrics{}, err
	}
	return summarize(requests, now), nil
}

func summarize(requests []Request, now time.Time) Metrics {
	m := Metrics{TotalRequests: len(requests), SLAComplianceRate: 100}
	counts := map[DocumentType]int{}
	var completed, onTime int
	var totalHours float64
	y, mo, d := now.UTC().Date()
	for _, r := range requests {
		counts[r.DocumentType]++
		if r.Status == StatusAwaitingApproval {
			m.PendingApprovals++
		}
		if r.Breached(now) {
			m.BreachedRequests++
		}
		if r.Status != StatusCompleted || r.CompletedAt == nil {
			continue
		}
		completed++
		totalHours += r.CompletedAt.Sub(r.CreatedAt).Hours()
		if r.DueBy.IsZero() || !r.CompletedAt.After(r.DueBy) {
			onTime++
		}
		cy, cm, cd := r.CompletedAt.UTC().Date()
		if cy == y && cm == mo && cd == d {
			m.DocumentsGeneratedToday++
		}
	}
	if completed > 0 {
		m.AverageCompletionHours = totalHours / float64(completed)
		m.SLAComplianceRate = float64(onTime) / float64(completed) * 100
	}
	m.TopRequestedTypes = make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		m.TopRequestedTypes = append(m.TopRequestedTypes, TypeCount{Type: t, Label: t.Label(), Count: c})
	}
	sort.Slice(m.TopRequestedTypes, func(i, j int) bool {
		a, b := m.TopRequestedTypes[i], m.TopRequestedTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if len(m.TopRequestedTypes) > topTypesLimit {
		m.TopRequestedTypes = m.TopRequestedTypes[:topTypesLimit]
	}
	return m
}
