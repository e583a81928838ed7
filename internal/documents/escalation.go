package documents

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hinfinity/hrdesk/internal/shared"
)

// EscalationOutcome reports what a single breach check did.
type EscalationOutcome struct {
	RequestID uuid.UUID `json:"request_id"`
	Escalated bool      `json:"escalated"`
	Level     int       `json:"level"`
	Notified  bool      `json:"notified"`
}

// CheckEscalation bumps the escalation level of a breached open request by
// one, up to the configured ceiling. Once a request sits at the ceiling the
// notifier fires until a delivery succeeds; the request then records it and
// later checks leave it untouched. Closed and on-time requests are ignored.
func (s *Service) CheckEscalation(ctx context.Context, id uuid.UUID, now time.Time) (EscalationOutcome, error) {
	outcome := EscalationOutcome{RequestID: id}
	var before, after Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		outcome.Level = current.EscalationLevel
		after = current
		if !current.Breached(now) || current.EscalationLevel >= s.opts.MaxEscalationLevel {
			return nil
		}
		before = current
		next := current
		next.EscalationLevel = current.EscalationLevel + 1
		next.UpdatedAt = now
		next.Version = current.Version + 1
		if next.EscalationLevel >= s.opts.MaxEscalationLevel && s.notifier == nil {
			next.EscalationNotified = true
		}
		if err := tx.Update(ctx, next, current.Version); err != nil {
			return err
		}
		after = next
		outcome.Escalated = true
		outcome.Level = next.EscalationLevel
		return tx.AppendHistory(ctx, HistoryEntry{
			RequestID: id, ActorID: SystemPrincipal.ID, Action: "request_escalated",
			FromStatus: current.Status, ToStatus: current.Status,
			Level: next.EscalationLevel, At: now,
		})
	})
	if err != nil {
		return EscalationOutcome{RequestID: id}, err
	}
	if outcome.Escalated {
		s.recordAudit(ctx, shared.AuditRecord{
			ActorID:      SystemPrincipal.ID,
			Action:       "request_escalated",
			ResourceType: "document_request",
			ResourceID:   id.String(),
			Before:       before,
			After:        after,
			Meta:         map[string]any{"level": after.EscalationLevel},
			At:           now,
		})
	}
	if !after.Breached(now) || after.EscalationLevel < s.opts.MaxEscalationLevel || after.EscalationNotified || s.notifier == nil {
		return outcome, nil
	}
	err = s.notifier.NotifyEscalation(ctx, Escalation{
		RequestID:     after.ID,
		RequesterID:   after.RequesterID,
		RequesterName: after.RequesterName,
		DocumentType:  after.DocumentType,
		Level:         after.EscalationLevel,
		DueBy:         after.DueBy,
		ApproverRole:  after.ApproverRole,
	})
	if err != nil {
		s.logger.Error("notify escalation", slog.String("request_id", id.String()), slog.Any("error", err))
		return outcome, nil
	}
	outcome.Notified = true
	if err := s.markNotified(ctx, id, now); err != nil {
		// the next sweep sends the notice again
		s.logger.Warn("mark escalation notified", slog.String("request_id", id.String()), slog.Any("error", err))
	}
	return outcome, nil
}

func (s *Service) markNotified(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.EscalationNotified {
			return nil
		}
		next := current
		next.EscalationNotified = true
		next.UpdatedAt = now
		next.Version = current.Version + 1
		if err := tx.Update(ctx, next, current.Version); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, HistoryEntry{
			RequestID: id, ActorID: SystemPrincipal.ID, Action: "escalation_notified",
			FromStatus: current.Status, ToStatus: current.Status,
			Level: current.EscalationLevel, At: now,
		})
	})
}

// SweepResult summarises one escalation sweep.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Escalated  int `json:"escalated"`
	Notified   int `json:"notified"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// SweepEscalations checks every breached open request below the ceiling or
// still owed its ceiling notice.
// Distinct requests run concurrently; each request is guarded by a lock so
// overlapping sweeps never process the same id at once.
func (s *Service) SweepEscalations(ctx context.Context, now time.Time) (SweepResult, error) {
	candidates, err := s.repo.ListBreachCandidates(ctx, now, s.opts.MaxEscalationLevel)
	if err != nil {
		return SweepResult{}, err
	}
	ids := make([]uuid.UUID, 0, len(candidates))
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}

	var (
		mu     sync.Mutex
		result = SweepResult{Candidates: len(ids)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SweepConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			outcome, skipped, err := s.escalateLocked(gctx, id, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case skipped:
				result.Skipped++
			case err != nil:
				result.Failed++
				s.logger.Warn("escalation check", slog.String("request_id", id.String()), slog.Any("error", err))
			default:
				if outcome.Escalated {
					result.Escalated++
				}
				if outcome.Notified {
					result.Notified++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) escalateLocked(ctx context.Context, id uuid.UUID, now time.Time) (EscalationOutcome, bool, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.EscalationLockKey(id), s.opts.LockTTL)
		if errors.Is(err, shared.ErrLockHeld) {
			return EscalationOutcome{}, true, nil
		}
		if err != nil {
			return EscalationOutcome{}, false, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release escalation lock", slog.String("request_id", id.String()), slog.Any("error", err))
			}
		}()
	}
	outcome, err := s.CheckEscalation(ctx, id, now)
	if errors.Is(err, ErrConcurrentModification) {
		return outcome, true, nil
	}
	return outcome, false, err
}
