package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hinfinity/hrdesk/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

const requestColumns = `id, requester_id, requester_name, document_type, purpose, period, format,
	delivery_method, status, sla_hours, created_at, updated_at, due_by, escalation_level,
	approver_role, approved_by, approved_at, rejection_reason, comment, completed_at, version, escalation_notified`

// WithTx wraps callback in repeatable-read transaction. Serialization
// failures surface as ErrConcurrentModification.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	return err
}

// Get returns a request by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	return getRequest(ctx, r.pool, id, false)
}

// List returns requests ordered newest first, or overdue first when
// query.BreachedAt is set.
func (r *Repository) List(ctx context.Context, query ListQuery) ([]Request, error) {
	sql := `SELECT ` + requestColumns + ` FROM document_requests WHERE 1=1`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		sql += fmt.Sprintf(clause, len(args))
	}
	if query.RequesterID != uuid.Nil {
		add(` AND requester_id = $%d`, query.RequesterID)
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, len(query.Statuses))
		for i, s := range query.Statuses {
			statuses[i] = string(s)
		}
		add(` AND status = ANY($%d)`, statuses)
	}
	if query.Search != "" {
		add(` AND (requester_name ILIKE '%%' || $%[1]d || '%%' OR purpose ILIKE '%%' || $%[1]d || '%%'
	OR replace(document_type, '_', ' ') ILIKE '%%' || $%[1]d || '%%' OR document_type ILIKE '%%' || $%[1]d || '%%')`, query.Search)
	}
	order := ` ORDER BY created_at DESC`
	if !query.BreachedAt.IsZero() {
		args = append(args, terminalStatuses(), query.BreachedAt)
		order = fmt.Sprintf(` ORDER BY (status <> ALL($%d) AND due_by < $%d) DESC NULLS LAST, created_at DESC`, len(args)-1, len(args))
	}
	sql += order
	if query.Limit > 0 {
		add(` LIMIT $%d`, query.Limit)
	}
	return queryRequests(ctx, r.pool, sql, args...)
}

func terminalStatuses() []string {
	return []string{string(StatusCompleted), string(StatusRejected)}
}

// ListBreachCandidates returns open requests past due that are below maxLevel
// or have not had their ceiling notice delivered.
func (r *Repository) ListBreachCandidates(ctx context.Context, now time.Time, maxLevel int) ([]Request, error) {
	sql := `SELECT ` + requestColumns + ` FROM document_requests
WHERE status <> ALL($1) AND due_by IS NOT NULL AND due_by < $2
	AND (escalation_level < $3 OR NOT escalation_notified)
ORDER BY due_by ASC`
	return queryRequests(ctx, r.pool, sql, terminalStatuses(), now, maxLevel)
}

// History returns the mutation trail of a request, oldest first.
func (r *Repository) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, actor_id, action, from_status, to_status, note, escalation_level, at
FROM document_request_history WHERE request_id = $1 ORDER BY at ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var (
			e         HistoryEntry
			requestID pgtype.UUID
			actorID   pgtype.UUID
			from, to  string
		)
		if err := rows.Scan(&e.ID, &requestID, &actorID, &e.Action, &from, &to, &e.Note, &e.Level, &e.At); err != nil {
			return nil, err
		}
		e.RequestID = fromPgUUID(requestID)
		e.ActorID = fromPgUUID(actorID)
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (tx *txRepo) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	return getRequest(ctx, tx.tx, id, true)
}

func (tx *txRepo) Insert(ctx context.Context, req Request) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO document_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		req.ID, req.RequesterID, req.RequesterName, string(req.DocumentType), req.Purpose, req.Period,
		string(req.Format), string(req.DeliveryMethod), string(req.Status), req.SLAHours,
		req.CreatedAt, req.UpdatedAt, toPgTime(req.DueBy), req.EscalationLevel, req.ApproverRole,
		toPgUUID(req.ApprovedBy), toPgTimePtr(req.ApprovedAt), req.RejectionReason, req.Comment,
		toPgTimePtr(req.CompletedAt), req.Version, req.EscalationNotified)
	return err
}

func (tx *txRepo) Update(ctx context.Context, req Request, expectedVersion int64) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE document_requests SET
	purpose = $3, period = $4, status = $5, updated_at = $6, escalation_level = $7,
	approved_by = $8, approved_at = $9, rejection_reason = $10, comment = $11,
	completed_at = $12, version = $13, escalation_notified = $14
WHERE id = $1 AND version = $2`,
		req.ID, expectedVersion, req.Purpose, req.Period, string(req.Status), req.UpdatedAt,
		req.EscalationLevel, toPgUUID(req.ApprovedBy), toPgTimePtr(req.ApprovedAt),
		req.RejectionReason, req.Comment, toPgTimePtr(req.CompletedAt), req.Version, req.EscalationNotified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (tx *txRepo) AppendHistory(ctx context.Context, e HistoryEntry) error {
	var actor *uuid.UUID
	if e.ActorID != uuid.Nil {
		actor = &e.ActorID
	}
	_, err := tx.tx.Exec(ctx, `INSERT INTO document_request_history (request_id, actor_id, action, from_status, to_status, note, escalation_level, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.RequestID, toPgUUID(actor), e.Action, string(e.FromStatus), string(e.ToStatus), e.Note, e.Level, e.At)
	return err
}

func getRequest(ctx context.Context, q querier, id uuid.UUID, lock bool) (Request, error) {
	sql := `SELECT ` + requestColumns + ` FROM document_requests WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	req, err := scanRequest(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

func queryRequests(ctx context.Context, q querier, sql string, args ...any) ([]Request, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req                               Request
		id, requesterID, approvedBy       pgtype.UUID
		docType, format, delivery, status string
		dueBy, approvedAt, completedAt    pgtype.Timestamptz
	)
	err := row.Scan(&id, &requesterID, &req.RequesterName, &docType, &req.Purpose, &req.Period, &format,
		&delivery, &status, &req.SLAHours, &req.CreatedAt, &req.UpdatedAt, &dueBy, &req.EscalationLevel,
		&req.ApproverRole, &approvedBy, &approvedAt, &req.RejectionReason, &req.Comment, &completedAt, &req.Version, &req.EscalationNotified)
	if err != nil {
		return Request{}, err
	}
	req.ID = fromPgUUID(id)
	req.RequesterID = fromPgUUID(requesterID)
	req.DocumentType = DocumentType(docType)
	req.Format = Format(format)
	req.DeliveryMethod = DeliveryMethod(delivery)
	req.Status = Status(strings.TrimSpace(status))
	if dueBy.Valid {
		req.DueBy = dueBy.Time
	}
	if approvedBy.Valid {
		v := fromPgUUID(approvedBy)
		req.ApprovedBy = &v
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		req.ApprovedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	return req, nil
}

func fromPgUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func toPgUUID(v *uuid.UUID) pgtype.UUID {
	if v == nil || *v == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *v, Valid: true}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func toPgTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return toPgTime(*t)
}
