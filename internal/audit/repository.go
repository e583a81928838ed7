package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads audit entries from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Timeline returns entries matching q ordered newest first.
func (r *PgRepository) Timeline(ctx context.Context, q Query) ([]Entry, error) {
	sql := `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.resource_type,
	a.resource_id, a.before_state, a.after_state
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE 1=1`
	args := []any{}
	add := func(clause string, v any) {
		args = append(args, v)
		sql += fmt.Sprintf(clause, len(args))
	}
	if !q.From.IsZero() {
		add(` AND a.occurred_at >= $%d`, q.From)
	}
	if !q.To.IsZero() {
		add(` AND a.occurred_at < $%d`, q.To)
	}
	if q.ActorID != uuid.Nil {
		add(` AND a.actor_id = $%d`, q.ActorID)
	}
	if q.ResourceType != "" {
		add(` AND a.resource_type = $%d`, q.ResourceType)
	}
	if q.ResourceID != "" {
		add(` AND a.resource_id = $%d`, q.ResourceID)
	}
	if q.Action != "" {
		add(` AND a.action = $%d`, q.Action)
	}
	sql += ` ORDER BY a.occurred_at DESC, a.id DESC`
	if q.Limit > 0 {
		add(` LIMIT $%d`, q.Limit)
		add(` OFFSET $%d`, q.Offset)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			actor pgtype.UUID
		)
		if err := rows.Scan(&e.ID, &e.At, &actor, &e.ActorName, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Before, &e.After); err != nil {
			return nil, err
		}
		if actor.Valid {
			e.ActorID = uuid.UUID(actor.Bytes)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
