package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRecord represents a row stored in audit_logs.
type AuditRecord struct {
	ActorID      uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Before       any
	After        any
	Meta         map[string]any
	At           time.Time
}

// AuditSink receives audit records. Implementations must be safe for
// concurrent use.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, rec AuditRecord) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	before, err := marshalState(rec.Before)
	if err != nil {
		return err
	}
	after, err := marshalState(rec.After)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !rec.At.IsZero() {
		at = &rec.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, before_state, after_state, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		nullableUUID(rec.ActorID), rec.Action, rec.ResourceType, rec.ResourceID, before, after, metaJSON, at)
	return err
}

// Validate checks the mandatory fields of a record.
func (r AuditRecord) Validate() error {
	if r.Action == "" || r.ResourceType == "" || r.ResourceID == "" {
		return errors.New("audit record requires action/resource_type/resource_id")
	}
	return nil
}

func marshalState(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
