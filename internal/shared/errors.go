package shared

import "errors"

var (
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrIdempotencyConflict indicates the submission key was already used.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)
