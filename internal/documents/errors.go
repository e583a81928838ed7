package documents

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown request id.
	ErrNotFound = errors.New("documents: request not found")
	// ErrInvalidTransition indicates a move the lifecycle does not allow.
	ErrInvalidTransition = errors.New("documents: invalid status transition")
	// ErrMissingRequiredField indicates a transition input lacking a mandatory value.
	ErrMissingRequiredField = errors.New("documents: missing required field")
	// ErrNotEligible indicates the requester may not obtain the document.
	ErrNotEligible = errors.New("documents: requester not eligible")
	// ErrConcurrentModification indicates the request changed since it was read.
	ErrConcurrentModification = errors.New("documents: concurrent modification")
	// ErrAlreadyResolved indicates a competing update already closed the request.
	ErrAlreadyResolved = errors.New("documents: request already resolved")
	// ErrValidation indicates malformed submission input.
	ErrValidation = errors.New("documents: validation failed")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	RequestID uuid.UUID
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("documents: request %s cannot move from %s to %s", e.RequestID, e.From, e.To)
}

// Unwrap also reports ErrAlreadyResolved when the request is terminal.
func (e *TransitionError) Unwrap() []error {
	if e.From.Terminal() {
		return []error{ErrInvalidTransition, ErrAlreadyResolved}
	}
	return []error{ErrInvalidTransition}
}

// FieldError names the missing input.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("documents: %s is required", e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingRequiredField }

// EligibilityError carries the reason an eligibility check failed.
type EligibilityError struct {
	DocumentType DocumentType
	Reason       string
}

func (e *EligibilityError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("documents: not eligible for %s", e.DocumentType)
	}
	return fmt.Sprintf("documents: not eligible for %s: %s", e.DocumentType, e.Reason)
}

func (e *EligibilityError) Unwrap() error { return ErrNotEligible }
