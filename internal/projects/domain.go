package projects

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown project.
	ErrNotFound = errors.New("projects: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("projects: validation failed")
)

// Status is the delivery state of a project.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanning, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Priority orders projects within a team.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Project is a piece of work owned by one team.
type Project struct {
	ID              uuid.UUID   `json:"id"`
	TeamID          uuid.UUID   `json:"team_id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Status          Status      `json:"status"`
	Priority        Priority    `json:"priority"`
	StartDate       *time.Time  `json:"start_date,omitempty"`
	EndDate         *time.Time  `json:"end_date,omitempty"`
	Completion      int         `json:"completion_percentage"`
	AssignedMembers []uuid.UUID `json:"assigned_members"`
	Tags            []string    `json:"tags"`
	CreatedBy       uuid.UUID   `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Filters narrows a team's project listing.
type Filters struct {
	TeamID uuid.UUID
	Status Status
}

// CreateInput describes a new project. Empty status and priority default to
// planning and medium.
type CreateInput struct {
	TeamID          uuid.UUID
	Name            string
	Description     string
	Status          Status
	Priority        Priority
	StartDate       *time.Time
	EndDate         *time.Time
	Completion      int
	AssignedMembers []uuid.UUID
	Tags            []string
}

// UpdateInput carries optional project changes.
type UpdateInput struct {
	Name            *string
	Description     *string
	Status          *Status
	Priority        *Priority
	StartDate       *time.Time
	EndDate         *time.Time
	Completion      *int
	AssignedMembers []uuid.UUID
	Tags            []string
}
