package users

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hinfinity/hrdesk/internal/rbac"
)

var (
	// ErrNotFound indicates an unknown user.
	ErrNotFound = errors.New("users: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("users: validation failed")
)

// User represents a person known to the directory.
type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             rbac.Role `json:"role"`
	Department       string    `json:"department"`
	EmploymentStatus string    `json:"employment_status"`
	HireDate         time.Time `json:"hire_date"`
	Confidential     bool      `json:"confidential"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Principal projects the user onto the identity the authorizer works with.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{ID: u.ID, Name: u.Name, Role: u.Role, Active: u.IsActive}
}

// TenureDays counts whole days since the hire date.
func (u User) TenureDays(now time.Time) int {
	if u.HireDate.IsZero() || now.Before(u.HireDate) {
		return 0
	}
	return int(now.Sub(u.HireDate).Hours() / 24)
}

// ListFilters narrows directory listings.
type ListFilters struct {
	Role       rbac.Role
	Department string
	Search     string
	Page       int
	PerPage    int
}
