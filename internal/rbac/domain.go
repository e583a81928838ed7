package rbac

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Role is the single role held by a principal.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Roles lists every known role in matrix order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleHR, RoleManager, RoleEmployee}
}

// ParseRole normalises raw input into a Role. Unknown values report false.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee:
		return role, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// Action is an operation requested on a resource type.
type Action string

const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionManage     Action = "manage"
	ActionApprove    Action = "approve"
	ActionExport     Action = "export"
	ActionBulkImport Action = "bulk_import"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionApprove, ActionExport, ActionBulkImport}
}

// ResourceType is the category of object an action applies to.
type ResourceType string

const (
	ResourceTeam     ResourceType = "team"
	ResourceMember   ResourceType = "member"
	ResourceProject  ResourceType = "project"
	ResourceSettings ResourceType = "settings"
	ResourceAudit    ResourceType = "audit"
)

// ResourceTypes lists every known resource type.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceTeam, ResourceMember, ResourceProject, ResourceSettings, ResourceAudit}
}

// Principal describes the authenticated actor.
type Principal struct {
	ID     uuid.UUID
	Name   string
	Role   Role
	Active bool
}

// Context carries caller-asserted relationships for a permission check.
type Context struct {
	// IsManager is true when the principal manages this resource instance.
	IsManager bool
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
