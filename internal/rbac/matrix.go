package rbac

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrPolicyDenied indicates the role matrix does not grant the requested action.
var ErrPolicyDenied = errors.New("rbac: policy denied")

// DeniedError names the rule that rejected an authorization check.
type DeniedError struct {
	Role     Role
	Action   Action
	Resource ResourceType
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rbac: role %q may not %s %s", e.Role, e.Action, e.Resource)
}

func (e *DeniedError) Unwrap() error { return ErrPolicyDenied }

type actionSet map[Action]struct{}

func grant(actions ...Action) actionSet {
	set := make(actionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// matrix is immutable after package initialisation.
var matrix = map[Role]map[ResourceType]actionSet{
	RoleAdmin: {
		ResourceTeam:     grant(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionExport, ActionBulkImport),
		ResourceMember:   grant(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionExport, ActionBulkImport),
		ResourceProject:  grant(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage),
		ResourceSettings: grant(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage),
		ResourceAudit:    grant(ActionRead, ActionExport),
	},
	RoleHR: {
		ResourceTeam:     grant(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport, ActionBulkImport),
		ResourceMember:   grant(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport, ActionBulkImport),
		ResourceProject:  grant(ActionCreate, ActionRead, ActionUpdate, ActionManage),
		ResourceSettings: grant(ActionRead, ActionUpdate),
		ResourceAudit:    grant(ActionRead, ActionExport),
	},
	RoleManager: {
		ResourceTeam:     grant(ActionRead, ActionUpdate),
		ResourceMember:   grant(ActionRead, ActionUpdate, ActionCreate),
		ResourceProject:  grant(ActionCreate, ActionRead, ActionUpdate),
		ResourceSettings: grant(ActionRead),
		ResourceAudit:    grant(ActionRead),
	},
	RoleEmployee: {
		ResourceTeam:     grant(ActionRead),
		ResourceMember:   grant(ActionRead),
		ResourceProject:  grant(ActionRead),
		ResourceSettings: grant(),
		ResourceAudit:    grant(),
	},
}

// HasPermission reports whether role may perform action on resource.
// Unknown roles and resources resolve to an empty grant.
//
// The manager context is accepted so callers can tell "manager of this
// resource" from "manager in general", but it resolves against the same
// manager row and never widens the grant.
func HasPermission(role Role, action Action, resource ResourceType, ctx *Context) bool {
	if role == RoleManager && ctx != nil && ctx.IsManager {
		return lookup(role, resource, action)
	}
	return lookup(role, resource, action)
}

func lookup(role Role, resource ResourceType, action Action) bool {
	_, ok := matrix[role][resource][action]
	return ok
}

// Allowed returns the actions granted to role on resource in matrix order.
func Allowed(role Role, resource ResourceType) []Action {
	granted := make([]Action, 0, len(Actions()))
	for _, a := range Actions() {
		if lookup(role, resource, a) {
			granted = append(granted, a)
		}
	}
	return granted
}

// CanManageTeam is the identity-bound check gating team-specific mutation.
func CanManageTeam(p Principal, teamManagerID uuid.UUID) bool {
	switch p.Role {
	case RoleAdmin, RoleHR:
		return true
	case RoleManager:
		return p.ID != uuid.Nil && p.ID == teamManagerID
	}
	return false
}

// CanBulkImport reports whether role may bulk import members.
func CanBulkImport(role Role) bool {
	return HasPermission(role, ActionBulkImport, ResourceMember, nil)
}

// CanExport reports whether role may export teams.
func CanExport(role Role) bool {
	return HasPermission(role, ActionExport, ResourceTeam, nil)
}

// CanViewAudit reports whether role may read the audit trail.
func CanViewAudit(role Role) bool {
	return HasPermission(role, ActionRead, ResourceAudit, nil)
}

// CanApproveRequests reports whether role may decide on document requests.
// No row of the matrix carries approve, so approval uses the role list directly.
func CanApproveRequests(role Role) bool {
	switch role {
	case RoleAdmin, RoleHR, RoleManager:
		return true
	}
	return false
}

// Authorize is HasPermission returning a DeniedError instead of false.
func Authorize(p Principal, action Action, resource ResourceType, ctx *Context) error {
	if HasPermission(p.Role, action, resource, ctx) {
		return nil
	}
	return &DeniedError{Role: p.Role, Action: action, Resource: resource}
}
