package authz

import "github.com/google/uuid"

// Matrix is an immutable role → resource → actions mapping. It is built once
// at process start and never mutated afterwards, which makes every query on it
// safe for concurrent use without locking.
type Matrix map[Role]map[Resource]ActionSet

// DefaultMatrix returns the authoritative permission matrix. The matrix is the
// single source of truth for authorization decisions; roles or resources the
// matrix does not mention simply have no permissions.
func DefaultMatrix() Matrix {
	crud := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	return Matrix{
		RoleAdmin: {
			ResourceMembers:        NewActionSet(append(crud, ActionApprove)...),
			ResourceBoardPositions: NewActionSet(crud...),
			ResourceTemplates:      NewActionSet(crud...),
			ResourceSettings:       NewActionSet(crud...),
			ResourceProfile:        NewActionSet(crud...),
			ResourceReports:        NewActionSet(crud...),
		},
		RoleMember: {
			ResourceMembers:        NewActionSet(ActionRead),
			ResourceBoardPositions: NewActionSet(ActionRead),
			ResourceTemplates:      NewActionSet(ActionRead),
			ResourceProfile:        NewActionSet(ActionRead, ActionUpdate),
			ResourceReports:        NewActionSet(ActionRead),
		},
		RoleProspective: {
			ResourceProfile: NewActionSet(ActionRead, ActionUpdate),
		},
		RoleGuest: {},
	}
}

// HasPermission reports whether the role may perform the action on the
// resource. Absent roles or resources yield false, never an error.
func HasPermission(m Matrix, role Role, resource Resource, action Action) bool {
	return ResourceActions(m, role, resource).Has(action)
}

// ResourceActions returns the matrix entry for the role and resource, or an
// empty set when either is absent.
func ResourceActions(m Matrix, role Role, resource Resource) ActionSet {
	resources, ok := m[role]
	if !ok {
		return ActionSet{}
	}
	actions, ok := resources[resource]
	if !ok {
		return ActionSet{}
	}
	return actions
}

// CanAccessResource reports whether the role holds at least one action on the
// resource.
func CanAccessResource(m Matrix, role Role, resource Resource) bool {
	return len(ResourceActions(m, role, resource)) > 0
}

// CanManageActor reports whether an actor with the given role and identity may
// manage the target actor. Admins manage anyone; every other role manages only
// itself, and only when it holds profile update rights.
func CanManageActor(m Matrix, role Role, actorID, targetID uuid.UUID) bool {
	if role == RoleAdmin {
		return true
	}
	if actorID == uuid.Nil || actorID != targetID {
		return false
	}
	return HasPermission(m, role, ResourceProfile, ActionUpdate)
}
