package authz

import "strings"

// Role is a closed set of privilege levels. Roles are mutually exclusive per
// actor; there is no multi-role composition.
type Role string

const (
	RoleGuest       Role = "guest"
	RoleProspective Role = "prospective"
	RoleMember      Role = "member"
	RoleAdmin       Role = "admin"
)

// Resource names a protected capability group. The set is closed and extended
// only by code change.
type Resource string

const (
	ResourceMembers        Resource = "members"
	ResourceBoardPositions Resource = "board_positions"
	ResourceTemplates      Resource = "templates"
	ResourceSettings       Resource = "settings"
	ResourceProfile        Resource = "profile"
	ResourceReports        Resource = "reports"
)

// Action is an atomic operation on a resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
)

// actionOrder fixes the presentation order for ActionSet.Slice.
var actionOrder = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove}

// NormalizeRole maps an upstream role string onto the closed Role set. Any
// string the matrix does not know, including historical labels such as
// "senator", "officer", "past_member" and "candidate", resolves to guest so
// that invalid upstream data can never produce an out-of-matrix role.
func NormalizeRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleProspective:
		return RoleProspective
	case RoleMember:
		return RoleMember
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleGuest
	}
}

// ParseResource reports whether raw names a known resource.
func ParseResource(raw string) (Resource, bool) {
	switch Resource(strings.ToLower(strings.TrimSpace(raw))) {
	case ResourceMembers:
		return ResourceMembers, true
	case ResourceBoardPositions:
		return ResourceBoardPositions, true
	case ResourceTemplates:
		return ResourceTemplates, true
	case ResourceSettings:
		return ResourceSettings, true
	case ResourceProfile:
		return ResourceProfile, true
	case ResourceReports:
		return ResourceReports, true
	default:
		return "", false
	}
}

// ParseAction reports whether raw names a known action.
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionCreate:
		return ActionCreate, true
	case ActionRead:
		return ActionRead, true
	case ActionUpdate:
		return ActionUpdate, true
	case ActionDelete:
		return ActionDelete, true
	case ActionApprove:
		return ActionApprove, true
	default:
		return "", false
	}
}

// ActionSet is an unordered set of actions.
type ActionSet map[Action]struct{}

// NewActionSet builds a set from the given actions.
func NewActionSet(actions ...Action) ActionSet {
	set := make(ActionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the action.
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// Slice returns the actions in a stable order.
func (s ActionSet) Slice() []Action {
	out := make([]Action, 0, len(s))
	for _, a := range actionOrder {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}
