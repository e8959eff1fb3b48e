package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var allResources = []Resource{
	ResourceMembers,
	ResourceBoardPositions,
	ResourceTemplates,
	ResourceSettings,
	ResourceProfile,
	ResourceReports,
}

var allRoles = []Role{RoleGuest, RoleProspective, RoleMember, RoleAdmin}

func TestHasPermissionAbsentEntries(t *testing.T) {
	m := DefaultMatrix()

	require.False(t, HasPermission(m, Role("senator"), ResourceMembers, ActionRead))
	require.False(t, HasPermission(m, RoleGuest, Resource("unknown"), ActionRead))
	require.False(t, HasPermission(m, RoleGuest, ResourceMembers, ActionRead))
	require.False(t, HasPermission(m, RoleProspective, ResourceMembers, ActionRead))
}

func TestCanAccessResourceMatchesActionCount(t *testing.T) {
	m := DefaultMatrix()
	for _, role := range allRoles {
		for _, res := range allResources {
			got := CanAccessResource(m, role, res)
			want := len(ResourceActions(m, role, res)) > 0
			require.Equal(t, want, got, "role=%s resource=%s", role, res)
		}
	}
}

func TestAdminMembersActions(t *testing.T) {
	m := DefaultMatrix()
	actions := ResourceActions(m, RoleAdmin, ResourceMembers)
	for _, a := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		require.True(t, actions.Has(a), "admin should hold %s on members", a)
	}
}

func TestProspectiveOnlyProfile(t *testing.T) {
	m := DefaultMatrix()
	for _, res := range allResources {
		actions := ResourceActions(m, RoleProspective, res)
		if res == ResourceProfile {
			require.NotEmpty(t, actions)
			continue
		}
		require.Empty(t, actions, "prospective should have no actions on %s", res)
	}
}

func TestCanManageActor(t *testing.T) {
	m := DefaultMatrix()
	self := uuid.New()
	other := uuid.New()

	// Admin manages anyone.
	require.True(t, CanManageActor(m, RoleAdmin, self, other))

	// Self-management requires profile:update, not members:update.
	require.True(t, CanManageActor(m, RoleMember, self, self))
	require.True(t, CanManageActor(m, RoleProspective, self, self))
	require.False(t, CanManageActor(m, RoleGuest, self, self))

	// Non-admins never manage other actors.
	require.False(t, CanManageActor(m, RoleMember, self, other))

	// Anonymous actors manage nobody.
	require.False(t, CanManageActor(m, RoleMember, uuid.Nil, uuid.Nil))
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]Role{
		"admin":        RoleAdmin,
		"Member":       RoleMember,
		" prospective": RoleProspective,
		"guest":        RoleGuest,
		"senator":      RoleGuest,
		"officer":      RoleGuest,
		"past_member":  RoleGuest,
		"candidate":    RoleGuest,
		"":             RoleGuest,
	}
	for raw, want := range cases {
		require.Equal(t, want, NormalizeRole(raw), "raw=%q", raw)
	}
}

func TestParseResourceAndAction(t *testing.T) {
	res, ok := ParseResource("board_positions")
	require.True(t, ok)
	require.Equal(t, ResourceBoardPositions, res)

	_, ok = ParseResource("payments")
	require.False(t, ok)

	act, ok := ParseAction("APPROVE")
	require.True(t, ok)
	require.Equal(t, ActionApprove, act)

	_, ok = ParseAction("destroy")
	require.False(t, ok)
}

func TestActionSetSliceStableOrder(t *testing.T) {
	set := NewActionSet(ActionDelete, ActionCreate, ActionRead)
	require.Equal(t, []Action{ActionCreate, ActionRead, ActionDelete}, set.Slice())
}
