package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/security"
)

func TestRolesForAdminGroup(t *testing.T) {
	f := newFixture(t)
	g := f.group(t)
	_, err := f.policies.Grant(f.ctx, g.ID, security.PermHasRole, security.TypeRef(security.RoleTypeAdmin), nil, nil)
	require.NoError(t, err)
	alice := f.identity(t, "alice")
	_, err = f.groups.AddMember(f.ctx, alice.ID, g.ID)
	require.NoError(t, err)

	roles, err := f.roles.RolesFor(f.ctx, alice.ID, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, security.Roles{Admin: true}, roles)
}

func TestRolesForWellKnownGroups(t *testing.T) {
	f := newFixture(t)
	bob := f.identity(t, "bob")
	for _, name := range []string{security.GroupAuthors, security.GroupUserManagers} {
		_, err := f.groups.AddMember(f.ctx, bob.ID, f.named(t, name).ID)
		require.NoError(t, err)
	}

	roles, err := f.roles.RolesFor(f.ctx, bob.ID, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, security.Roles{Author: true, UserManager: true}, roles)
}

func TestRolesReflectCurrentGrants(t *testing.T) {
	f := newFixture(t)
	g := f.group(t)
	alice := f.identity(t, "alice")
	_, err := f.groups.AddMember(f.ctx, alice.ID, g.ID)
	require.NoError(t, err)
	until := f.clock.Now().Add(time.Hour)
	_, err = f.policies.Grant(f.ctx, g.ID, security.PermHasRole, security.TypeRef(security.RoleTypeGroupManager), nil, ptr(until))
	require.NoError(t, err)

	roles, err := f.roles.RolesFor(f.ctx, alice.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, roles.GroupManager)

	roles, err = f.roles.RolesFor(f.ctx, alice.ID, until.Add(time.Second))
	require.NoError(t, err)
	require.False(t, roles.GroupManager)
}

func TestRolesForInvitee(t *testing.T) {
	f := newFixture(t)
	inv, err := f.invitations.Create(f.ctx, "")
	require.NoError(t, err)
	carol := f.identity(t, "carol")
	_, err = f.groups.AddMember(f.ctx, carol.ID, inv.GroupID)
	require.NoError(t, err)

	roles, err := f.roles.RolesFor(f.ctx, carol.ID, f.clock.Now())
	require.NoError(t, err)
	require.False(t, roles.Invitee)

	_, err = f.policies.Grant(f.ctx, inv.GroupID, security.PermAccess, security.ResourceRef{TypeName: "course", ID: 1}, nil, nil)
	require.NoError(t, err)
	roles, err = f.roles.RolesFor(f.ctx, carol.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, roles.Invitee)
}
