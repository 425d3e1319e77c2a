package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// wellKnownGroups maps each bootstrap group to the role type it is granted
// HasRole on. The users group carries no role.
var wellKnownGroups = []struct {
	name     string
	roleType string
}{
	{GroupUsers, ""},
	{GroupAnonymous, RoleTypeGuestOnly},
	{GroupAdmins, RoleTypeAdmin},
	{GroupAuthors, RoleTypeAuthor},
	{GroupGroupManagers, RoleTypeGroupManager},
	{GroupUserManagers, RoleTypeUserManager},
	{GroupInstResourceManagers, RoleTypeInstResourceManager},
}

// EnsureNamedGroup returns the group bound to name, creating and binding a new
// group when none exists.
func (m *GroupManager) EnsureNamedGroup(ctx context.Context, name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	groups := m.store.Groups(ctx)
	existing, err := groups.FindByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	group, err := m.CreateGroup(ctx)
	if err != nil {
		return nil, err
	}
	if err := groups.Bind(ctx, name, group.ID); err != nil {
		// Lost a race with another bootstrap; drop our group and use theirs.
		_ = groups.Delete(ctx, group.ID)
		if errors.Is(err, ErrConflict) {
			return groups.FindByName(ctx, name)
		}
		return nil, err
	}
	return group, nil
}

// Bootstrap creates the well-known groups and their role policies. It is
// idempotent and safe to run on every start.
func Bootstrap(ctx context.Context, groups *GroupManager, policies *PolicyEngine) error {
	for _, wk := range wellKnownGroups {
		group, err := groups.EnsureNamedGroup(ctx, wk.name)
		if err != nil {
			return fmt.Errorf("bootstrap group %s: %w", wk.name, err)
		}
		if wk.roleType == "" {
			continue
		}
		_, err = policies.Grant(ctx, group.ID, PermHasRole, TypeRef(wk.roleType), nil, nil)
		if err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("bootstrap role %s: %w", wk.roleType, err)
		}
	}
	return nil
}
