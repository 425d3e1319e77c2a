package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RoleResolver derives the role snapshot of an identity. Nothing is cached:
// every call reflects the grants in force at the requested time.
type RoleResolver struct {
	store    Store
	policies *PolicyEngine
}

func NewRoleResolver(store Store, policies *PolicyEngine) (*RoleResolver, error) {
	if store == nil || policies == nil {
		return nil, errors.New("security store and policy engine are required")
	}
	return &RoleResolver{store: store, policies: policies}, nil
}

// RolesFor evaluates HasRole on each role type plus invitation membership.
func (r *RoleResolver) RolesFor(ctx context.Context, identityID string, at time.Time) (Roles, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Roles{}, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	var roles Roles
	checks := []struct {
		roleType string
		dst      *bool
	}{
		{RoleTypeAdmin, &roles.Admin},
		{RoleTypeAuthor, &roles.Author},
		{RoleTypeGroupManager, &roles.GroupManager},
		{RoleTypeUserManager, &roles.UserManager},
		{RoleTypeGuestOnly, &roles.GuestOnly},
		{RoleTypeInstResourceManager, &roles.InstResourceManager},
	}
	for _, c := range checks {
		ok, err := r.policies.IsPermitted(ctx, identityID, PermHasRole, TypeRef(c.roleType), true, at)
		if err != nil {
			return Roles{}, fmt.Errorf("resolve %s: %w", c.roleType, err)
		}
		*c.dst = ok
	}
	invitee, err := r.IsInvitee(ctx, identityID, at)
	if err != nil {
		return Roles{}, err
	}
	roles.Invitee = invitee
	return roles, nil
}

// IsInvitee reports whether the identity sits in the group of an invitation
// that still carries an active policy.
func (r *RoleResolver) IsInvitee(ctx context.Context, identityID string, at time.Time) (bool, error) {
	invitations, err := r.store.Invitations(ctx).ListByMember(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("list invitations: %w", err)
	}
	for _, inv := range invitations {
		active, err := r.policies.HasActivePolicies(ctx, inv.GroupID, at)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}
