package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GroupManager administers security groups and memberships.
type GroupManager struct {
	store Store
	now   func() time.Time
}

func NewGroupManager(store Store, opts ...Option) (*GroupManager, error) {
	if store == nil {
		return nil, errors.New("security store is required")
	}
	o := buildOptions(opts)
	return &GroupManager{store: store, now: o.now}, nil
}

// CreateGroup allocates a new, empty and unnamed group.
func (m *GroupManager) CreateGroup(ctx context.Context) (*Group, error) {
	group := &Group{CreatedAt: m.now().UTC()}
	if err := m.store.Groups(ctx).Create(ctx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return group, nil
}

// DeleteGroup removes the group together with everything referencing it.
// Memberships and policies go first so no reader ever sees them dangle.
func (m *GroupManager) DeleteGroup(ctx context.Context, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return m.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.Groups(ctx).Find(ctx, groupID); err != nil {
			return err
		}
		if err := tx.Memberships(ctx).DeleteByGroup(ctx, groupID); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		if err := tx.Policies(ctx).DeleteByGroup(ctx, groupID); err != nil {
			return fmt.Errorf("delete policies: %w", err)
		}
		if err := tx.Invitations(ctx).DeleteByGroup(ctx, groupID); err != nil {
			return fmt.Errorf("delete invitations: %w", err)
		}
		if err := tx.Groups(ctx).Unbind(ctx, groupID); err != nil {
			return fmt.Errorf("unbind group name: %w", err)
		}
		return tx.Groups(ctx).Delete(ctx, groupID)
	})
}

// NamedGroup resolves a group bound to a well-known name.
func (m *GroupManager) NamedGroup(ctx context.Context, name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	return m.store.Groups(ctx).FindByName(ctx, name)
}

// AddMember puts identity into group. Adding an existing member is a no-op and
// reports created=false.
func (m *GroupManager) AddMember(ctx context.Context, identityID, groupID string) (bool, error) {
	identityID = strings.TrimSpace(identityID)
	groupID = strings.TrimSpace(groupID)
	if identityID == "" || groupID == "" {
		return false, fmt.Errorf("%w: identity_id and group_id are required", ErrInvalidInput)
	}
	created, err := m.store.Memberships(ctx).Add(ctx, Membership{
		IdentityID: identityID,
		GroupID:    groupID,
		JoinedAt:   m.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return created, nil
}

// RemoveMember drops identity from group. ErrNotFound when it was not a member.
func (m *GroupManager) RemoveMember(ctx context.Context, identityID, groupID string) error {
	identityID = strings.TrimSpace(identityID)
	groupID = strings.TrimSpace(groupID)
	if identityID == "" || groupID == "" {
		return fmt.Errorf("%w: identity_id and group_id are required", ErrInvalidInput)
	}
	return m.store.Memberships(ctx).Remove(ctx, identityID, groupID)
}

func (m *GroupManager) IsMember(ctx context.Context, identityID, groupID string) (bool, error) {
	if identityID == "" || groupID == "" {
		return false, fmt.Errorf("%w: identity_id and group_id are required", ErrInvalidInput)
	}
	return m.store.Memberships(ctx).Exists(ctx, identityID, groupID)
}

// CountMembers returns how many membership rows exist for the pair: 0 or 1.
func (m *GroupManager) CountMembers(ctx context.Context, identityID, groupID string) (int, error) {
	return m.store.Memberships(ctx).Count(ctx, identityID, groupID)
}

// MembersOf lists the identities of a group, skipping rows whose identity is gone.
func (m *GroupManager) MembersOf(ctx context.Context, groupID string) ([]*Identity, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	memberships, err := m.store.Memberships(ctx).ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	identities := m.store.Identities(ctx)
	out := make([]*Identity, 0, len(memberships))
	for _, ms := range memberships {
		identity, err := identities.Find(ctx, ms.IdentityID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, nil
}

// GroupsOf lists the memberships of an identity.
func (m *GroupManager) GroupsOf(ctx context.Context, identityID string) ([]Membership, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	return m.store.Memberships(ctx).ListByIdentity(ctx, identityID)
}
