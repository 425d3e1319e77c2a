package security

import (
	"context"
	"time"
)

// Store describes persistence operations required by the security core.
// Implementations must make every single call atomic with respect to
// concurrent readers; WithTx groups several calls into one transaction.
type Store interface {
	Identities(ctx context.Context) IdentityStore
	Groups(ctx context.Context) GroupStore
	Memberships(ctx context.Context) MembershipStore
	Policies(ctx context.Context) PolicyStore
	Invitations(ctx context.Context) InvitationStore

	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// IdentityStore manages identities.
type IdentityStore interface {
	// Create fails with ErrConflict when a non-deleted identity already uses the name.
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	// FindByName only considers non-deleted identities.
	FindByName(ctx context.Context, name string) (*Identity, error)
	// FindByEmail only considers non-deleted identities.
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	UpdateStatus(ctx context.Context, id string, status IdentityStatus) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// GroupStore manages security groups and their optional names.
type GroupStore interface {
	Create(ctx context.Context, group *Group) error
	Find(ctx context.Context, id string) (*Group, error)
	Delete(ctx context.Context, id string) error
	// Bind names a group. ErrConflict when the name is taken.
	Bind(ctx context.Context, name, groupID string) error
	Unbind(ctx context.Context, groupID string) error
	FindByName(ctx context.Context, name string) (*Group, error)
}

// MembershipStore manages identity/group pairs.
type MembershipStore interface {
	// Add inserts the pair and reports whether a row was created. An existing
	// pair is left untouched and reported as created=false.
	Add(ctx context.Context, m Membership) (bool, error)
	Remove(ctx context.Context, identityID, groupID string) error
	Exists(ctx context.Context, identityID, groupID string) (bool, error)
	Count(ctx context.Context, identityID, groupID string) (int, error)
	ListByGroup(ctx context.Context, groupID string) ([]Membership, error)
	ListByIdentity(ctx context.Context, identityID string) ([]Membership, error)
	DeleteByGroup(ctx context.Context, groupID string) error
}

// PolicyCriteria narrows PolicyStore.Find. Zero-valued fields do not filter.
type PolicyCriteria struct {
	// IdentityID restricts results to policies of groups the identity belongs to.
	IdentityID   string
	GroupID      string
	Permission   Permission
	ResourceType string
	// ResourceIDs restricts results to policies whose resource id is in the set.
	ResourceIDs []int64
}

// PolicyStore manages policies.
type PolicyStore interface {
	// Create fails with ErrConflict for an existing (group, permission, resource).
	Create(ctx context.Context, policy *Policy) error
	Delete(ctx context.Context, groupID string, perm Permission, resource ResourceRef) error
	DeleteByGroup(ctx context.Context, groupID string) error
	Find(ctx context.Context, criteria PolicyCriteria) ([]Policy, error)
}

// InvitationStore manages invitations.
type InvitationStore interface {
	Create(ctx context.Context, inv *Invitation) error
	FindByToken(ctx context.Context, token string) (*Invitation, error)
	ListCreatedBefore(ctx context.Context, before time.Time) ([]Invitation, error)
	// ListByMember returns invitations whose group contains the identity.
	ListByMember(ctx context.Context, identityID string) ([]Invitation, error)
	Delete(ctx context.Context, id string) error
	DeleteByGroup(ctx context.Context, groupID string) error
}
