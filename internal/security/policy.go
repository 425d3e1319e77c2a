package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PolicyEngine stores grants and answers permission queries.
type PolicyEngine struct {
	store Store
	now   func() time.Time
}

func NewPolicyEngine(store Store, opts ...Option) (*PolicyEngine, error) {
	if store == nil {
		return nil, errors.New("security store is required")
	}
	o := buildOptions(opts)
	return &PolicyEngine{store: store, now: o.now}, nil
}

// Grant gives perm on resource to every member of the group. Either bound of
// the validity window may be nil.
func (e *PolicyEngine) Grant(ctx context.Context, groupID string, perm Permission, resource ResourceRef, validFrom, validTo *time.Time) (*Policy, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	if !perm.Valid() {
		return nil, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, perm)
	}
	if err := resource.validate(); err != nil {
		return nil, err
	}
	if validFrom != nil && validTo != nil && validFrom.After(*validTo) {
		return nil, fmt.Errorf("%w: valid_from must not be after valid_to", ErrInvalidInput)
	}
	if _, err := e.store.Groups(ctx).Find(ctx, groupID); err != nil {
		return nil, err
	}
	policy := &Policy{
		GroupID:    groupID,
		Permission: perm,
		Resource:   resource,
		ValidFrom:  utcPtr(validFrom),
		ValidTo:    utcPtr(validTo),
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.Policies(ctx).Create(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// Revoke deletes exactly one grant. ErrNotFound when nothing matches.
func (e *PolicyEngine) Revoke(ctx context.Context, groupID string, perm Permission, resource ResourceRef) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	if !perm.Valid() {
		return fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, perm)
	}
	if err := resource.validate(); err != nil {
		return err
	}
	return e.store.Policies(ctx).Delete(ctx, groupID, perm, resource)
}

// IsPermitted reports whether identity holds perm on resource at the given time
// through any of its groups.
//
// With checkTypeRight a type-level grant (id 0) satisfies a check on any
// instance of the type; without it only a grant on the exact id counts.
func (e *PolicyEngine) IsPermitted(ctx context.Context, identityID string, perm Permission, resource ResourceRef, checkTypeRight bool, at time.Time) (bool, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return false, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	if !perm.Valid() {
		return false, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, perm)
	}
	if err := resource.validate(); err != nil {
		return false, err
	}

	candidates := []int64{resource.ID}
	if checkTypeRight && resource.ID != 0 {
		candidates = append(candidates, 0)
	}
	policies, err := e.store.Policies(ctx).Find(ctx, PolicyCriteria{
		IdentityID:   identityID,
		Permission:   perm,
		ResourceType: resource.TypeName,
		ResourceIDs:  candidates,
	})
	if err != nil {
		return false, fmt.Errorf("find policies: %w", err)
	}
	for _, p := range policies {
		if matches(p, perm, resource, checkTypeRight) && p.ActiveAt(at) {
			return true, nil
		}
	}
	return false, nil
}

// PoliciesOfGroup lists every grant of a group.
func (e *PolicyEngine) PoliciesOfGroup(ctx context.Context, groupID string) ([]Policy, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrInvalidInput)
	}
	return e.store.Policies(ctx).Find(ctx, PolicyCriteria{GroupID: groupID})
}

// PoliciesOfResource lists grants on exactly resource, optionally for one group.
func (e *PolicyEngine) PoliciesOfResource(ctx context.Context, resource ResourceRef, groupID string) ([]Policy, error) {
	if err := resource.validate(); err != nil {
		return nil, err
	}
	return e.store.Policies(ctx).Find(ctx, PolicyCriteria{
		GroupID:      strings.TrimSpace(groupID),
		ResourceType: resource.TypeName,
		ResourceIDs:  []int64{resource.ID},
	})
}

// HasActivePolicies reports whether the group holds at least one grant valid at at.
func (e *PolicyEngine) HasActivePolicies(ctx context.Context, groupID string, at time.Time) (bool, error) {
	policies, err := e.PoliciesOfGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, p := range policies {
		if p.ActiveAt(at) {
			return true, nil
		}
	}
	return false, nil
}

// matches re-checks the store's coarse filter so a lenient store cannot widen access.
func matches(p Policy, perm Permission, resource ResourceRef, checkTypeRight bool) bool {
	if p.Permission != perm || p.Resource.TypeName != resource.TypeName {
		return false
	}
	if p.Resource.ID == resource.ID {
		return true
	}
	return checkTypeRight && p.Resource.ID == 0
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
