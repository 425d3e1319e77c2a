package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewIdentity describes an identity to be created.
type NewIdentity struct {
	Name     string
	Email    string
	Password string
	Language string
	Status   IdentityStatus
}

// Identities creates and looks up identities.
type Identities struct {
	store Store
	now   func() time.Time
}

func NewIdentities(store Store, opts ...Option) (*Identities, error) {
	if store == nil {
		return nil, errors.New("security store is required")
	}
	o := buildOptions(opts)
	return &Identities{store: store, now: o.now}, nil
}

// Create validates and stores a new identity. An empty password yields a
// passwordless identity that can only sign on through a non-local provider.
func (s *Identities) Create(ctx context.Context, spec NewIdentity) (*Identity, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: identity name is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(spec.Email))
	if email != "" && !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	status := spec.Status
	if status == 0 {
		status = StatusActive
	}
	var hash string
	if spec.Password != "" {
		h, err := HashPassword(spec.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		hash = h
	}
	identity := &Identity{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Language:     strings.TrimSpace(spec.Language),
		Status:       status,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Identities(ctx).Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Ensure returns the live identity named spec.Name, creating it when missing.
// Concurrent callers racing on the same name converge on one identity.
func (s *Identities) Ensure(ctx context.Context, spec NewIdentity) (*Identity, bool, error) {
	existing, err := s.FindByName(ctx, spec.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	created, err := s.Create(ctx, spec)
	if errors.Is(err, ErrConflict) {
		existing, err = s.FindByName(ctx, spec.Name)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *Identities) Find(ctx context.Context, id string) (*Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	return s.store.Identities(ctx).Find(ctx, id)
}

func (s *Identities) FindByName(ctx context.Context, name string) (*Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: identity name is required", ErrInvalidInput)
	}
	return s.store.Identities(ctx).FindByName(ctx, name)
}

func (s *Identities) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.Identities(ctx).FindByEmail(ctx, email)
}

// SetStatus changes the lifecycle status of an identity.
func (s *Identities) SetStatus(ctx context.Context, id string, status IdentityStatus) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	if status <= 0 {
		return fmt.Errorf("%w: unsupported status %d", ErrInvalidInput, status)
	}
	return s.store.Identities(ctx).UpdateStatus(ctx, id, status)
}

// Delete moves the identity to the deleted tier. Deleting twice is a no-op.
func (s *Identities) Delete(ctx context.Context, id string) error {
	identity, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if identity.Status.Deleted() {
		return nil
	}
	return s.store.Identities(ctx).UpdateStatus(ctx, identity.ID, StatusDeleted)
}

// TouchLastLogin records a successful sign-on.
func (s *Identities) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.store.Identities(ctx).TouchLastLogin(ctx, id, at.UTC())
}
