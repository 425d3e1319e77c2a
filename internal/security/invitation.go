package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/obs"
)

// DefaultInvitationMaxAge is how long a never-activated invitation survives
// before the sweep reclaims it.
const DefaultInvitationMaxAge = 6 * time.Hour

// Invitations issues token-bound group memberships for unregistered users.
type Invitations struct {
	store      Store
	groups     *GroupManager
	policies   *PolicyEngine
	identities *Identities
	now        func() time.Time
	tokenBytes int
}

func NewInvitations(store Store, groups *GroupManager, policies *PolicyEngine, identities *Identities, opts ...Option) (*Invitations, error) {
	if store == nil || groups == nil || policies == nil || identities == nil {
		return nil, errors.New("invitations: store, groups, policies and identities are required")
	}
	o := buildOptions(opts)
	return &Invitations{
		store:      store,
		groups:     groups,
		policies:   policies,
		identities: identities,
		now:        o.now,
		tokenBytes: o.tokenBytes,
	}, nil
}

// Create allocates a fresh empty group and a random token bound to it. The
// invitation grants nothing until a policy is attached to that group. email
// is optional and names the invitee when known.
func (s *Invitations) Create(ctx context.Context, email string) (*Invitation, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email != "" && !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	token, err := ids.Secret(s.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	inv := &Invitation{Token: token, Email: email, CreatedAt: s.now().UTC()}
	err = s.store.WithTx(ctx, func(tx Store) error {
		group := &Group{CreatedAt: inv.CreatedAt}
		if err := tx.Groups(ctx).Create(ctx, group); err != nil {
			return fmt.Errorf("create invitation group: %w", err)
		}
		inv.GroupID = group.ID
		return tx.Invitations(ctx).Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Resolve looks an invitation up by token.
func (s *Invitations) Resolve(ctx context.Context, token string) (*Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: invitation token is required", ErrInvalidInput)
	}
	return s.store.Invitations(ctx).FindByToken(ctx, token)
}

// HasActivePolicies reports whether the invitation's group holds a policy valid at at.
func (s *Invitations) HasActivePolicies(ctx context.Context, token string, at time.Time) (bool, error) {
	inv, err := s.Resolve(ctx, token)
	if err != nil {
		return false, err
	}
	return s.policies.HasActivePolicies(ctx, inv.GroupID, at)
}

// Consume signs the invitee on. Unknown or not yet activated tokens, and
// tokens held by someone who is already a registered user, are denied. A
// missing invitee identity is provisioned passwordless and added to the
// invitation group before login.
//
// Every step is idempotent so a retry after a crash converges on the same
// identity and membership.
func (s *Invitations) Consume(ctx context.Context, token string, at time.Time, login LoginFunc) (Outcome, error) {
	token = strings.TrimSpace(token)
	if token == "" || login == nil {
		return OutcomeFailed, nil
	}
	inv, err := s.store.Invitations(ctx).FindByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return OutcomeDenied, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve invitation: %w", err)
	}
	active, err := s.policies.HasActivePolicies(ctx, inv.GroupID, at)
	if err != nil {
		return OutcomeFailed, err
	}
	if !active {
		return OutcomeDenied, nil
	}

	identity, err := s.existingInvitee(ctx, inv)
	switch {
	case err == nil:
		registered, err := s.isRegisteredUser(ctx, identity.ID)
		if err != nil {
			return OutcomeFailed, err
		}
		if registered {
			obs.Logger().Info().Str("invitation_id", inv.ID).Str("identity_id", identity.ID).
				Msg("invitation refused: identity is already a registered user")
			return OutcomeDenied, nil
		}
	case errors.Is(err, ErrNotFound):
		identity, _, err = s.identities.Ensure(ctx, NewIdentity{
			Name:   inviteeName(inv),
			Email:  inv.Email,
			Status: StatusActive,
		})
		if err != nil {
			return OutcomeFailed, fmt.Errorf("provision invitee: %w", err)
		}
	default:
		return OutcomeFailed, err
	}

	if _, err := s.groups.AddMember(ctx, identity.ID, inv.GroupID); err != nil {
		return OutcomeFailed, err
	}
	return login(ctx, identity)
}

func (s *Invitations) existingInvitee(ctx context.Context, inv *Invitation) (*Identity, error) {
	if inv.Email != "" {
		identity, err := s.store.Identities(ctx).FindByEmail(ctx, inv.Email)
		if !errors.Is(err, ErrNotFound) {
			return identity, err
		}
	}
	return s.store.Identities(ctx).FindByName(ctx, inviteeName(inv))
}

func (s *Invitations) isRegisteredUser(ctx context.Context, identityID string) (bool, error) {
	users, err := s.store.Groups(ctx).FindByName(ctx, GroupUsers)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.store.Memberships(ctx).Exists(ctx, identityID, users.ID)
}

// inviteeName derives the login name of a provisioned invitee. It depends only
// on the invitation so retried logins find the identity created earlier.
func inviteeName(inv *Invitation) string {
	if inv.Email != "" {
		return inv.Email
	}
	return "invitee-" + strings.ToLower(inv.ID)
}

// SweepReport summarises one cleanup run.
type SweepReport struct {
	Invitations int
	Identities  int
	Skipped     int
}

// SweepExpired reclaims invitations older than maxAge whose group never got a
// valid policy, together with their groups. Member identities are deleted
// unless already deleted or registered users. The run holds no lock: overlapping runs are safe because
// each step tolerates work another run already did. A failing invitation is
// reported and the sweep moves on to the next one.
func (s *Invitations) SweepExpired(ctx context.Context, now time.Time, maxAge time.Duration) (SweepReport, error) {
	if maxAge <= 0 {
		maxAge = DefaultInvitationMaxAge
	}
	var report SweepReport
	expired, err := s.store.Invitations(ctx).ListCreatedBefore(ctx, now.Add(-maxAge))
	if err != nil {
		return report, fmt.Errorf("list expired invitations: %w", err)
	}
	var errs []error
	for _, inv := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		deleted, swept, err := s.sweepOne(ctx, inv, now)
		if err != nil {
			obs.Logger().Error().Err(err).Str("invitation_id", inv.ID).Msg("invitation sweep failed")
			errs = append(errs, fmt.Errorf("sweep invitation %s: %w", inv.ID, err))
			continue
		}
		report.Identities += deleted
		if swept {
			report.Invitations++
		} else {
			report.Skipped++
		}
	}
	obs.ObserveSweep(report.Invitations, report.Identities)
	return report, errors.Join(errs...)
}

func (s *Invitations) sweepOne(ctx context.Context, inv Invitation, now time.Time) (int, bool, error) {
	active, err := s.policies.HasActivePolicies(ctx, inv.GroupID, now)
	if err != nil {
		return 0, false, err
	}
	if active {
		return 0, false, nil
	}
	members, err := s.store.Memberships(ctx).ListByGroup(ctx, inv.GroupID)
	if err != nil {
		return 0, false, err
	}
	deleted := 0
	for _, m := range members {
		identity, err := s.store.Identities(ctx).Find(ctx, m.IdentityID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, false, err
		}
		if identity.Status.Deleted() {
			continue
		}
		registered, err := s.isRegisteredUser(ctx, identity.ID)
		if err != nil {
			return deleted, false, err
		}
		if registered {
			continue
		}
		if err := s.identities.Delete(ctx, identity.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return deleted, false, err
		}
		deleted++
	}
	// The group goes with its invitation, taking remaining memberships along.
	err = s.groups.DeleteGroup(ctx, inv.GroupID)
	if errors.Is(err, ErrNotFound) {
		err = s.store.Invitations(ctx).Delete(ctx, inv.ID)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return deleted, false, err
	}
	return deleted, true, nil
}
