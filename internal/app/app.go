// Package app assembles the security services on top of the configured store.
package app

import (
	"context"
	"fmt"

	"learnhub.dev/internal/config"
	"learnhub.dev/internal/migrate"
	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
	"learnhub.dev/internal/store/memory"
	"learnhub.dev/internal/store/pg"
)

// Services is the wired security core.
type Services struct {
	Store       security.Store
	Groups      *security.GroupManager
	Policies    *security.PolicyEngine
	Roles       *security.RoleResolver
	Identities  *security.Identities
	Invitations *security.Invitations

	// PG is nil when running on the in-memory store.
	PG *pg.Store
}

// Open connects the store named by cfg, applies the embedded schema on
// PostgreSQL, and bootstraps the well-known groups.
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	svc := &Services{}
	if cfg.DatabaseURL != "" {
		db, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := migrate.NewManager(db.DB(), migrate.Schema()).Up(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		svc.PG = db
		svc.Store = db
	} else {
		obs.Logger().Warn().Msg("no database configured, using in-memory store")
		svc.Store = memory.New()
	}

	if err := svc.wire(); err != nil {
		svc.Close()
		return nil, err
	}
	if err := security.Bootstrap(ctx, svc.Groups, svc.Policies); err != nil {
		svc.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if cfg.AdminName != "" {
		if err := svc.ensureAdmin(ctx, cfg.AdminName, cfg.AdminPassword); err != nil {
			svc.Close()
			return nil, fmt.Errorf("provision admin: %w", err)
		}
	}
	return svc, nil
}

func (s *Services) wire() error {
	var err error
	if s.Groups, err = security.NewGroupManager(s.Store); err != nil {
		return err
	}
	if s.Policies, err = security.NewPolicyEngine(s.Store); err != nil {
		return err
	}
	if s.Roles, err = security.NewRoleResolver(s.Store, s.Policies); err != nil {
		return err
	}
	if s.Identities, err = security.NewIdentities(s.Store); err != nil {
		return err
	}
	s.Invitations, err = security.NewInvitations(s.Store, s.Groups, s.Policies, s.Identities)
	return err
}

// ensureAdmin creates the named identity on first start and keeps it in the
// users and admins groups. An existing identity keeps its password.
func (s *Services) ensureAdmin(ctx context.Context, name, password string) error {
	identity, created, err := s.Identities.Ensure(ctx, security.NewIdentity{Name: name, Password: password})
	if err != nil {
		return err
	}
	for _, g := range []string{security.GroupUsers, security.GroupAdmins} {
		group, err := s.Groups.NamedGroup(ctx, g)
		if err != nil {
			return err
		}
		if _, err := s.Groups.AddMember(ctx, identity.ID, group.ID); err != nil {
			return err
		}
	}
	if created {
		obs.Logger().Info().Str("identity_id", identity.ID).Str("name", name).Msg("administrator provisioned")
	}
	return nil
}

// Ping reports store readiness. The in-memory store is always ready.
func (s *Services) Ping(ctx context.Context) error {
	if s.PG == nil {
		return nil
	}
	return s.PG.Ping(ctx)
}

func (s *Services) Close() {
	if s.PG != nil {
		_ = s.PG.Close()
	}
}
