package security_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/security"
	"learnhub.dev/internal/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx         context.Context
	clock       *clock
	store       *memory.Store
	groups      *security.GroupManager
	policies    *security.PolicyEngine
	roles       *security.RoleResolver
	identities  *security.Identities
	invitations *security.Invitations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), clock: newClock(), store: memory.New()}
	opt := security.WithClock(f.clock.Now)

	var err error
	f.groups, err = security.NewGroupManager(f.store, opt)
	require.NoError(t, err)
	f.policies, err = security.NewPolicyEngine(f.store, opt)
	require.NoError(t, err)
	f.roles, err = security.NewRoleResolver(f.store, f.policies)
	require.NoError(t, err)
	f.identities, err = security.NewIdentities(f.store, opt)
	require.NoError(t, err)
	f.invitations, err = security.NewInvitations(f.store, f.groups, f.policies, f.identities, opt)
	require.NoError(t, err)
	require.NoError(t, security.Bootstrap(f.ctx, f.groups, f.policies))
	return f
}

func (f *fixture) identity(t *testing.T, name string) *security.Identity {
	t.Helper()
	identity, err := f.identities.Create(f.ctx, security.NewIdentity{Name: name, Email: name + "@example.org"})
	require.NoError(t, err)
	return identity
}

func (f *fixture) group(t *testing.T) *security.Group {
	t.Helper()
	group, err := f.groups.CreateGroup(f.ctx)
	require.NoError(t, err)
	return group
}

func (f *fixture) named(t *testing.T, name string) *security.Group {
	t.Helper()
	group, err := f.groups.NamedGroup(f.ctx, name)
	require.NoError(t, err)
	return group
}

func ptr(t time.Time) *time.Time { return &t }
