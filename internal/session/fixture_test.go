package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/security"
	"learnhub.dev/internal/session"
	"learnhub.dev/internal/store/memory"
)

type fakeConn struct {
	addr        string
	agent       string
	secure      bool
	cookies     []*http.Cookie
	expired     []string
	invalidated bool
}

func (c *fakeConn) RemoteAddr() string       { return c.addr }
func (c *fakeConn) UserAgent() string        { return c.agent }
func (c *fakeConn) Secure() bool             { return c.secure }
func (c *fakeConn) Cookies() []*http.Cookie  { return c.cookies }
func (c *fakeConn) ExpireCookie(name string) { c.expired = append(c.expired, name) }
func (c *fakeConn) Invalidate() error {
	if c.invalidated {
		return session.ErrConnInvalidated
	}
	c.invalidated = true
	return nil
}

type fakeResolver struct {
	names map[string]string
	delay time.Duration
}

func (r fakeResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if name, ok := r.names[addr]; ok {
		return []string{name}, nil
	}
	return nil, errors.New("no such host")
}

type fixture struct {
	ctx         context.Context
	now         time.Time
	registry    *session.Registry
	groups      *security.GroupManager
	policies    *security.PolicyEngine
	identities  *security.Identities
	invitations *security.Invitations
	auth        *session.Authenticator
}

func newFixture(t *testing.T, settings session.Settings) *fixture {
	t.Helper()
	return newFixtureWithStore(t, settings, func(m *memory.Store) security.Store { return m })
}

// newFixtureWithStore lets a test wrap the memory store the services run on.
func newFixtureWithStore(t *testing.T, settings session.Settings, wrap func(*memory.Store) security.Store) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		registry: session.NewRegistry(settings),
	}
	clock := func() time.Time { return f.now }
	store := wrap(memory.New())
	opt := security.WithClock(clock)

	var err error
	f.groups, err = security.NewGroupManager(store, opt)
	require.NoError(t, err)
	f.policies, err = security.NewPolicyEngine(store, opt)
	require.NoError(t, err)
	roles, err := security.NewRoleResolver(store, f.policies)
	require.NoError(t, err)
	f.identities, err = security.NewIdentities(store, opt)
	require.NoError(t, err)
	f.invitations, err = security.NewInvitations(store, f.groups, f.policies, f.identities, opt)
	require.NoError(t, err)
	require.NoError(t, security.Bootstrap(f.ctx, f.groups, f.policies))

	f.auth, err = session.NewAuthenticator(session.Deps{
		Registry:    f.registry,
		Roles:       roles,
		Identities:  f.identities,
		Groups:      f.groups,
		Invitations: f.invitations,
		Locales:     session.NewLocales([]string{"en", "de", "fr"}, "en"),
	},
		session.WithClock(clock),
		session.WithHostResolver(fakeResolver{names: map[string]string{"10.0.0.7": "lab7.example.org."}}, 50*time.Millisecond),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) identity(t *testing.T, name string, groups ...string) *security.Identity {
	t.Helper()
	identity, err := f.identities.Create(f.ctx, security.NewIdentity{Name: name, Email: name + "@example.org", Password: "pw-" + name})
	require.NoError(t, err)
	for _, g := range groups {
		group, err := f.groups.NamedGroup(f.ctx, g)
		require.NoError(t, err)
		_, err = f.groups.AddMember(f.ctx, identity.ID, group.ID)
		require.NoError(t, err)
	}
	return identity
}

func conn() *fakeConn {
	return &fakeConn{addr: "10.0.0.7:51234", agent: "test-agent", secure: true}
}

func ptr(t time.Time) *time.Time { return &t }

// gatedStore holds the first policy lookup made for identityID until release
// is closed, so a test can interleave a second login with role resolution.
type gatedStore struct {
	*memory.Store
	identityID string
	once       sync.Once
	entered    chan struct{}
	release    chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Policies(ctx context.Context) security.PolicyStore {
	return gatedPolicies{PolicyStore: g.Store.Policies(ctx), g: g}
}

type gatedPolicies struct {
	security.PolicyStore
	g *gatedStore
}

func (p gatedPolicies) Find(ctx context.Context, c security.PolicyCriteria) ([]security.Policy, error) {
	if p.g.identityID != "" && c.IdentityID == p.g.identityID {
		p.g.once.Do(func() {
			close(p.g.entered)
			<-p.g.release
		})
	}
	return p.PolicyStore.Find(ctx, c)
}
