package session_test

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
	"learnhub.dev/internal/session"
	"learnhub.dev/internal/store/memory"
)

func TestLoginNilIdentityFails(t *testing.T) {
	f := newFixture(t, session.Settings{})
	s := session.New()

	outcome, err := f.auth.Login(f.ctx, s, conn(), nil, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeFailed, outcome)
	require.Equal(t, session.StateAnonymous, s.State())
}

func TestLoginDeniedStatusIsAudited(t *testing.T) {
	f := newFixture(t, session.Settings{})
	bob := f.identity(t, "bob")
	bob.Status = security.StatusLoginDenied

	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	outcome, err := f.auth.Login(f.ctx, session.New(), conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeDenied, outcome)
	require.Contains(t, buf.String(), `"event":"session.login.denied"`)
	require.Zero(t, f.registry.Active())
}

func TestLoginPopulatesSession(t *testing.T) {
	f := newFixture(t, session.Settings{})
	carl := f.identity(t, "carl", security.GroupAuthors)
	carl.Language = "de-CH"
	s := session.New()

	outcome, err := f.auth.Login(f.ctx, s, conn(), carl, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)

	v := s.View()
	require.Equal(t, "signed_on", v.State)
	require.Equal(t, carl.ID, v.Identity.ID)
	require.True(t, v.Roles.Author)
	require.False(t, v.Roles.Admin)
	require.Equal(t, "de", v.Locale)
	require.Equal(t, "lab7.example.org", v.Client.Hostname)
	require.Equal(t, "10.0.0.7:51234", v.Client.RemoteAddr)
	require.Equal(t, "test-agent", v.Client.UserAgent)
	require.True(t, v.Client.Secure)
	require.Equal(t, session.ProviderLocal, v.Client.AuthProvider)
	require.Equal(t, int64(1), f.registry.Active())

	stored, err := f.identities.Find(f.ctx, carl.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	require.True(t, stored.LastLogin.Equal(f.now))
}

func TestLoginHostnameFallsBackToAddress(t *testing.T) {
	f := newFixture(t, session.Settings{})
	dana := f.identity(t, "dana")
	s := session.New()
	c := &fakeConn{addr: "192.0.2.1:443"}

	outcome, err := f.auth.Login(f.ctx, s, c, dana, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.Equal(t, "192.0.2.1", s.View().Client.Hostname)
}

func TestLoginTwiceReplacesState(t *testing.T) {
	f := newFixture(t, session.Settings{MaxSessions: 1})
	admin := f.identity(t, "root", security.GroupAdmins)
	bob := f.identity(t, "bob")
	s := session.New()

	outcome, err := f.auth.Login(f.ctx, s, conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	outcome, err = f.auth.Login(f.ctx, s, conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.Equal(t, int64(1), f.registry.Active())

	outcome, err = f.auth.Login(f.ctx, s, conn(), admin, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.True(t, s.View().Roles.Admin)

	outcome, err = f.auth.Login(f.ctx, s, conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	v := s.View()
	require.Equal(t, bob.ID, v.Identity.ID)
	require.False(t, v.Roles.Admin, "roles of the previous identity must not leak")
	require.Equal(t, int64(1), f.registry.Active())
}

func TestOverlappingLoginsDoNotMixIdentities(t *testing.T) {
	gate := newGatedStore()
	f := newFixtureWithStore(t, session.Settings{}, func(m *memory.Store) security.Store {
		gate.Store = m
		return gate
	})
	root := f.identity(t, "root", security.GroupAdmins)
	mallory := f.identity(t, "mallory", security.GroupUsers)
	gate.identityID = root.ID
	s := session.New()

	first := make(chan security.Outcome, 1)
	go func() {
		outcome, _ := f.auth.Login(f.ctx, s, conn(), root, session.ProviderLocal)
		first <- outcome
	}()
	<-gate.entered

	outcome, err := f.auth.Login(f.ctx, s, conn(), mallory, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)

	close(gate.release)
	require.Equal(t, security.OutcomeFailed, <-first, "the superseded login must not commit")

	v := s.View()
	require.Equal(t, "signed_on", v.State)
	require.Equal(t, mallory.ID, v.Identity.ID)
	require.False(t, v.Roles.Admin)
	require.Equal(t, int64(1), f.registry.Active())
}

func TestLoginBlockedAdminBypass(t *testing.T) {
	f := newFixture(t, session.Settings{LoginBlocked: true})
	admin := f.identity(t, "root", security.GroupAdmins)
	bob := f.identity(t, "bob")

	s := session.New()
	outcome, err := f.auth.Login(f.ctx, s, conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeUnavailable, outcome)
	require.Equal(t, session.StateAnonymous, s.State())
	_, _, ok := s.Identity()
	require.False(t, ok)

	outcome, err = f.auth.Login(f.ctx, s, conn(), admin, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
}

func TestLoginCapacity(t *testing.T) {
	f := newFixture(t, session.Settings{MaxSessions: 1})
	alice := f.identity(t, "alice")
	bob := f.identity(t, "bob")

	first := session.New()
	outcome, err := f.auth.Login(f.ctx, first, conn(), alice, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)

	second := session.New()
	outcome, err = f.auth.Login(f.ctx, second, conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeUnavailable, outcome)

	_, err = f.auth.Logout(f.ctx, first, conn())
	require.NoError(t, err)
	outcome, err = f.auth.Login(f.ctx, second, conn(), bob, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
}

func TestAdminScenarioAtCapacity(t *testing.T) {
	f := newFixture(t, session.Settings{MaxSessions: 1})
	g, err := f.groups.CreateGroup(f.ctx)
	require.NoError(t, err)
	_, err = f.policies.Grant(f.ctx, g.ID, security.PermHasRole, security.TypeRef(security.RoleTypeAdmin), nil, nil)
	require.NoError(t, err)
	alice := f.identity(t, "alice")
	_, err = f.groups.AddMember(f.ctx, alice.ID, g.ID)
	require.NoError(t, err)

	filler := f.identity(t, "filler")
	outcome, err := f.auth.Login(f.ctx, session.New(), conn(), filler, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.True(t, f.registry.AtCapacity())

	s := session.New()
	outcome, err = f.auth.Login(f.ctx, s, conn(), alice, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.True(t, s.View().Roles.Admin)
}

func TestAnonymousLogin(t *testing.T) {
	f := newFixture(t, session.Settings{})

	s := session.New()
	outcome, err := f.auth.AnonymousLogin(f.ctx, s, conn(), "xx")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	v := s.View()
	require.Equal(t, "guest_en", v.Identity.Name)
	require.True(t, v.Roles.GuestOnly)
	require.Equal(t, "en", v.Locale)

	again := session.New()
	outcome, err = f.auth.AnonymousLogin(f.ctx, again, conn(), "xx")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.Equal(t, v.Identity.ID, again.View().Identity.ID)

	de := session.New()
	outcome, err = f.auth.AnonymousLogin(f.ctx, de, conn(), "de")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.Equal(t, "guest_de", de.View().Identity.Name)
	require.Equal(t, "de", de.View().Locale)

	redirect, err := f.auth.Logout(f.ctx, de, conn())
	require.NoError(t, err)
	require.Equal(t, "/", redirect)
}

func TestExternalEntryRejected(t *testing.T) {
	f := newFixture(t, session.Settings{RejectExternalEntry: true})

	outcome, err := f.auth.AnonymousLogin(f.ctx, session.New(), conn(), "en")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeUnavailable, outcome)

	outcome, err = f.auth.InvitationLogin(f.ctx, session.New(), conn(), "whatever")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeUnavailable, outcome)
	require.Zero(t, f.registry.Active())
}

func TestInvitationScenario(t *testing.T) {
	f := newFixture(t, session.Settings{})
	inv, err := f.invitations.Create(f.ctx, "")
	require.NoError(t, err)

	s := session.New()
	outcome, err := f.auth.InvitationLogin(f.ctx, s, conn(), inv.Token)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeDenied, outcome)
	require.Equal(t, session.StateAnonymous, s.State())

	_, err = f.policies.Grant(f.ctx, inv.GroupID, security.PermAccess, security.ResourceRef{TypeName: "course", ID: 42},
		ptr(f.now.Add(-time.Hour)), ptr(f.now.Add(time.Hour)))
	require.NoError(t, err)

	outcome, err = f.auth.InvitationLogin(f.ctx, s, conn(), inv.Token)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)

	identity, roles, ok := s.Identity()
	require.True(t, ok)
	require.True(t, roles.Invitee)
	member, err := f.groups.IsMember(f.ctx, identity.ID, inv.GroupID)
	require.NoError(t, err)
	require.True(t, member)
	require.Equal(t, session.ProviderInvitation, s.View().Client.AuthProvider)
}

func TestCredentialLogin(t *testing.T) {
	f := newFixture(t, session.Settings{})
	f.identity(t, "erin")

	outcome, err := f.auth.CredentialLogin(f.ctx, session.New(), conn(), "erin", "wrong")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeFailed, outcome)

	outcome, err = f.auth.CredentialLogin(f.ctx, session.New(), conn(), "nobody", "pw")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeFailed, outcome)

	s := session.New()
	outcome, err = f.auth.CredentialLogin(f.ctx, s, conn(), "erin", "pw-erin")
	require.NoError(t, err)
	require.Equal(t, security.OutcomeOK, outcome)
	require.Equal(t, "erin", s.View().Identity.Name)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, session.Settings{})
	erin := f.identity(t, "erin")
	s := session.New()
	_, err := f.auth.Login(f.ctx, s, conn(), erin, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.registry.Active())

	c := conn()
	c.invalidated = true
	c.cookies = []*http.Cookie{
		{Name: session.CookieName, Value: "x"},
		{Name: "_shibsession_64656661756c74", Value: "y"},
	}
	redirect, err := f.auth.Logout(f.ctx, s, c)
	require.NoError(t, err)
	require.Equal(t, "/?logout=true", redirect)
	require.Equal(t, []string{"_shibsession_64656661756c74"}, c.expired)
	require.Equal(t, session.StateClosed, s.State())
	require.Zero(t, f.registry.Active())

	_, err = f.auth.Logout(f.ctx, s, c)
	require.NoError(t, err)
	require.Zero(t, f.registry.Active())

	outcome, err := f.auth.Login(f.ctx, s, conn(), erin, session.ProviderLocal)
	require.NoError(t, err)
	require.Equal(t, security.OutcomeFailed, outcome, "closed sessions cannot sign on again")
}
