package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"learnhub.dev/internal/audit"
	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
)

// Deps are the collaborators an Authenticator consults.
type Deps struct {
	Registry    *Registry
	Roles       *security.RoleResolver
	Identities  *security.Identities
	Groups      *security.GroupManager
	Invitations *security.Invitations
	Locales     *Locales
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Authenticator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithHostResolver replaces the resolver used for client hostnames. A nil
// resolver disables reverse lookups.
func WithHostResolver(r HostResolver, timeout time.Duration) Option {
	return func(a *Authenticator) {
		a.hosts = r
		if timeout > 0 {
			a.dnsTimeout = timeout
		}
	}
}

// WithSSOCookieMarker sets the substring identifying external single sign-on
// cookies cleared on logout.
func WithSSOCookieMarker(marker string) Option {
	return func(a *Authenticator) {
		a.ssoMarker = strings.TrimSpace(marker)
	}
}

// Authenticator drives sessions through Anonymous, SigningOn, SignedOn and
// Closed. It holds no per-request state and is safe for concurrent use; each
// Session carries its own lock.
type Authenticator struct {
	registry    *Registry
	roles       *security.RoleResolver
	identities  *security.Identities
	groups      *security.GroupManager
	invitations *security.Invitations
	locales     *Locales
	hosts       HostResolver
	dnsTimeout  time.Duration
	ssoMarker   string
	now         func() time.Time
}

func NewAuthenticator(deps Deps, opts ...Option) (*Authenticator, error) {
	if deps.Registry == nil || deps.Roles == nil || deps.Identities == nil || deps.Groups == nil || deps.Invitations == nil {
		return nil, errors.New("authenticator: registry, roles, identities, groups and invitations are required")
	}
	if deps.Locales == nil {
		deps.Locales = NewLocales(nil, "en")
	}
	a := &Authenticator{
		registry:    deps.Registry,
		roles:       deps.Roles,
		identities:  deps.Identities,
		groups:      deps.Groups,
		invitations: deps.Invitations,
		locales:     deps.Locales,
		hosts:       net.DefaultResolver,
		dnsTimeout:  DefaultDNSTimeout,
		ssoMarker:   "_shibsession_",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Registry exposes the registry the authenticator gates on.
func (a *Authenticator) Registry() *Registry { return a.registry }

// Login signs identity on to s. Business failures come back as outcomes; the
// error is set only when a store call failed, in which case the outcome is
// Failed and the session is left cleared.
func (a *Authenticator) Login(ctx context.Context, s *Session, conn Conn, identity *security.Identity, provider string) (security.Outcome, error) {
	outcome, err := a.login(ctx, s, conn, identity, provider)
	obs.ObserveLogin(provider, outcome.String())
	return outcome, err
}

func (a *Authenticator) login(ctx context.Context, s *Session, conn Conn, identity *security.Identity, provider string) (security.Outcome, error) {
	if s == nil || identity == nil {
		return security.OutcomeFailed, nil
	}
	if !identity.Status.CanLogin() {
		_ = audit.LogEvent(ctx, "session.login.denied", map[string]any{
			"identity_id": identity.ID,
			"name":        identity.Name,
			"status":      int(identity.Status),
			"provider":    provider,
		})
		return security.OutcomeDenied, nil
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return security.OutcomeFailed, nil
	}
	if s.clearLocked() {
		a.registry.dec()
	}
	s.state = StateSigningOn
	bound := *identity
	// attempt marks this login; a later login on the same session rebinds
	// s.identity and thereby invalidates it.
	attempt := &bound
	s.identity = attempt
	s.mu.Unlock()

	now := a.now()
	roles, err := a.roles.RolesFor(ctx, identity.ID, now)
	if err != nil {
		a.abort(s, attempt)
		return security.OutcomeFailed, fmt.Errorf("resolve roles: %w", err)
	}

	if !roles.Admin && !a.registry.Admits() {
		a.abort(s, attempt)
		_ = audit.LogEvent(ctx, "session.login.unavailable", map[string]any{
			"identity_id":   identity.ID,
			"login_blocked": a.registry.LoginBlocked(),
			"active":        a.registry.Active(),
			"max_sessions":  a.registry.MaxSessions(),
		})
		return security.OutcomeUnavailable, nil
	}

	locale := a.locales.Resolve(identity.Language)
	client := ClientInfo{AuthProvider: provider, LastActivity: now.UTC()}
	if conn != nil {
		client.RemoteAddr = conn.RemoteAddr()
		client.Hostname = hostnameFor(ctx, a.hosts, client.RemoteAddr, a.dnsTimeout)
		client.UserAgent = conn.UserAgent()
		client.Secure = conn.Secure()
	}

	s.mu.Lock()
	if s.state != StateSigningOn || s.identity != attempt {
		// Logged out, or superseded by another login, while roles were being resolved.
		s.mu.Unlock()
		return security.OutcomeFailed, nil
	}
	s.roles = roles
	s.locale = locale
	s.client = client
	s.state = StateSignedOn
	s.counted = true
	s.mu.Unlock()
	a.registry.inc()

	if err := a.identities.TouchLastLogin(ctx, identity.ID, now); err != nil {
		obs.Logger().Warn().Err(err).Str("identity_id", identity.ID).Msg("update last login failed")
	}
	obs.Logger().Info().
		Str("session_id", s.ID()).
		Str("identity_id", identity.ID).
		Str("provider", provider).
		Str("remote_addr", client.RemoteAddr).
		Bool("admin", roles.Admin).
		Msg("session signed on")
	return security.OutcomeOK, nil
}

// abort returns a session stuck in SigningOn to Anonymous unless another
// login has taken it over since attempt was bound.
func (a *Authenticator) abort(s *Session, attempt *security.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSigningOn || s.identity != attempt {
		return
	}
	if s.clearLocked() {
		a.registry.dec()
	}
	s.state = StateAnonymous
}

// AnonymousLogin signs s on as the guest identity for requestedLocale, or for
// the default locale when requestedLocale is unsupported. The guest identity
// and its guest group membership are created on first use.
func (a *Authenticator) AnonymousLogin(ctx context.Context, s *Session, conn Conn, requestedLocale string) (security.Outcome, error) {
	if a.registry.RejectExternalEntry() {
		obs.ObserveLogin(ProviderGuest, security.OutcomeUnavailable.String())
		return security.OutcomeUnavailable, nil
	}
	locale := a.locales.Exact(requestedLocale)
	guest, created, err := a.identities.Ensure(ctx, security.NewIdentity{
		Name:     GuestName(locale),
		Language: locale,
		Status:   security.StatusPermanent,
	})
	if err != nil {
		obs.ObserveLogin(ProviderGuest, security.OutcomeFailed.String())
		return security.OutcomeFailed, fmt.Errorf("provision guest: %w", err)
	}
	if created {
		obs.Logger().Info().Str("identity_id", guest.ID).Str("locale", locale).Msg("guest identity created")
	}
	anonymous, err := a.groups.NamedGroup(ctx, security.GroupAnonymous)
	if err != nil {
		obs.ObserveLogin(ProviderGuest, security.OutcomeFailed.String())
		return security.OutcomeFailed, fmt.Errorf("resolve guest group: %w", err)
	}
	if _, err := a.groups.AddMember(ctx, guest.ID, anonymous.ID); err != nil {
		obs.ObserveLogin(ProviderGuest, security.OutcomeFailed.String())
		return security.OutcomeFailed, err
	}
	return a.Login(ctx, s, conn, guest, ProviderGuest)
}

// GuestName is the login name of the guest identity for a locale.
func GuestName(locale string) string {
	return "guest_" + locale
}

// InvitationLogin signs s on through an invitation token.
func (a *Authenticator) InvitationLogin(ctx context.Context, s *Session, conn Conn, token string) (security.Outcome, error) {
	if a.registry.RejectExternalEntry() {
		obs.ObserveLogin(ProviderInvitation, security.OutcomeUnavailable.String())
		return security.OutcomeUnavailable, nil
	}
	outcome, err := a.invitations.Consume(ctx, token, a.now(), func(ctx context.Context, identity *security.Identity) (security.Outcome, error) {
		return a.login(ctx, s, conn, identity, ProviderInvitation)
	})
	obs.ObserveLogin(ProviderInvitation, outcome.String())
	return outcome, err
}

// CredentialLogin checks a name and password against the stored bcrypt hash.
// Unknown names and wrong passwords are both Failed.
func (a *Authenticator) CredentialLogin(ctx context.Context, s *Session, conn Conn, name, password string) (security.Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		obs.ObserveLogin(ProviderLocal, security.OutcomeFailed.String())
		return security.OutcomeFailed, nil
	}
	identity, err := a.identities.FindByName(ctx, name)
	if errors.Is(err, security.ErrNotFound) {
		obs.ObserveLogin(ProviderLocal, security.OutcomeFailed.String())
		return security.OutcomeFailed, nil
	}
	if err != nil {
		obs.ObserveLogin(ProviderLocal, security.OutcomeFailed.String())
		return security.OutcomeFailed, err
	}
	if err := security.VerifyPassword(identity.PasswordHash, password); err != nil {
		obs.ObserveLogin(ProviderLocal, security.OutcomeFailed.String())
		return security.OutcomeFailed, nil
	}
	return a.Login(ctx, s, conn, identity, ProviderLocal)
}

// Logout closes s and returns where the client should be sent next. Guests get
// no logged-out marker.
func (a *Authenticator) Logout(ctx context.Context, s *Session, conn Conn) (string, error) {
	if conn != nil {
		if err := conn.Invalidate(); err != nil && !errors.Is(err, ErrConnInvalidated) {
			return "", fmt.Errorf("invalidate connection: %w", err)
		}
		if a.ssoMarker != "" {
			for _, c := range conn.Cookies() {
				if strings.Contains(c.Name, a.ssoMarker) {
					conn.ExpireCookie(c.Name)
				}
			}
		}
	}
	if s == nil {
		return "/", nil
	}

	s.mu.Lock()
	guest := s.client.AuthProvider == ProviderGuest || s.roles.GuestOnly
	var identityID string
	if s.identity != nil {
		identityID = s.identity.ID
	}
	wasSignedOn := s.state == StateSignedOn
	if s.clearLocked() {
		a.registry.dec()
	}
	s.state = StateClosed
	s.mu.Unlock()

	if wasSignedOn {
		_ = audit.LogEvent(ctx, "session.logout", map[string]any{
			"session_id":  s.ID(),
			"identity_id": identityID,
			"guest":       guest,
		})
	}
	if guest || !wasSignedOn {
		return "/", nil
	}
	return "/?logout=true", nil
}
