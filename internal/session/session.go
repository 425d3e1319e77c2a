package session

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"learnhub.dev/internal/security"
)

// State is the lifecycle position of a session.
type State int

const (
	StateAnonymous State = iota
	StateSigningOn
	StateSignedOn
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateSigningOn:
		return "signing_on"
	case StateSignedOn:
		return "signed_on"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Auth providers recorded on the session.
const (
	ProviderLocal      = "local"
	ProviderGuest      = "guest"
	ProviderInvitation = "invitation"
)

// ClientInfo describes the connection a session was signed on from.
type ClientInfo struct {
	RemoteAddr   string    `json:"remote_addr"`
	Hostname     string    `json:"hostname"`
	UserAgent    string    `json:"user_agent"`
	Secure       bool      `json:"secure"`
	AuthProvider string    `json:"auth_provider"`
	LastActivity time.Time `json:"last_activity"`
}

// ErrConnInvalidated is returned by Conn.Invalidate when the connection state
// was already torn down. Logout treats it as success.
var ErrConnInvalidated = errors.New("session: connection already invalidated")

// Conn is what the authenticator reads from and does to the transport.
type Conn interface {
	RemoteAddr() string
	UserAgent() string
	Secure() bool
	Cookies() []*http.Cookie
	ExpireCookie(name string)
	Invalidate() error
}

// Session is the per-connection authentication state. All fields are guarded
// by mu; callers read it through View.
type Session struct {
	mu       sync.Mutex
	id       string
	state    State
	identity *security.Identity
	roles    security.Roles
	locale   string
	client   ClientInfo
	counted  bool
}

// New returns an anonymous session with a fresh id.
func New() *Session {
	return &Session{id: uuid.NewString(), state: StateAnonymous}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View is an immutable copy of a session.
type View struct {
	ID       string             `json:"id"`
	State    string             `json:"state"`
	Identity *security.Identity `json:"identity,omitempty"`
	Roles    security.Roles     `json:"roles"`
	Locale   string             `json:"locale,omitempty"`
	Client   ClientInfo         `json:"client"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{ID: s.id, State: s.state.String(), Roles: s.roles, Locale: s.locale, Client: s.client}
	if s.identity != nil {
		identity := *s.identity
		v.Identity = &identity
	}
	return v
}

// Identity returns the signed-on identity and its roles.
func (s *Session) Identity() (*security.Identity, security.Roles, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSignedOn || s.identity == nil {
		return nil, security.Roles{}, false
	}
	identity := *s.identity
	return &identity, s.roles, true
}

// Touch records activity on a signed-on session.
func (s *Session) Touch(at time.Time) {
	s.mu.Lock()
	if s.state == StateSignedOn {
		s.client.LastActivity = at.UTC()
	}
	s.mu.Unlock()
}

// clearLocked drops everything bound to the session. It reports whether the
// session was counted in the registry.
func (s *Session) clearLocked() bool {
	counted := s.counted
	s.identity = nil
	s.roles = security.Roles{}
	s.locale = ""
	s.client = ClientInfo{}
	s.counted = false
	return counted
}
