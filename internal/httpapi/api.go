package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
	"learnhub.dev/internal/session"
)

const maxBodyBytes = 1 << 20

// ReadyProbe is a simple readiness check such as a database ping.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Deps wires the security core into the HTTP layer.
type Deps struct {
	Auth        *session.Authenticator
	Sessions    *session.Table
	Signer      *session.TokenSigner
	Groups      *security.GroupManager
	Policies    *security.PolicyEngine
	Identities  *security.Identities
	Invitations *security.Invitations

	// Ready may be nil when there is nothing external to check.
	Ready   ReadyProbe
	Version string

	InvitationMaxAge time.Duration
	LoginRate        float64
	LoginBurst       int
	Now              func() time.Time
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
	now  func() time.Time
}

func New(deps Deps) (*API, error) {
	if deps.Auth == nil || deps.Sessions == nil || deps.Signer == nil {
		return nil, errors.New("httpapi: authenticator, session table and signer are required")
	}
	if deps.Groups == nil || deps.Policies == nil || deps.Identities == nil || deps.Invitations == nil {
		return nil, errors.New("httpapi: security services are required")
	}
	if deps.InvitationMaxAge <= 0 {
		deps.InvitationMaxAge = security.DefaultInvitationMaxAge
	}
	if deps.LoginRate <= 0 {
		deps.LoginRate = 5
	}
	if deps.LoginBurst <= 0 {
		deps.LoginBurst = 10
	}
	a := &API{mux: http.NewServeMux(), deps: deps, now: deps.Now}
	if a.now == nil {
		a.now = time.Now
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	// health/ready/metrics
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	login := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.deps.LoginBurst, a.deps.LoginRate)
	}
	a.mux.Handle("POST /v1/session/login", login(a.handleCredentialLogin))
	a.mux.Handle("POST /v1/session/guest", login(a.handleGuestLogin))
	a.mux.Handle("POST /v1/session/invitation", login(a.handleInvitationLogin))
	a.mux.HandleFunc("POST /v1/session/logout", a.handleLogout)
	a.mux.HandleFunc("GET /v1/session", a.handleCurrentSession)

	a.mux.HandleFunc("POST /v1/identities", a.handleCreateIdentity)
	a.mux.HandleFunc("PUT /v1/identities/{id}/status", a.handleSetIdentityStatus)
	a.mux.HandleFunc("GET /v1/identities/{id}/groups", a.handleIdentityGroups)
	a.mux.HandleFunc("POST /v1/groups", a.handleCreateGroup)
	a.mux.HandleFunc("DELETE /v1/groups/{id}", a.handleDeleteGroup)
	a.mux.HandleFunc("POST /v1/groups/{id}/members/{identity}", a.handleAddMember)
	a.mux.HandleFunc("DELETE /v1/groups/{id}/members/{identity}", a.handleRemoveMember)
	a.mux.HandleFunc("GET /v1/groups/{id}/policies", a.handleGroupPolicies)
	a.mux.HandleFunc("POST /v1/policies", a.handleGrant)
	a.mux.HandleFunc("DELETE /v1/policies", a.handleRevoke)
	a.mux.HandleFunc("GET /v1/permitted", a.handlePermitted)
	a.mux.HandleFunc("POST /v1/invitations", a.handleCreateInvitation)
	a.mux.HandleFunc("GET /v1/admin/registry", a.handleGetRegistry)
	a.mux.HandleFunc("PUT /v1/admin/registry", a.handlePutRegistry)
	a.mux.HandleFunc("POST /v1/admin/sweep", a.handleSweep)
}

// Handler returns the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "learnhub-api",
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ready != nil {
		if err := a.deps.Ready.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": a.deps.Auth.Registry().Active(),
	})
}
