package httpapi

import (
	"context"
	"net/http"

	"learnhub.dev/internal/audit"
	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
	"learnhub.dev/internal/session"
)

type credentialLoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type guestLoginRequest struct {
	Locale string `json:"locale"`
}

type invitationLoginRequest struct {
	Token string `json:"token"`
}

type loginResponse struct {
	Outcome string        `json:"outcome"`
	Code    int           `json:"code"`
	Session *session.View `json:"session,omitempty"`
}

type loginFunc func(ctx context.Context, s *session.Session, conn session.Conn) (security.Outcome, error)

// runLogin always signs on to a fresh session so a session id known before
// login never carries the result. A session the request arrived with is
// logged off first, the same way a login clears the session it runs on.
func (a *API) runLogin(w http.ResponseWriter, r *http.Request, fn loginFunc) {
	if prior, ok := sessionFromContext(r.Context()); ok {
		a.deps.Sessions.Remove(prior.ID())
		if _, err := a.deps.Auth.Logout(r.Context(), prior, nil); err != nil {
			obs.Logger().Warn().Err(err).Str("session_id", prior.ID()).Msg("close replaced session failed")
		}
	}
	s := session.New()
	conn := &httpConn{w: w, r: r, table: a.deps.Sessions, sessionID: s.ID()}

	outcome, err := fn(r.Context(), s, conn)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	resp := loginResponse{Outcome: outcome.String(), Code: int(outcome)}
	if outcome == security.OutcomeOK {
		a.deps.Sessions.Put(s)
		if err := a.setSessionCookie(w, conn, s); err != nil {
			handleSecurityError(w, r, err)
			return
		}
		v := s.View()
		resp.Session = &v
	}
	writeJSON(w, outcomeStatus(outcome), resp)
}

func (a *API) handleCredentialLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.runLogin(w, r, func(ctx context.Context, s *session.Session, conn session.Conn) (security.Outcome, error) {
		return a.deps.Auth.CredentialLogin(ctx, s, conn, req.Name, req.Password)
	})
}

func (a *API) handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	var req guestLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.runLogin(w, r, func(ctx context.Context, s *session.Session, conn session.Conn) (security.Outcome, error) {
		return a.deps.Auth.AnonymousLogin(ctx, s, conn, req.Locale)
	})
}

func (a *API) handleInvitationLogin(w http.ResponseWriter, r *http.Request) {
	var req invitationLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.runLogin(w, r, func(ctx context.Context, s *session.Session, conn session.Conn) (security.Outcome, error) {
		return a.deps.Auth.InvitationLogin(ctx, s, conn, req.Token)
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFromContext(r.Context())
	conn := &httpConn{w: w, r: r, table: a.deps.Sessions}
	if s != nil {
		conn.sessionID = s.ID()
	}
	redirect, err := a.deps.Auth.Logout(r.Context(), s, conn)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect": redirect})
}

func (a *API) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "no session")
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (a *API) auditAdmin(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}
