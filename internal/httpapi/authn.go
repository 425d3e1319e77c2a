package httpapi

import (
	"context"
	"net/http"
	"time"

	"learnhub.dev/internal/security"
	"learnhub.dev/internal/session"
)

const authChallenge = `Cookie realm="learnhub", cookie-name="` + session.CookieName + `"`

type sessionContextKey struct{}

// withSession resolves the session cookie. A signed-on session puts its
// identity and roles into the request context; requests without a valid
// cookie pass through anonymously.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.sessionFromRequest(r)
		if s == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
		if identity, roles, ok := s.Identity(); ok {
			s.Touch(a.now())
			ctx = security.ContextWithIdentity(ctx, identity, roles)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) sessionFromRequest(r *http.Request) *session.Session {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil
	}
	id, err := a.deps.Signer.Verify(c.Value)
	if err != nil {
		return nil
	}
	s, ok := a.deps.Sessions.Get(id)
	if !ok {
		return nil
	}
	return s
}

func sessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

// requireRole answers 401 without a signed-on identity and 403 when none of
// the accepted roles is held. Admins pass every check.
func requireRole(w http.ResponseWriter, r *http.Request, accept func(security.Roles) bool) (*security.Identity, bool) {
	identity, ok := security.IdentityFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", authChallenge)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	roles, _ := security.RolesFromContext(r.Context())
	if roles.Admin || (accept != nil && accept(roles)) {
		return identity, true
	}
	w.Header().Set("WWW-Authenticate", authChallenge)
	writeError(w, r, http.StatusForbidden, "insufficient role")
	return nil, false
}

func adminOnly(security.Roles) bool { return false }

func groupManager(r security.Roles) bool { return r.GroupManager }

func userManager(r security.Roles) bool { return r.UserManager }

// setSessionCookie issues a signed cookie naming s.
func (a *API) setSessionCookie(w http.ResponseWriter, conn *httpConn, s *session.Session) error {
	token, expires, err := a.deps.Signer.Sign(s.ID())
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   conn.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
