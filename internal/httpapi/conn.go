package httpapi

import (
	"net/http"
	"strings"
	"time"

	"learnhub.dev/internal/session"
)

// httpConn exposes one request/response pair to the authenticator.
type httpConn struct {
	w         http.ResponseWriter
	r         *http.Request
	table     *session.Table
	sessionID string
}

var _ session.Conn = (*httpConn)(nil)

func (c *httpConn) RemoteAddr() string      { return c.r.RemoteAddr }
func (c *httpConn) UserAgent() string       { return c.r.UserAgent() }
func (c *httpConn) Cookies() []*http.Cookie { return c.r.Cookies() }

func (c *httpConn) Secure() bool {
	return c.r.TLS != nil || strings.EqualFold(c.r.Header.Get("X-Forwarded-Proto"), "https")
}

func (c *httpConn) ExpireCookie(name string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure(),
	})
}

// Invalidate drops the session from the table and clears its cookie.
func (c *httpConn) Invalidate() error {
	if c.sessionID == "" {
		return session.ErrConnInvalidated
	}
	if _, ok := c.table.Get(c.sessionID); !ok {
		return session.ErrConnInvalidated
	}
	c.table.Remove(c.sessionID)
	c.ExpireCookie(session.CookieName)
	return nil
}
