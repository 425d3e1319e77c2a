package session

import (
	"sync/atomic"

	"learnhub.dev/internal/obs"
)

// Settings are the operator-controlled registry flags.
type Settings struct {
	LoginBlocked        bool `json:"login_blocked"`
	MaxSessions         int  `json:"max_sessions"`
	RejectExternalEntry bool `json:"reject_external_entry"`
}

// Registry holds process-wide login flags and the active session count. It is
// built once at startup and handed to every Authenticator. The login gate it
// backs is best effort: a login racing a flag change may land on either side.
type Registry struct {
	loginBlocked   atomic.Bool
	maxSessions    atomic.Int64
	rejectExternal atomic.Bool
	active         atomic.Int64
}

func NewRegistry(s Settings) *Registry {
	r := &Registry{}
	r.Apply(s)
	return r
}

// Apply replaces all flags at once.
func (r *Registry) Apply(s Settings) {
	r.loginBlocked.Store(s.LoginBlocked)
	if s.MaxSessions < 0 {
		s.MaxSessions = 0
	}
	r.maxSessions.Store(int64(s.MaxSessions))
	r.rejectExternal.Store(s.RejectExternalEntry)
}

func (r *Registry) Settings() Settings {
	return Settings{
		LoginBlocked:        r.loginBlocked.Load(),
		MaxSessions:         int(r.maxSessions.Load()),
		RejectExternalEntry: r.rejectExternal.Load(),
	}
}

func (r *Registry) LoginBlocked() bool        { return r.loginBlocked.Load() }
func (r *Registry) SetLoginBlocked(on bool)   { r.loginBlocked.Store(on) }
func (r *Registry) RejectExternalEntry() bool { return r.rejectExternal.Load() }
func (r *Registry) MaxSessions() int          { return int(r.maxSessions.Load()) }

// SetMaxSessions caps concurrent sessions. 0 means unlimited.
func (r *Registry) SetMaxSessions(n int) {
	if n < 0 {
		n = 0
	}
	r.maxSessions.Store(int64(n))
}

// Active returns the number of signed-on sessions.
func (r *Registry) Active() int64 { return r.active.Load() }

// AtCapacity reports whether a session cap is set and reached.
func (r *Registry) AtCapacity() bool {
	max := r.maxSessions.Load()
	return max > 0 && r.active.Load() >= max
}

// Admits reports whether a non-admin login may proceed right now.
func (r *Registry) Admits() bool {
	return !r.LoginBlocked() && !r.AtCapacity()
}

func (r *Registry) inc() {
	obs.SetActiveSessions(r.active.Add(1))
}

func (r *Registry) dec() {
	for {
		cur := r.active.Load()
		if cur <= 0 {
			return
		}
		if r.active.CompareAndSwap(cur, cur-1) {
			obs.SetActiveSessions(cur - 1)
			return
		}
	}
}
