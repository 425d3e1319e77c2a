package session

import (
	"sync"
	"time"
)

// Table maps session ids to live sessions within this process.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

func (t *Table) Put(s *Session) {
	t.mu.Lock()
	t.sessions[s.ID()] = s
	t.mu.Unlock()
}

func (t *Table) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

func (t *Table) Remove(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Prune drops closed sessions and sessions idle since before cutoff. It
// returns the sessions removed so the caller can log them off.
func (t *Table) Prune(cutoff time.Time) []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []*Session
	for id, s := range t.sessions {
		v := s.View()
		idle := v.Client.LastActivity.Before(cutoff)
		if v.State == StateClosed.String() || (v.State != StateSigningOn.String() && idle) {
			removed = append(removed, s)
			delete(t.sessions, id)
		}
	}
	return removed
}
