package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTablePrune(t *testing.T) {
	table := NewTable()
	now := time.Now().UTC()

	active := New()
	active.state = StateSignedOn
	active.client.LastActivity = now

	idle := New()
	idle.state = StateSignedOn
	idle.client.LastActivity = now.Add(-time.Hour)

	closed := New()
	closed.state = StateClosed
	closed.client.LastActivity = now

	for _, s := range []*Session{active, idle, closed} {
		table.Put(s)
	}
	removed := table.Prune(now.Add(-30 * time.Minute))
	require.Len(t, removed, 2)
	require.Equal(t, 1, table.Len())
	got, ok := table.Get(active.ID())
	require.True(t, ok)
	require.Same(t, active, got)
}
