package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocales(t *testing.T) {
	l := NewLocales([]string{"de", "fr", "de", "not a tag!"}, "en")
	require.Equal(t, []string{"en", "de", "fr"}, l.Supported())
	require.Equal(t, "en", l.Default())

	require.Equal(t, "de", l.Exact("DE"))
	require.Equal(t, "en", l.Exact("it"))
	require.Equal(t, "en", l.Exact(""))

	require.Equal(t, "fr", l.Resolve("fr_CA"))
	require.Equal(t, "en", l.Resolve(""))
	require.Equal(t, "en", l.Resolve("???"))
}
