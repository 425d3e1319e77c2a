package security_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/security"
)

func TestIdentityNameUniqueAmongLive(t *testing.T) {
	f := newFixture(t)
	alice := f.identity(t, "alice")

	_, err := f.identities.Create(f.ctx, security.NewIdentity{Name: "alice"})
	require.ErrorIs(t, err, security.ErrConflict)

	require.NoError(t, f.identities.Delete(f.ctx, alice.ID))
	require.NoError(t, f.identities.Delete(f.ctx, alice.ID))

	again, err := f.identities.Create(f.ctx, security.NewIdentity{Name: "alice"})
	require.NoError(t, err)
	require.NotEqual(t, alice.ID, again.ID)

	found, err := f.identities.FindByName(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, again.ID, found.ID)
}

func TestIdentityEnsure(t *testing.T) {
	f := newFixture(t)
	first, created, err := f.identities.Ensure(f.ctx, security.NewIdentity{Name: "guest_en", Language: "en"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.identities.Ensure(f.ctx, security.NewIdentity{Name: "guest_en", Language: "en"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

func TestIdentityPassword(t *testing.T) {
	f := newFixture(t)
	id, err := f.identities.Create(f.ctx, security.NewIdentity{Name: "pat", Password: "correct horse"})
	require.NoError(t, err)
	require.NotEmpty(t, id.PasswordHash)
	require.NoError(t, security.VerifyPassword(id.PasswordHash, "correct horse"))
	require.Error(t, security.VerifyPassword(id.PasswordHash, "wrong"))
}

func TestIdentityStatus(t *testing.T) {
	require.True(t, security.StatusActive.CanLogin())
	require.True(t, security.StatusPending.CanLogin())
	require.False(t, security.StatusLoginDenied.CanLogin())
	require.False(t, security.StatusDeleted.CanLogin())
	require.True(t, security.StatusDeleted.Deleted())
	require.False(t, security.StatusLoginDenied.Deleted())
}
