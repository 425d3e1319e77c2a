package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/config"
	"learnhub.dev/internal/security"
)

func TestOpenInMemoryProvisionsAdmin(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{AdminName: "root", AdminPassword: "change-me"}

	svc, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close()
	require.Nil(t, svc.PG)
	require.NoError(t, svc.Ping(ctx))

	root, err := svc.Identities.FindByName(ctx, "root")
	require.NoError(t, err)
	require.NoError(t, security.VerifyPassword(root.PasswordHash, "change-me"))

	roles, err := svc.Roles.RolesFor(ctx, root.ID, root.CreatedAt)
	require.NoError(t, err)
	require.True(t, roles.Admin)

	require.NoError(t, svc.ensureAdmin(ctx, "root", "other"))
	again, err := svc.Identities.FindByName(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, root.ID, again.ID)
	require.NoError(t, security.VerifyPassword(again.PasswordHash, "change-me"))
}
