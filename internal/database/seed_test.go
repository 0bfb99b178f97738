package database

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/utils"
)

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	cfg := &config.Config{AdminEmail: "boss@example.org", AdminPassword: "secret1"}

	require.NoError(t, SeedAdmin(ctx, mem, cfg))
	require.NoError(t, SeedAdmin(ctx, mem, cfg))

	invited, err := mem.InviteExists(ctx, "boss@example.org")
	require.NoError(t, err)
	assert.True(t, invited)

	op, err := mem.FindOperatorByEmail(ctx, "boss@example.org")
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword(op.Password, "secret1"))

	invites, err := mem.ListInvites(ctx)
	require.NoError(t, err)
	assert.Len(t, invites, 1)
}

func TestSeedAdmin_SkipsWithoutCredentials(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, SeedAdmin(ctx, mem, &config.Config{AdminEmail: "boss@example.org"}))
	invites, err := mem.ListInvites(ctx)
	require.NoError(t, err)
	assert.Empty(t, invites)
}

func TestSeedAdmin_SkipsOverlongPassword(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	cfg := &config.Config{AdminEmail: "boss@example.org", AdminPassword: strings.Repeat("x", 80)}

	require.NoError(t, SeedAdmin(ctx, mem, cfg))
	_, err := mem.FindOperatorByEmail(ctx, "boss@example.org")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
