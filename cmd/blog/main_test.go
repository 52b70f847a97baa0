package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jakob-blog/internal/database/memdb"
	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "bot", "migrate", "make-admin", "set-webhook"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("polling"))
}

func TestMakeAdminRejectsBadID(t *testing.T) {
	for _, arg := range []string{"abc", "0", "-5"} {
		err := runMakeAdmin(context.Background(), &bytes.Buffer{}, arg)
		assert.ErrorContains(t, err, "invalid telegram id", arg)
	}

	root := newRootCmd()
	root.SetArgs([]string{"make-admin"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestGrantAdmin(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	users := services.NewUserService(store, zap.NewNop())

	err := grantAdmin(ctx, &bytes.Buffer{}, users, 77)
	assert.ErrorContains(t, err, "must send /start")

	require.NoError(t, store.CreateUser(ctx, &models.User{
		TelegramID:  77,
		DisplayName: "Якоб",
		AccessLevel: models.AccessRegistered,
		IsActive:    true,
	}))
	var out bytes.Buffer
	require.NoError(t, grantAdmin(ctx, &out, users, 77))
	assert.Equal(t, "Якоб (77) is now an admin\n", out.String())

	u, err := store.GetUserByTelegramID(ctx, 77)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}
