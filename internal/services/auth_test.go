package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/database/memdb"
	"jakob-blog/internal/models"
)

func newAuthService(t *testing.T) (*AuthService, *memdb.Store) {
	store := memdb.New()
	return NewAuthService(store, store, testConfig(t), nopLogger()), store
}

func TestGenerateAuthCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateAuthCode()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("a"), HashToken("a"))
	assert.NotEqual(t, HashToken("a"), HashToken("b"))
	assert.Len(t, HashToken("a"), 64)
}

func TestVerifyAuthCodeSingleUse(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	code, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)

	user, err := svc.VerifyAuthCode(ctx, 42, "  "+strings.ToLower(code.Code)+"\n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.TelegramID)
	assert.Equal(t, "User_42", user.DisplayName)
	assert.NotNil(t, user.LastLogin)

	_, err = svc.VerifyAuthCode(ctx, 42, code.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyAuthCodeWrongUser(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	code, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)

	_, err = svc.VerifyAuthCode(ctx, 43, code.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.VerifyAuthCode(ctx, 0, code.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestNewCodeInvalidatesPrevious(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	first, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)
	second, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)

	_, err = svc.VerifyCodeOnly(ctx, first.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	user, err := svc.VerifyCodeOnly(ctx, second.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.TelegramID)
}

func TestExpiredCode(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	code, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
	_, err = svc.VerifyCodeOnly(ctx, code.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestMalformedCode(t *testing.T) {
	svc, _ := newAuthService(t)
	for _, code := range []string{"", "ABC", "ABCDEFGHJ"} {
		_, err := svc.VerifyCodeOnly(context.Background(), code)
		assert.ErrorIs(t, err, ErrInvalidCode, code)
	}
}

func TestInactiveUserCannotLogin(t *testing.T) {
	svc, store := newAuthService(t)
	ctx := context.Background()

	user, _, err := svc.EnsureUser(ctx, 42, "jakob", "Jakob")
	require.NoError(t, err)
	user.IsActive = false
	require.NoError(t, store.UpdateUser(ctx, user))

	code, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)
	_, err = svc.VerifyCodeOnly(ctx, code.Code)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestEnsureUser(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, created, err := svc.EnsureUser(ctx, 1000, "boss", "Босс")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, user.IsAdmin)
	assert.Equal(t, "Босс", user.DisplayName)

	again, created, err := svc.EnsureUser(ctx, 1000, "newboss", "Другое имя")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "newboss", again.Username)
	assert.Equal(t, "Босс", again.DisplayName)
}

func TestSessions(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, _, err := svc.EnsureUser(ctx, 42, "", "")
	require.NoError(t, err)

	token, err := svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	got, err := svc.UserBySessionToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, svc.InvalidateSession(ctx, token))
	require.NoError(t, svc.InvalidateSession(ctx, token))

	_, err = svc.UserBySessionToken(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UserBySessionToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpired(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.CreateAuthCode(ctx, 42)
	require.NoError(t, err)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	n, err = svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIsAdmin(t *testing.T) {
	svc, store := newAuthService(t)
	ctx := context.Background()

	assert.True(t, svc.IsAdmin(ctx, 1000))
	assert.False(t, svc.IsAdmin(ctx, 7))

	addUser(t, store, 7, models.AccessRegistered, true)
	assert.True(t, svc.IsAdmin(ctx, 7))
}
