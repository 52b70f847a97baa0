package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
)

// openTestDB подключается к MySQL из TEST_MYSQL_DSN, иначе тест пропускается
func openTestDB(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN is not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, NewMigrator(db, zap.NewNop()).Run(ctx))
	for _, table := range []string{"comments", "media", "posts", "sessions", "auth_codes", "users", "site_settings"} {
		if table == "media" {
			_, err = db.ExecContext(ctx, "UPDATE posts SET cover_image_id = NULL")
			require.NoError(t, err)
		}
		_, err = db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	return NewRepository(db)
}

func TestMySQLUsersAndSessions(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	u := &models.User{TelegramID: 42, DisplayName: "Якоб", AccessLevel: models.AccessRegistered, IsActive: true}
	require.NoError(t, repo.CreateUser(ctx, u))

	got, err := repo.GetUserByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Якоб", got.DisplayName)

	_, err = repo.GetUserByTelegramID(ctx, 43)
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC()
	code := &models.AuthCode{Code: "ABCD2345", TelegramID: 42, ExpiresAt: now.Add(5 * time.Minute)}
	require.NoError(t, repo.CreateAuthCode(ctx, code))

	found, err := repo.FindAuthCode(ctx, "ABCD2345", 0, now)
	require.NoError(t, err)
	assert.Equal(t, code.ID, found.ID)
	require.NoError(t, repo.MarkAuthCodeUsed(ctx, code.ID))
	assert.ErrorIs(t, repo.MarkAuthCodeUsed(ctx, code.ID), ErrNotFound)

	sess := &models.Session{UserID: u.ID, TokenHash: "h", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.CreateSession(ctx, sess))
	_, err = repo.GetSessionByHash(ctx, "h", now)
	require.NoError(t, err)
	_, err = repo.GetSessionByHash(ctx, "h", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.PurgeExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMySQLPosts(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	published := time.Now().UTC().Add(-time.Hour)
	p := &models.Post{
		AuthorID:    uuid.NullUUID{},
		Title:       "Первый пост",
		Slug:        "pervyi-post",
		ContentMD:   "привет мир",
		ContentHTML: "<p>привет мир</p>",
		Visibility:  models.VisibilityPublic,
		Status:      models.StatusPublished,
		PublishedAt: &published,
	}
	require.NoError(t, repo.CreatePost(ctx, p))

	dup := *p
	dup.ID = uuid.Nil
	assert.ErrorIs(t, repo.CreatePost(ctx, &dup), ErrDuplicate)

	exists, err := repo.SlugExists(ctx, "pervyi-post")
	require.NoError(t, err)
	assert.True(t, exists)

	posts, total, err := repo.ListPosts(ctx, models.PostFilter{
		Visibilities: []models.PostVisibility{models.VisibilityPublic},
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, posts, 1)
	assert.Equal(t, p.ID, posts[0].ID)
	require.NotNil(t, posts[0].PublishedAt)

	require.NoError(t, repo.IncrementViewCount(ctx, p.ID))
	got, err := repo.GetPostBySlug(ctx, "pervyi-post")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewCount)

	require.NoError(t, repo.DeletePost(ctx, p.ID))
	assert.ErrorIs(t, repo.DeletePost(ctx, p.ID), ErrNotFound)
}

func TestMySQLSettings(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	_, err := repo.GetSetting(ctx, "hero_title")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SetSetting(ctx, "hero_title", "один"))
	require.NoError(t, repo.SetSetting(ctx, "hero_title", "два"))
	v, err := repo.GetSetting(ctx, "hero_title")
	require.NoError(t, err)
	assert.Equal(t, "два", v)
}
