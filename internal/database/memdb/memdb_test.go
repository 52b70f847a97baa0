package memdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/database"
	"jakob-blog/internal/models"
)

func TestPostsOrderAndFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) *time.Time {
		v := base.Add(time.Duration(h) * time.Hour)
		return &v
	}

	old := &models.Post{Slug: "old", Status: models.StatusPublished, Visibility: models.VisibilityPublic, PublishedAt: at(1)}
	fresh := &models.Post{Slug: "fresh", Status: models.StatusPublished, Visibility: models.VisibilityPublic, PublishedAt: at(5)}
	pinned := &models.Post{Slug: "pinned", Status: models.StatusPublished, Visibility: models.VisibilityPublic, PublishedAt: at(0), IsPinned: true, PinnedAt: at(6)}
	premium := &models.Post{Slug: "premium", Status: models.StatusPublished, Visibility: models.VisibilityPremium2, PublishedAt: at(7)}
	draft := &models.Post{Slug: "draft", Status: models.StatusDraft, Visibility: models.VisibilityPublic}
	for _, p := range []*models.Post{old, fresh, pinned, premium, draft} {
		require.NoError(t, s.CreatePost(ctx, p))
	}

	posts, total, err := s.ListPosts(ctx, models.PostFilter{
		Visibilities: models.AllowedVisibilities(models.AccessPublic),
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	var slugs []string
	for _, p := range posts {
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"pinned", "fresh", "old"}, slugs)

	_, total, err = s.ListPosts(ctx, models.PostFilter{IncludeDrafts: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	assert.ErrorIs(t, s.CreatePost(ctx, &models.Post{Slug: "old"}), database.ErrDuplicate)
}

func TestSearchPosts(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreatePost(ctx, &models.Post{
		Slug: "a", Title: "Поход в горы", ContentMD: "Было холодно", Status: models.StatusPublished, Visibility: models.VisibilityPublic,
	}))
	require.NoError(t, s.CreatePost(ctx, &models.Post{
		Slug: "b", Title: "Море", ContentMD: "Было тепло", Status: models.StatusPublished, Visibility: models.VisibilityRegistered,
	}))

	posts, total, err := s.SearchPosts(ctx, "горы", models.PostFilter{Visibilities: []models.PostVisibility{models.VisibilityPublic}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "a", posts[0].Slug)

	_, total, err = s.SearchPosts(ctx, "было", models.PostFilter{Visibilities: []models.PostVisibility{models.VisibilityPublic}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestAuthCodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	first := &models.AuthCode{Code: "AAAA2222", TelegramID: 1, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateAuthCode(ctx, first))
	require.NoError(t, s.InvalidateAuthCodes(ctx, 1))
	_, err := s.FindAuthCode(ctx, "AAAA2222", 1, now)
	assert.ErrorIs(t, err, database.ErrNotFound)

	second := &models.AuthCode{Code: "BBBB3333", TelegramID: 1, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateAuthCode(ctx, second))
	got, err := s.FindAuthCode(ctx, "BBBB3333", 0, now)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.FindAuthCode(ctx, "BBBB3333", 0, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, database.ErrNotFound)

	n, err := s.PurgeExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestCommentCascade(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := &models.User{DisplayName: "u", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	post := &models.Post{Slug: "p"}
	require.NoError(t, s.CreatePost(ctx, post))

	root := &models.Comment{PostID: post.ID, AuthorID: u.ID, Content: "root", IsApproved: true}
	require.NoError(t, s.CreateComment(ctx, root))
	reply := &models.Comment{PostID: post.ID, AuthorID: u.ID, ParentID: uuid.NullUUID{UUID: root.ID, Valid: true}, Content: "reply", IsApproved: true}
	require.NoError(t, s.CreateComment(ctx, reply))
	nested := &models.Comment{PostID: post.ID, AuthorID: u.ID, ParentID: uuid.NullUUID{UUID: reply.ID, Valid: true}, Content: "nested", IsApproved: true}
	require.NoError(t, s.CreateComment(ctx, nested))

	top, total, err := s.ListComments(ctx, models.CommentFilter{PostID: uuid.NullUUID{UUID: post.ID, Valid: true}, TopLevelOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NotNil(t, top[0].Author)
	assert.Equal(t, "u", top[0].Author.DisplayName)

	require.NoError(t, s.DeleteComment(ctx, root.ID))
	_, err = s.GetCommentByID(ctx, nested.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestDeleteMediaClearsCover(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := &models.Media{MediaType: models.MediaImage}
	require.NoError(t, s.CreateMedia(ctx, m))
	post := &models.Post{Slug: "p", CoverImageID: uuid.NullUUID{UUID: m.ID, Valid: true}}
	require.NoError(t, s.CreatePost(ctx, post))

	require.NoError(t, s.DeleteMedia(ctx, m.ID))
	got, err := s.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, got.CoverImageID.Valid)
}
