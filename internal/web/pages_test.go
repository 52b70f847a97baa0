package web

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

func TestHomePage(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Добро пожаловать в Мир Якоба")
	assert.Contains(t, body, `hx-get="/partials/posts?page=1"`)
	assert.Contains(t, body, `href="/login"`)

	u := h.addUser(9, models.AccessRegistered, false)
	rec = h.get("/", u)
	assert.Contains(t, rec.Body.String(), u.DisplayName)
	assert.NotContains(t, rec.Body.String(), `href="/admin"`)
}

func TestPostsPartialVisibility(t *testing.T) {
	h := newHarness(t)
	h.addPost("Открытый", models.VisibilityPublic, models.StatusPublished)
	h.addPost("Для своих", models.VisibilityRegistered, models.StatusPublished)
	h.addPost("Премиальный", models.VisibilityPremium2, models.StatusPublished)
	h.addPost("Незаконченный", models.VisibilityPublic, models.StatusDraft)

	body := h.get("/partials/posts", nil).Body.String()
	assert.Contains(t, body, "Открытый")
	assert.NotContains(t, body, "Для своих")
	assert.NotContains(t, body, "Незаконченный")

	reader := h.addUser(2, models.AccessRegistered, false)
	body = h.get("/partials/posts", reader).Body.String()
	assert.Contains(t, body, "Для своих")
	assert.NotContains(t, body, "Премиальный")

	admin := h.addUser(1, models.AccessPublic, true)
	body = h.get("/partials/posts", admin).Body.String()
	assert.Contains(t, body, "Премиальный")
	assert.NotContains(t, body, "Незаконченный")
}

func TestPostsPartialPagination(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < services.PostsPerPage+1; i++ {
		h.addPost("Пост номер "+string(rune('A'+i)), models.VisibilityPublic, models.StatusPublished)
	}
	body := h.get("/partials/posts?page=1", nil).Body.String()
	assert.Contains(t, body, `hx-get="/partials/posts?page=2"`)

	body = h.get("/partials/posts?page=2", nil).Body.String()
	assert.NotContains(t, body, "hx-get")
}

func TestPostDetailCountsViews(t *testing.T) {
	h := newHarness(t)
	post := h.addPost("Читаемый пост", models.VisibilityPublic, models.StatusPublished)

	rec := h.get("/posts/"+post.Slug, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Читаемый пост")
	assert.Contains(t, rec.Body.String(), `hx-get="/api/v1/comments/`+post.ID.String())

	h.get("/posts/"+post.Slug, nil)
	stored, err := h.posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ViewCount)
}

func TestPostDetailHidden(t *testing.T) {
	h := newHarness(t)
	premium := h.addPost("Только премиум", models.VisibilityPremium1, models.StatusPublished)
	draft := h.addPost("Черновик", models.VisibilityPublic, models.StatusDraft)

	assert.Equal(t, http.StatusNotFound, h.get("/posts/"+premium.Slug, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.get("/posts/"+draft.Slug, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.get("/posts/no-such-post", nil).Code)

	vip := h.addUser(3, models.AccessPremium1, false)
	assert.Equal(t, http.StatusOK, h.get("/posts/"+premium.Slug, vip).Code)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	h.addPost("Поездка в горы", models.VisibilityPublic, models.StatusPublished)
	h.addPost("Секретные горы", models.VisibilityPremium2, models.StatusPublished)

	rec := h.get("/search?q="+url.QueryEscape("горы"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Поездка в горы")
	assert.NotContains(t, rec.Body.String(), "Секретные горы")

	rec = h.get("/partials/search-results?q="+url.QueryEscape("нигде"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ничего не найдено")

	rec = h.get("/partials/search-results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Найдено")
}

func TestProfile(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/profile", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	u := h.addUser(4, models.AccessRegistered, false)
	rec = h.get("/profile", u)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Зарегистрированный")

	rec = h.postForm("/profile/update-nickname", url.Values{"display_name": {"  Новый ник  "}}, u)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ник успешно изменён")

	stored, err := h.store.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Новый ник", stored.DisplayName)

	rec = h.postForm("/profile/update-nickname", url.Values{"display_name": {"   "}}, u)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bg-red-50")
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-post="/api/v1/auth/verify-by-code"`)
}
