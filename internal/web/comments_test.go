package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/models"
)

func TestCreateCommentNotifiesAdmins(t *testing.T) {
	h := newHarness(t)
	admin := h.addUser(1, models.AccessRegistered, true)
	reader := h.addUser(2, models.AccessRegistered, false)
	post := h.addPost("Обсуждаемый пост", models.VisibilityPublic, models.StatusPublished)

	path := "/api/v1/comments/" + post.ID.String()
	assert.Equal(t, http.StatusUnauthorized, h.postForm(path, url.Values{"content": {"привет"}}, nil).Code)

	rec := h.postForm(path, url.Values{"content": {"  "}}, reader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Комментарий не может быть пустым")

	rec = h.postForm(path, url.Values{"content": {"<b>Отличный</b> пост"}}, reader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Отличный пост")
	assert.Contains(t, rec.Body.String(), "Удалить")

	sent := h.msgr.to(admin.TelegramID)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Новый комментарий")
	assert.Contains(t, sent[0], "Обсуждаемый пост")

	// комментарий администратора администраторам не пересылается
	rec = h.postForm(path, url.Values{"content": {"Спасибо!"}}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, h.msgr.to(admin.TelegramID), 1)
}

func TestReplyNotifiesParentAuthor(t *testing.T) {
	h := newHarness(t)
	admin := h.addUser(1, models.AccessRegistered, true)
	alice := h.addUser(2, models.AccessRegistered, false)
	post := h.addPost("Пост с ответами", models.VisibilityPublic, models.StatusPublished)

	parent, err := h.comments.Create(context.Background(), post.ID, alice, "Вопрос", uuid.NullUUID{})
	require.NoError(t, err)

	rec := h.postForm("/api/v1/comments/"+post.ID.String(),
		url.Values{"content": {"Ответ"}, "parent_id": {parent.ID.String()}}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := h.msgr.to(alice.TelegramID)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Ответ на ваш комментарий")
}

func TestCommentOnHiddenPost(t *testing.T) {
	h := newHarness(t)
	reader := h.addUser(2, models.AccessRegistered, false)
	premium := h.addPost("Премиум", models.VisibilityPremium1, models.StatusPublished)
	draft := h.addPost("Черновик", models.VisibilityPublic, models.StatusDraft)

	for _, p := range []*models.Post{premium, draft} {
		rec := h.postForm("/api/v1/comments/"+p.ID.String(), url.Values{"content": {"тест"}}, reader)
		assert.Equal(t, http.StatusNotFound, rec.Code, p.Title)
		assert.Equal(t, http.StatusNotFound, h.get("/api/v1/comments/"+p.ID.String(), reader).Code, p.Title)
	}
}

func TestListComments(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser(2, models.AccessRegistered, false)
	bob := h.addUser(3, models.AccessRegistered, false)
	post := h.addPost("Комментарии", models.VisibilityPublic, models.StatusPublished)

	parent, err := h.comments.Create(context.Background(), post.ID, alice, "Первый", uuid.NullUUID{})
	require.NoError(t, err)
	_, err = h.comments.Create(context.Background(), post.ID, bob, "Ответ Боба", uuid.NullUUID{UUID: parent.ID, Valid: true})
	require.NoError(t, err)

	rec := h.get("/api/v1/comments/"+post.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Комментарии (1)")
	assert.Contains(t, body, "Первый")
	assert.Contains(t, body, "Ответ Боба")
	assert.Contains(t, body, "Войдите")
	assert.NotContains(t, body, "hx-delete")

	rec = h.get("/api/v1/comments/"+post.ID.String(), bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-post="/api/v1/comments/`+post.ID.String())
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "hx-delete"), "only own reply is deletable")
}

func TestDeleteAndModerateComment(t *testing.T) {
	h := newHarness(t)
	admin := h.addUser(1, models.AccessRegistered, true)
	alice := h.addUser(2, models.AccessRegistered, false)
	bob := h.addUser(3, models.AccessRegistered, false)
	post := h.addPost("Модерация", models.VisibilityPublic, models.StatusPublished)

	c, err := h.comments.Create(context.Background(), post.ID, alice, "Спорное мнение", uuid.NullUUID{})
	require.NoError(t, err)

	reject := "/api/v1/comments/" + c.ID.String() + "/reject"
	assert.Equal(t, http.StatusForbidden, h.do(newPost(reject), alice).Code)

	rec := h.do(newPost(reject), admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Отклонено")

	rec = h.get("/admin/comments", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Спорное мнение")

	rec = h.do(newPost("/api/v1/comments/"+c.ID.String()+"/approve"), admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Одобрено")

	del := func() *http.Request {
		return httptest.NewRequest(http.MethodDelete, "/api/v1/comments/"+c.ID.String(), nil)
	}
	assert.Equal(t, http.StatusForbidden, h.do(del(), bob).Code)
	assert.Equal(t, http.StatusOK, h.do(del(), alice).Code)
	assert.Equal(t, http.StatusNotFound, h.do(del(), alice).Code)
}
