package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/database/memdb"
	"jakob-blog/internal/models"
)

func newNotifyFixture(t *testing.T) (*NotifyService, *memdb.Store, *fakeMessenger) {
	store := memdb.New()
	msg := &fakeMessenger{failTo: map[int64]bool{}}
	return NewNotifyService(store, msg, testConfig(t), nopLogger(), nil), store, msg
}

func chatIDs(sent []sentMessage) map[int64]bool {
	ids := make(map[int64]bool)
	for _, m := range sent {
		ids[m.ChatID] = true
	}
	return ids
}

func TestNewPostMessage(t *testing.T) {
	text := NewPostMessage("<Заголовок>", "Кратко", models.VisibilityPremium2)
	assert.Equal(t, "<b>Новый пост в Мире Якоба!</b> [Premium+]\n\n<b>&lt;Заголовок&gt;</b>\n\nКратко", text)

	text = NewPostMessage("Заголовок", "", models.VisibilityPublic)
	assert.Equal(t, "<b>Новый пост в Мире Якоба!</b>\n\n<b>Заголовок</b>", text)
}

func TestNotifyNewPostRespectsVisibility(t *testing.T) {
	svc, store, msg := newNotifyFixture(t)
	ctx := context.Background()

	addUser(t, store, 1, models.AccessRegistered, false)
	addUser(t, store, 2, models.AccessPremium1, false)
	addUser(t, store, 3, models.AccessRegistered, true)
	inactive := addUser(t, store, 4, models.AccessPremium2, false)
	inactive.IsActive = false
	require.NoError(t, store.UpdateUser(ctx, inactive))

	post := &models.Post{Title: "Премиум", Slug: "premium", Visibility: models.VisibilityPremium1}
	sent, err := svc.NotifyNewPost(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	if diff := cmp.Diff(map[int64]bool{2: true, 3: true}, chatIDs(msg.Sent())); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, &LinkButton{Text: "Читать пост", URL: "https://example.org/posts/premium"}, msg.Sent()[0].Button)
}

func TestNotifyNewPostSkipsFailures(t *testing.T) {
	svc, store, msg := newNotifyFixture(t)
	addUser(t, store, 1, models.AccessRegistered, false)
	addUser(t, store, 2, models.AccessRegistered, false)
	msg.failTo[1] = true

	sent, err := svc.NotifyNewPost(context.Background(), &models.Post{Title: "t", Slug: "t", Visibility: models.VisibilityPublic})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestNotifyNewPostDisabled(t *testing.T) {
	svc, store, msg := newNotifyFixture(t)
	svc.cfg.NotifyOnPublish = false
	addUser(t, store, 1, models.AccessRegistered, false)

	sent, err := svc.NotifyNewPost(context.Background(), &models.Post{Title: "t", Slug: "t"})
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, msg.Sent())
}

func TestNotifyNewPostAsync(t *testing.T) {
	svc, store, msg := newNotifyFixture(t)
	addUser(t, store, 1, models.AccessRegistered, false)

	svc.NotifyNewPostAsync(&models.Post{Title: "t", Slug: "t", Visibility: models.VisibilityPublic})
	svc.Wait()
	assert.Len(t, msg.Sent(), 1)
}

func TestCommentNotifications(t *testing.T) {
	svc, store, msg := newNotifyFixture(t)
	ctx := context.Background()

	addUser(t, store, 10, models.AccessRegistered, true)
	parent := addUser(t, store, 11, models.AccessRegistered, false)
	replier := addUser(t, store, 12, models.AccessRegistered, false)
	replier.DisplayName = "Ответчик"

	assert.True(t, svc.NotifyAdminsNewComment(ctx, "Гость", "Пост", "post", strings.Repeat("я", 200)))
	sent := msg.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(10), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "💬 <b>Новый комментарий</b>")
	assert.Contains(t, sent[0].Text, strings.Repeat("я", 150)+"...")

	assert.False(t, svc.NotifyCommentReply(ctx, parent, parent, "Пост", "post", "сам себе"))
	assert.True(t, svc.NotifyCommentReply(ctx, parent, replier, "Пост", "post", "ответ"))
	sent = msg.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, int64(11), sent[1].ChatID)
	assert.Contains(t, sent[1].Text, "Ответчик")

	parent.IsActive = false
	assert.False(t, svc.NotifyCommentReply(ctx, parent, replier, "Пост", "post", "ответ"))
}

func TestSendAuthCode(t *testing.T) {
	svc, _, msg := newNotifyFixture(t)

	require.NoError(t, svc.SendAuthCode(context.Background(), 5, "ABCD2345"))
	sent := msg.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "<code>ABCD2345</code>")
	assert.Contains(t, sent[0].Text, "5 минут")
	assert.Nil(t, sent[0].Button)
}
