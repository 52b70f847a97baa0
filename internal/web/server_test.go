package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/database/memdb"
	"jakob-blog/internal/metrics"
	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[int64]bool
}

func (f *fakeMessenger) SendHTML(_ context.Context, chatID int64, text string, _ *services.LinkButton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[chatID] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeMessenger) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

type fakeDispatcher struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (f *fakeDispatcher) Dispatch(update tgbotapi.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

type harness struct {
	t      *testing.T
	cfg    *config.Config
	store  *memdb.Store
	server *Server
	msgr   *fakeMessenger
	bot    *fakeDispatcher

	auth     *services.AuthService
	posts    *services.PostService
	media    *services.MediaService
	comments *services.CommentService
	notify   *services.NotifyService
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		AppName:               "Мир Якоба",
		BaseURL:               "https://example.org",
		TelegramWebhookSecret: "s3cret",
		UploadDir:             t.TempDir(),
		StaticDir:             t.TempDir(),
		MaxImageSize:          1 << 20,
		MaxAudioSize:          2 << 20,
		MaxVideoSize:          4 << 20,
		SessionExpire:         24 * time.Hour,
		AuthCodeExpire:        5 * time.Minute,
		ConversationTTL:       time.Hour,
		NotifyOnPublish:       true,
		OpenAIModel:           "gpt-4o-mini",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := zap.NewNop()
	m := metrics.New()
	store := memdb.New()
	msgr := &fakeMessenger{}

	h := &harness{
		t:        t,
		cfg:      cfg,
		store:    store,
		msgr:     msgr,
		bot:      &fakeDispatcher{},
		auth:     services.NewAuthService(store, store, cfg, logger),
		posts:    services.NewPostService(store, store, logger),
		media:    services.NewMediaService(store, cfg, logger),
		comments: services.NewCommentService(store, logger),
		notify:   services.NewNotifyService(store, msgr, cfg, logger, m),
	}

	srv, err := New(Deps{
		Auth:     h.auth,
		Users:    services.NewUserService(store, logger),
		Posts:    h.posts,
		Media:    h.media,
		Comments: h.comments,
		Settings: services.NewSettingsService(store, cfg, logger),
		Notify:   h.notify,
		Bot:      h.bot,
		DB:       store,
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
	})
	require.NoError(t, err)
	h.server = srv
	t.Cleanup(h.notify.Wait)
	return h
}

func (h *harness) addUser(tgID int64, level models.AccessLevel, admin bool) *models.User {
	h.t.Helper()
	u := &models.User{
		TelegramID:  tgID,
		DisplayName: fmt.Sprintf("user%d", tgID),
		AccessLevel: level,
		IsAdmin:     admin,
		IsActive:    true,
	}
	require.NoError(h.t, h.store.CreateUser(context.Background(), u))
	return u
}

func (h *harness) addPost(title string, visibility models.PostVisibility, status models.PostStatus) *models.Post {
	h.t.Helper()
	p, err := h.posts.Create(context.Background(), services.PostInput{
		Title:      title,
		ContentMD:  "Текст поста про " + title,
		Visibility: visibility,
		Status:     status,
	})
	require.NoError(h.t, err)
	return p
}

// do выполняет запрос от имени user, nil означает анонима
func (h *harness) do(req *http.Request, user *models.User) *httptest.ResponseRecorder {
	h.t.Helper()
	if user != nil {
		token, err := h.auth.CreateSession(context.Background(), user.ID)
		require.NoError(h.t, err)
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(path string, user *models.User) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, path, nil), user)
}

func (h *harness) postForm(path string, form url.Values, user *models.User) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, user)
}

func (h *harness) postJSON(path, body string, user *models.User) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, user)
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	hdr := rec.Header()
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", hdr.Get("Referrer-Policy"))
	assert.Contains(t, hdr.Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Contains(t, hdr.Get("Strict-Transport-Security"), "max-age=31536000")

	h.cfg.Debug = true
	assert.Empty(t, h.get("/health", nil).Header().Get("Strict-Transport-Security"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.get("/health", nil)

	rec := h.get("/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestUnknownRouteRendersNotFoundPage(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/no/such/page", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Страница не найдена")
}

func TestUploadsServedFromUploadDir(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.cfg.UploadDir+"/images", 0o755))
	require.NoError(t, os.WriteFile(h.cfg.UploadDir+"/images/a.txt", []byte("hello"), 0o644))

	rec := h.get("/uploads/images/a.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "hello", string(body))

	assert.Equal(t, http.StatusNotFound, h.get("/uploads/../go.mod", nil).Code)
}

func TestWebhook(t *testing.T) {
	h := newHarness(t)
	payload := `{"update_id": 7, "message": {"message_id": 1, "text": "/start", "chat": {"id": 42, "type": "private"}}}`

	rec := h.postJSON("/webhook/telegram/wrong", payload, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.postJSON("/webhook/telegram/s3cret", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.postJSON("/webhook/telegram/s3cret", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	h.bot.mu.Lock()
	defer h.bot.mu.Unlock()
	require.Len(t, h.bot.updates, 1)
	assert.Equal(t, 7, h.bot.updates[0].UpdateID)
	assert.Equal(t, int64(42), h.bot.updates[0].Message.Chat.ID)
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(3, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.1.1.1"))
	}
	assert.False(t, l.allow("1.1.1.1"))
	assert.True(t, l.allow("2.2.2.2"), "limits are per address")

	now = now.Add(20 * time.Second)
	assert.True(t, l.allow("1.1.1.1"), "one token refills every 20s")

	now = now.Add(time.Hour)
	l.allow("3.3.3.3")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.visitors, 1, "idle visitors are swept")
}

func newGet(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func newPost(path string) *http.Request {
	return httptest.NewRequest(http.MethodPost, path, nil)
}
