package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/config"
	"jakob-blog/internal/models"
)

var codePattern = regexp.MustCompile(`<code>([A-Z0-9]+)</code>`)

func sessionFrom(t *testing.T, rec interface{ Result() *http.Response }) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestRequestCodeAndVerify(t *testing.T) {
	h := newHarness(t)

	rec := h.postJSON("/api/v1/auth/request-code", `{"telegram_id": 777}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": true, "message": "Код отправлен в Telegram. Проверьте сообщения."}`, rec.Body.String())

	sent := h.msgr.to(777)
	require.Len(t, sent, 1)
	m := codePattern.FindStringSubmatch(sent[0])
	require.Len(t, m, 2)

	rec = h.postJSON("/api/v1/auth/verify", fmt.Sprintf(`{"telegram_id": 777, "code": %q}`, m[1]), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": true, "message": "Вход выполнен!"}`, rec.Body.String())

	cookie := sessionFrom(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(h.cfg.SessionExpire.Seconds()), cookie.MaxAge)

	req := newGet("/api/v1/auth/me")
	req.AddCookie(cookie)
	rec = h.do(req, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, int64(777), me.TelegramID)
	assert.Equal(t, "User_777", me.DisplayName)
	assert.Nil(t, me.Username)
	assert.Equal(t, int(models.AccessRegistered), me.AccessLevel)

	// код одноразовый
	rec = h.postJSON("/api/v1/auth/verify", fmt.Sprintf(`{"telegram_id": 777, "code": %q}`, m[1]), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail": "Неверный или просроченный код."}`, rec.Body.String())
}

func TestRequestCodeDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.msgr.failTo = map[int64]bool{13: true}

	rec := h.postJSON("/api/v1/auth/request-code", `{"telegram_id": 13}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail": "Не удалось отправить код. Убедитесь, что вы запустили бота."}`, rec.Body.String())
}

func TestRequestCodeValidation(t *testing.T) {
	h := newHarness(t)
	rec := h.postJSON("/api/v1/auth/request-code", `{"telegram_id": "abc"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRequestCodeRateLimit(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		rec := h.postJSON("/api/v1/auth/request-code", `{"telegram_id": 5}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.postJSON("/api/v1/auth/request-code", `{"telegram_id": 5}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"detail": "Слишком много запросов. Попробуйте позже."}`, rec.Body.String())
}

func verifyFrom(h *harness, forwardedFor string) int {
	body := strings.NewReader(url.Values{"code": {"wrong123"}}.Encode())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify-by-code", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return h.do(req, nil).Code
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, verifyFrom(h, fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, verifyFrom(h, "10.0.0.200"))
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.TrustedProxies = []string{"192.0.2.0/24"}
	})
	for i := 0; i < 7; i++ {
		require.Equal(t, http.StatusOK, verifyFrom(h, fmt.Sprintf("10.0.0.%d", i)))
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, verifyFrom(h, "10.0.1.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, verifyFrom(h, "10.0.1.1"))
}

func TestMeUnauthorized(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail": "Не авторизован"}`, rec.Body.String())

	req := newGet("/api/v1/auth/me")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "garbage"})
	rec = h.do(req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail": "Недействительная сессия"}`, rec.Body.String())
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(10, models.AccessRegistered, false)
	token, err := h.auth.CreateSession(context.Background(), u.ID)
	require.NoError(t, err)

	req := newPost("/api/v1/auth/logout")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	rec := h.do(req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true, "message": "Вы вышли из системы"}`, rec.Body.String())
	assert.Equal(t, -1, sessionFrom(t, rec).MaxAge)

	_, err = h.auth.UserBySessionToken(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyByCode(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(55, models.AccessRegistered, false)
	code, err := h.auth.CreateAuthCode(context.Background(), 55)
	require.NoError(t, err)

	rec := h.postForm("/api/v1/auth/verify-by-code", url.Values{"code": {"wrong123"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Неверный или просроченный код")
	assert.Empty(t, rec.Header().Get("HX-Redirect"))

	rec = h.postForm("/api/v1/auth/verify-by-code", url.Values{"code": {" " + code.Code + " "}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))
	assert.Contains(t, rec.Body.String(), "Добро пожаловать, "+u.DisplayName)
	sessionFrom(t, rec)
}

func TestVerifyByCodeEscapesName(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(56, models.AccessRegistered, false)
	u.DisplayName = "<script>x</script>"
	require.NoError(t, h.store.UpdateUser(context.Background(), u))
	code, err := h.auth.CreateAuthCode(context.Background(), 56)
	require.NoError(t, err)

	rec := h.postForm("/api/v1/auth/verify-by-code", url.Values{"code": {code.Code}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}
