package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

type requestCodeBody struct {
	TelegramID int64 `json:"telegram_id" binding:"required,gt=0"`
}

type verifyCodeBody struct {
	TelegramID int64  `json:"telegram_id" binding:"required,gt=0"`
	Code       string `json:"code" binding:"required,max=32"`
}

type userResponse struct {
	ID          string  `json:"id"`
	TelegramID  int64   `json:"telegram_id"`
	Username    *string `json:"username"`
	DisplayName string  `json:"display_name"`
	AccessLevel int     `json:"access_level"`
	IsAdmin     bool    `json:"is_admin"`
}

func newUserResponse(u *models.User) userResponse {
	resp := userResponse{
		ID:          u.ID.String(),
		TelegramID:  u.TelegramID,
		DisplayName: u.DisplayName,
		AccessLevel: int(u.AccessLevel),
		IsAdmin:     u.IsAdmin,
	}
	if u.Username != "" {
		resp.Username = &u.Username
	}
	return resp
}

func badRequestBody(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": "Некорректный запрос: " + err.Error()})
}

// requestCode создаёт код и отправляет его пользователю через бота
func (s *Server) requestCode(c *gin.Context) {
	var body requestCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequestBody(c, err)
		return
	}

	ctx := c.Request.Context()
	code, err := s.Auth.CreateAuthCode(ctx, body.TelegramID)
	if err != nil {
		s.apiError(c, err, "Пользователь не найден")
		return
	}

	if err := s.Notify.SendAuthCode(ctx, body.TelegramID, code.Code); err != nil {
		s.Logger.Warn("auth code delivery failed", zap.Int64("telegram_id", body.TelegramID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Не удалось отправить код. Убедитесь, что вы запустили бота."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Код отправлен в Telegram. Проверьте сообщения."})
}

func (s *Server) verifyCode(c *gin.Context) {
	var body verifyCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequestBody(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := s.Auth.VerifyAuthCode(ctx, body.TelegramID, body.Code)
	if errors.Is(err, services.ErrInvalidCode) || errors.Is(err, services.ErrInactive) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Неверный или просроченный код."})
		return
	}
	if err != nil {
		s.apiError(c, err, "Пользователь не найден")
		return
	}

	token, err := s.Auth.CreateSession(ctx, user.ID)
	if err != nil {
		s.apiError(c, err, "Пользователь не найден")
		return
	}
	s.setSession(c, token)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Вход выполнен!"})
}

func (s *Server) me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		detail := "Не авторизован"
		if hasSessionCookie(c) {
			detail = "Недействительная сессия"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"detail": detail})
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (s *Server) logout(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
		if err := s.Auth.InvalidateSession(c.Request.Context(), token); err != nil {
			s.Logger.Warn("failed to invalidate session", zap.Error(err))
		}
	}
	s.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Вы вышли из системы"})
}

// verifyByCode: вход по одному коду со страницы /login, ответ для htmx
func (s *Server) verifyByCode(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := s.Auth.VerifyCodeOnly(ctx, c.PostForm("code"))
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCode) && !errors.Is(err, services.ErrInactive) {
			s.Logger.Error("verify by code failed", zap.Error(err))
		}
		c.HTML(http.StatusOK, "partials/login_result", gin.H{"User": nil})
		return
	}

	token, err := s.Auth.CreateSession(ctx, user.ID)
	if err != nil {
		s.apiError(c, err, "Пользователь не найден")
		return
	}
	s.setSession(c, token)
	c.Header("HX-Redirect", "/")
	c.HTML(http.StatusOK, "partials/login_result", gin.H{"User": user})
}
