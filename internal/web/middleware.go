package web

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
)

const (
	sessionCookie = "session"
	userKey       = "user"

	contentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://cdn.tailwindcss.com https://unpkg.com https://cdn.jsdelivr.net; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: blob: https:; " +
		"media-src 'self' blob:; " +
		"font-src 'self' data:; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none';"
)

func (s *Server) recovered(c *gin.Context, err any) {
	s.Logger.Error("panic in handler",
		zap.Any("panic", err),
		zap.String("path", c.Request.URL.Path),
		zap.ByteString("stack", debug.Stack()))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Внутренняя ошибка сервера"})
}

// requestLogger пишет строку лога и метрику на каждый запрос
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		s.Metrics.ObserveHTTP(c.Request.Method, c.FullPath(), status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if status >= http.StatusInternalServerError {
			s.Logger.Error("request", fields...)
			return
		}
		s.Logger.Debug("request", fields...)
	}
}

func (s *Server) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		if !s.Config.Debug {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		c.Next()
	}
}

// loadUser кладёт в контекст пользователя из cookie сессии, если она действительна
func (s *Server) loadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookie)
		if err == nil && token != "" {
			user, err := s.Auth.UserBySessionToken(c.Request.Context(), token)
			if err == nil {
				c.Set(userKey, user)
			}
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func hasSessionCookie(c *gin.Context) bool {
	token, err := c.Cookie(sessionCookie)
	return err == nil && token != ""
}

func (s *Server) requireAPIUser(c *gin.Context) {
	if currentUser(c) != nil {
		c.Next()
		return
	}
	detail := "Не авторизован"
	if hasSessionCookie(c) {
		detail = "Недействительная сессия"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
}

func (s *Server) requireAPIAdmin(c *gin.Context) {
	if u := currentUser(c); u == nil || !u.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Требуется доступ администратора"})
		return
	}
	c.Next()
}

func (s *Server) requirePageUser(c *gin.Context) {
	if currentUser(c) == nil {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) requirePageAdmin(c *gin.Context) {
	if u := currentUser(c); u == nil || !u.IsAdmin {
		s.errorPage(c, http.StatusForbidden, "Требуется доступ администратора")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(s.Config.SessionExpire.Seconds()), "/", "", !s.Config.Debug, true)
}

func (s *Server) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", !s.Config.Debug, true)
}
