package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"
)

// webhook принимает апдейт от Telegram и сразу отвечает, обработка идёт в фоне
func (s *Server) webhook(c *gin.Context) {
	expected := strings.TrimPrefix(s.Config.WebhookPath(), "/webhook/telegram/")
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(expected)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Неверный секрет"})
		return
	}
	if s.Bot == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"detail": "Бот не запущен"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		s.Logger.Warn("bad webhook payload", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Некорректный апдейт"})
		return
	}

	s.Bot.Dispatch(update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
