package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

const internalError = "Внутренняя ошибка сервера"

// apiError переводит ошибку сервиса в JSON-ответ {"detail": ...}
func (s *Server) apiError(c *gin.Context, err error, notFound string) {
	if msg, ok := services.IsValidation(err); ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": msg})
		return
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": notFound})
	case errors.Is(err, services.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Нет доступа"})
	default:
		_ = c.Error(err)
		s.Logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": internalError})
	}
}

// fragmentError отдаёт ошибку валидации как HTML-фрагмент для htmx
func (s *Server) fragmentError(c *gin.Context, err error, notFound string) {
	msg, ok := services.IsValidation(err)
	if !ok {
		s.apiError(c, err, notFound)
		return
	}
	c.HTML(http.StatusBadRequest, "partials/message", gin.H{"Class": "text-red-500 text-sm p-2", "Text": msg})
	c.Abort()
}

// pageError показывает страницу ошибки вместо JSON
func (s *Server) pageError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.notFound(c, notFound)
	case errors.Is(err, services.ErrForbidden):
		s.errorPage(c, http.StatusForbidden, "Нет доступа")
	default:
		if msg, ok := services.IsValidation(err); ok {
			s.errorPage(c, http.StatusBadRequest, msg)
			return
		}
		_ = c.Error(err)
		s.Logger.Error("page failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		s.errorPage(c, http.StatusInternalServerError, internalError)
	}
}

func (s *Server) notFound(c *gin.Context, msg string) {
	s.errorPage(c, http.StatusNotFound, msg)
}

func (s *Server) errorPage(c *gin.Context, status int, msg string) {
	s.page(c, status, "pages/error", gin.H{"Title": msg, "Status": status, "Message": msg})
	c.Abort()
}

// page рендерит страницу с общими полями шаблона
func (s *Server) page(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["AppName"] = s.Config.AppName
	data["User"] = currentUser(c)
	if _, ok := data["Title"]; !ok {
		data["Title"] = ""
	}
	if _, ok := data["Query"]; !ok {
		data["Query"] = ""
	}
	c.HTML(status, name, data)
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	return id, err == nil
}

func queryPage(c *gin.Context) int {
	var q struct {
		Page int `form:"page"`
	}
	if err := c.ShouldBindQuery(&q); err != nil || q.Page < 1 {
		return 1
	}
	return q.Page
}

func postRefs(posts []models.Post) []*models.Post {
	refs := make([]*models.Post, len(posts))
	for i := range posts {
		refs[i] = &posts[i]
	}
	return refs
}
