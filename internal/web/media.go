package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

const mediaNotFound = "Медиа не найдено"

type mediaResponse struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MediaType    string    `json:"media_type"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

func newMediaResponse(m *models.Media) mediaResponse {
	return mediaResponse{
		ID:           m.ID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		MediaType:    string(m.MediaType),
		FileSize:     m.FileSize,
		MimeType:     m.MimeType,
		URL:          m.URL(),
		CreatedAt:    m.CreatedAt,
	}
}

type reorderBody struct {
	MediaIDs []uuid.UUID `json:"media_ids" binding:"required"`
}

// receiveUpload читает файл из поля "file" и сохраняет через MediaService
func (s *Server) receiveUpload(c *gin.Context, postID uuid.NullUUID) (*models.Media, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, &services.ValidationError{Message: "Файл не передан"}
	}
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return s.Media.Upload(c.Request.Context(), services.UploadRequest{
		Reader:      f,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		UploaderID:  currentUser(c).ID,
		PostID:      postID,
	})
}

func (s *Server) uploadMedia(c *gin.Context) {
	var postID uuid.NullUUID
	if raw := strings.TrimSpace(c.PostForm("post_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.HTML(http.StatusBadRequest, "partials/message", gin.H{"Class": "text-red-500 text-sm p-2", "Text": "Неверный ID поста"})
			return
		}
		if _, err := s.Posts.GetByID(c.Request.Context(), id); err != nil {
			s.fragmentError(c, err, "Пост не найден")
			return
		}
		postID = uuid.NullUUID{UUID: id, Valid: true}
	}

	m, err := s.receiveUpload(c, postID)
	if err != nil {
		s.fragmentError(c, err, mediaNotFound)
		return
	}
	c.HTML(http.StatusOK, "partials/media_item", m)
}

// uploadEditorJS отвечает в формате, который ждёт Image tool редактора
func (s *Server) uploadEditorJS(c *gin.Context) {
	m, err := s.receiveUpload(c, uuid.NullUUID{})
	if err != nil {
		if msg, ok := services.IsValidation(err); ok {
			c.JSON(http.StatusOK, gin.H{"success": 0, "error": msg})
			return
		}
		s.apiError(c, err, mediaNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": 1,
		"file":    gin.H{"url": m.URL(), "id": m.ID.String()},
	})
}

func (s *Server) getMedia(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": mediaNotFound})
		return
	}
	m, err := s.Media.Get(c.Request.Context(), id)
	if err != nil {
		s.apiError(c, err, mediaNotFound)
		return
	}
	c.JSON(http.StatusOK, newMediaResponse(m))
}

func (s *Server) attachMedia(c *gin.Context) {
	mediaID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": mediaNotFound})
		return
	}
	postID, ok := paramUUID(c, "post_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Пост не найден"})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.Posts.GetByID(ctx, postID); err != nil {
		s.apiError(c, err, "Пост не найден")
		return
	}
	m, err := s.Media.Attach(ctx, mediaID, postID, currentUser(c))
	if err != nil {
		s.apiError(c, err, mediaNotFound)
		return
	}
	c.JSON(http.StatusOK, newMediaResponse(m))
}

// deleteMedia возвращает пустое тело, htmx уберёт элемент
func (s *Server) deleteMedia(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": mediaNotFound})
		return
	}
	if err := s.Media.Delete(c.Request.Context(), id, currentUser(c)); err != nil {
		s.apiError(c, err, mediaNotFound)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", nil)
}

func (s *Server) listPostMedia(c *gin.Context) {
	postID, ok := paramUUID(c, "post_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Пост не найден"})
		return
	}
	list, err := s.Media.ListForPost(c.Request.Context(), postID)
	if err != nil {
		s.apiError(c, err, "Пост не найден")
		return
	}
	items := make([]mediaResponse, 0, len(list))
	for i := range list {
		items = append(items, newMediaResponse(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (s *Server) reorderMedia(c *gin.Context) {
	postID, ok := paramUUID(c, "post_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Пост не найден"})
		return
	}
	var body reorderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequestBody(c, err)
		return
	}
	if err := s.Media.Reorder(c.Request.Context(), postID, body.MediaIDs); err != nil {
		s.apiError(c, err, mediaNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Порядок обновлён"})
}
