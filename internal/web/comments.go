package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

const (
	commentNotFound = "Комментарий не найден"
	postNotFound    = "Пост не найден"
)

// visiblePost возвращает пост, если зритель может его видеть
func (s *Server) visiblePost(c *gin.Context, id uuid.UUID, viewer *models.User) (*models.Post, error) {
	post, err := s.Posts.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if viewer.EffectiveLevel() < post.Visibility.RequiredLevel() {
		return nil, services.ErrNotFound
	}
	if !post.IsPublished() && (viewer == nil || !viewer.IsAdmin) {
		return nil, services.ErrNotFound
	}
	return post, nil
}

func (s *Server) createComment(c *gin.Context) {
	postID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": postNotFound})
		return
	}
	user := currentUser(c)
	ctx := c.Request.Context()

	post, err := s.visiblePost(c, postID, user)
	if err != nil {
		s.apiError(c, err, postNotFound)
		return
	}

	var parentID uuid.NullUUID
	if raw := strings.TrimSpace(c.PostForm("parent_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Неверный ID комментария"})
			return
		}
		parentID = uuid.NullUUID{UUID: id, Valid: true}
	}

	content := c.PostForm("content")
	comment, err := s.Comments.Create(ctx, post.ID, user, content, parentID)
	if err != nil {
		s.fragmentError(c, err, commentNotFound)
		return
	}

	if !user.IsAdmin {
		s.Notify.NotifyAdminsNewComment(ctx, user.DisplayName, post.Title, post.Slug, comment.Content)
	}
	if parentID.Valid {
		parent, err := s.Comments.Get(ctx, parentID.UUID)
		if err != nil {
			s.Logger.Warn("failed to load parent comment", zap.Error(err))
		} else {
			s.Notify.NotifyCommentReply(ctx, parent.Author, user, post.Title, post.Slug, comment.Content)
		}
	}

	c.HTML(http.StatusOK, "partials/comment", commentView{Comment: *comment, Viewer: user})
}

func (s *Server) listComments(c *gin.Context) {
	postID, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": postNotFound})
		return
	}
	user := currentUser(c)
	if _, err := s.visiblePost(c, postID, user); err != nil {
		s.apiError(c, err, postNotFound)
		return
	}

	comments, total, err := s.Comments.List(c.Request.Context(), postID, queryPage(c))
	if err != nil {
		s.apiError(c, err, postNotFound)
		return
	}
	c.HTML(http.StatusOK, "partials/comments_list", gin.H{
		"Comments": comments,
		"Total":    total,
		"PostID":   postID,
		"User":     user,
	})
}

func (s *Server) deleteComment(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": commentNotFound})
		return
	}
	if err := s.Comments.Delete(c.Request.Context(), id, currentUser(c)); err != nil {
		s.apiError(c, err, commentNotFound)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", nil)
}

func (s *Server) moderateComment(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramUUID(c, "id")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": commentNotFound})
			return
		}
		var err error
		if approve {
			_, err = s.Comments.Approve(c.Request.Context(), id)
		} else {
			_, err = s.Comments.Reject(c.Request.Context(), id)
		}
		if err != nil {
			s.apiError(c, err, commentNotFound)
			return
		}
		c.HTML(http.StatusOK, "partials/moderation", gin.H{"Approved": approve})
	}
}
