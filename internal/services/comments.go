package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/render"
)

const (
	MaxCommentLength = 2000
	CommentsPerPage  = 50
	PendingPerPage   = 20
	maxReplyDepth    = 3
)

type CommentService struct {
	comments CommentStore
	logger   *zap.Logger
}

func NewCommentService(comments CommentStore, logger *zap.Logger) *CommentService {
	return &CommentService{comments: comments, logger: logger}
}

// cleanComment убирает любую разметку и проверяет длину
func cleanComment(content string) (string, error) {
	clean := strings.TrimSpace(render.StripTags(strings.TrimSpace(content)))
	if clean == "" {
		return "", invalidf("Комментарий не может быть пустым")
	}
	if utf8.RuneCountInString(clean) > MaxCommentLength {
		return "", invalidf("Комментарий длиннее %d символов", MaxCommentLength)
	}
	return clean, nil
}

func approvedOnly() *bool {
	v := true
	return &v
}

// Create добавляет комментарий к посту. Родитель, если задан, должен быть на том же посту.
func (s *CommentService) Create(ctx context.Context, postID uuid.UUID, author *models.User, content string, parentID uuid.NullUUID) (*models.Comment, error) {
	clean, err := cleanComment(content)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		parent, err := s.comments.GetCommentByID(ctx, parentID.UUID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != postID {
			return nil, invalidf("Нельзя ответить на комментарий к другому посту")
		}
	}

	c := &models.Comment{
		PostID:     postID,
		AuthorID:   author.ID,
		ParentID:   parentID,
		Content:    clean,
		IsApproved: true,
	}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	c.Author = author

	s.logger.Info("comment created",
		zap.String("comment_id", c.ID.String()),
		zap.String("post_id", postID.String()),
		zap.Bool("reply", parentID.Valid))
	return c, nil
}

func (s *CommentService) Get(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	return s.comments.GetCommentByID(ctx, id)
}

func canEditComment(c *models.Comment, requester *models.User) bool {
	return requester != nil && (requester.IsAdmin || c.AuthorID == requester.ID)
}

func (s *CommentService) Update(ctx context.Context, id uuid.UUID, requester *models.User, content string) (*models.Comment, error) {
	c, err := s.comments.GetCommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditComment(c, requester) {
		return nil, ErrForbidden
	}
	clean, err := cleanComment(content)
	if err != nil {
		return nil, err
	}
	c.Content = clean
	if err := s.comments.UpdateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete удаляет комментарий вместе с ответами
func (s *CommentService) Delete(ctx context.Context, id uuid.UUID, requester *models.User) error {
	c, err := s.comments.GetCommentByID(ctx, id)
	if err != nil {
		return err
	}
	if !canEditComment(c, requester) {
		return ErrForbidden
	}
	return s.comments.DeleteComment(ctx, id)
}

// List возвращает одобренные комментарии верхнего уровня (новые первыми) с ответами
func (s *CommentService) List(ctx context.Context, postID uuid.UUID, page int) ([]models.Comment, int, error) {
	if page < 1 {
		page = 1
	}
	comments, total, err := s.comments.ListComments(ctx, models.CommentFilter{
		PostID:       uuid.NullUUID{UUID: postID, Valid: true},
		TopLevelOnly: true,
		Approved:     approvedOnly(),
		Limit:        CommentsPerPage,
		Offset:       (page - 1) * CommentsPerPage,
	})
	if err != nil {
		return nil, 0, err
	}
	for i := range comments {
		if err := s.loadReplies(ctx, &comments[i], 0); err != nil {
			return nil, 0, err
		}
	}
	return comments, total, nil
}

func (s *CommentService) loadReplies(ctx context.Context, c *models.Comment, depth int) error {
	if depth >= maxReplyDepth {
		return nil
	}
	replies, _, err := s.comments.ListComments(ctx, models.CommentFilter{
		ParentID:    uuid.NullUUID{UUID: c.ID, Valid: true},
		Approved:    approvedOnly(),
		OldestFirst: true,
	})
	if err != nil {
		return err
	}
	for i := range replies {
		if err := s.loadReplies(ctx, &replies[i], depth+1); err != nil {
			return err
		}
	}
	c.Replies = replies
	return nil
}

func (s *CommentService) setApproved(ctx context.Context, id uuid.UUID, approved bool) (*models.Comment, error) {
	c, err := s.comments.GetCommentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.IsApproved = approved
	if err := s.comments.UpdateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CommentService) Approve(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	return s.setApproved(ctx, id, true)
}

// Reject скрывает комментарий, не удаляя его
func (s *CommentService) Reject(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	return s.setApproved(ctx, id, false)
}

// Pending возвращает комментарии, ожидающие модерации
func (s *CommentService) Pending(ctx context.Context, page int) ([]models.Comment, int, error) {
	if page < 1 {
		page = 1
	}
	pending := false
	return s.comments.ListComments(ctx, models.CommentFilter{
		Approved: &pending,
		Limit:    PendingPerPage,
		Offset:   (page - 1) * PendingPerPage,
	})
}

// Count возвращает число одобренных комментариев поста
func (s *CommentService) Count(ctx context.Context, postID uuid.UUID) (int, error) {
	_, total, err := s.comments.ListComments(ctx, models.CommentFilter{
		PostID:   uuid.NullUUID{UUID: postID, Valid: true},
		Approved: approvedOnly(),
		Limit:    1,
	})
	return total, err
}
