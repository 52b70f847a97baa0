package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jakob-blog/internal/models"
)

// Хранилища, которые нужны сервисам. Реализуются database.Repository и memdb.Store.

type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, search string, limit, offset int) ([]models.User, int, error)
	CountUsers(ctx context.Context) (int, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	CountByAccessLevel(ctx context.Context) (map[models.AccessLevel]int, error)
	ListActiveUsers(ctx context.Context, minLevel models.AccessLevel) ([]models.User, error)
	ListActiveAdmins(ctx context.Context) ([]models.User, error)
}

type AuthStore interface {
	InvalidateAuthCodes(ctx context.Context, telegramID int64) error
	CreateAuthCode(ctx context.Context, c *models.AuthCode) error
	FindAuthCode(ctx context.Context, code string, telegramID int64, now time.Time) (*models.AuthCode, error)
	MarkAuthCodeUsed(ctx context.Context, id uuid.UUID) error
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionByHash(ctx context.Context, hash string, now time.Time) (*models.Session, error)
	DeleteSessionByHash(ctx context.Context, hash string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, p *models.Post) error
	UpdatePost(ctx context.Context, p *models.Post) error
	DeletePost(ctx context.Context, id uuid.UUID) error
	GetPostByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*models.Post, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, int, error)
	SearchPosts(ctx context.Context, query string, f models.PostFilter) ([]models.Post, int, error)
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
	CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error)
	TotalViews(ctx context.Context) (int, error)
}

type MediaStore interface {
	CreateMedia(ctx context.Context, m *models.Media) error
	GetMediaByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	UpdateMedia(ctx context.Context, m *models.Media) error
	DeleteMedia(ctx context.Context, id uuid.UUID) error
	ListMediaByPost(ctx context.Context, postID uuid.UUID) ([]models.Media, error)
	ListUnattachedMedia(ctx context.Context, uploaderID uuid.UUID) ([]models.Media, error)
	CountMedia(ctx context.Context) (int, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, c *models.Comment) error
	GetCommentByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	UpdateComment(ctx context.Context, c *models.Comment) error
	DeleteComment(ctx context.Context, id uuid.UUID) error
	ListComments(ctx context.Context, f models.CommentFilter) ([]models.Comment, int, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Store: всё хранилище целиком
type Store interface {
	UserStore
	AuthStore
	PostStore
	MediaStore
	CommentStore
	SettingsStore
}
