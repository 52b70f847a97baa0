package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AccessLevel: порядковый уровень доступа пользователя
type AccessLevel int

const (
	AccessPublic AccessLevel = iota
	AccessRegistered
	AccessPremium1
	AccessPremium2
)

var accessLevelNames = map[AccessLevel]string{
	AccessPublic:     "public",
	AccessRegistered: "registered",
	AccessPremium1:   "premium_1",
	AccessPremium2:   "premium_2",
}

// AccessLevels перечисляет уровни по возрастанию
func AccessLevels() []AccessLevel {
	return []AccessLevel{AccessPublic, AccessRegistered, AccessPremium1, AccessPremium2}
}

func (l AccessLevel) String() string {
	if name, ok := accessLevelNames[l]; ok {
		return name
	}
	return "unknown"
}

func (l AccessLevel) Valid() bool {
	return l >= AccessPublic && l <= AccessPremium2
}

// PostVisibility: минимальный уровень доступа, нужный для просмотра поста
type PostVisibility string

const (
	VisibilityPublic     PostVisibility = "public"
	VisibilityRegistered PostVisibility = "registered"
	VisibilityPremium1   PostVisibility = "premium_1"
	VisibilityPremium2   PostVisibility = "premium_2"
)

var visibilityLevels = map[PostVisibility]AccessLevel{
	VisibilityPublic:     AccessPublic,
	VisibilityRegistered: AccessRegistered,
	VisibilityPremium1:   AccessPremium1,
	VisibilityPremium2:   AccessPremium2,
}

// ParseVisibility проверяет строковое значение видимости
func ParseVisibility(s string) (PostVisibility, bool) {
	v := PostVisibility(s)
	_, ok := visibilityLevels[v]
	return v, ok
}

// RequiredLevel возвращает уровень доступа, необходимый для просмотра
func (v PostVisibility) RequiredLevel() AccessLevel {
	if level, ok := visibilityLevels[v]; ok {
		return level
	}
	return AccessPublic
}

// AllowedVisibilities возвращает все видимости, доступные уровню level
func AllowedVisibilities(level AccessLevel) []PostVisibility {
	all := []PostVisibility{VisibilityPublic, VisibilityRegistered, VisibilityPremium1, VisibilityPremium2}
	var allowed []PostVisibility
	for _, v := range all {
		if v.RequiredLevel() <= level {
			allowed = append(allowed, v)
		}
	}
	if len(allowed) == 0 {
		allowed = []PostVisibility{VisibilityPublic}
	}
	return allowed
}

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusArchived  PostStatus = "archived"
)

func ParseStatus(s string) (PostStatus, bool) {
	switch PostStatus(s) {
	case StatusDraft, StatusPublished, StatusArchived:
		return PostStatus(s), true
	}
	return "", false
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// Dir: подкаталог хранилища для типа медиа (images, audios, videos)
func (t MediaType) Dir() string {
	return string(t) + "s"
}

type User struct {
	ID          uuid.UUID
	TelegramID  int64
	Username    string
	DisplayName string
	AccessLevel AccessLevel
	IsAdmin     bool
	IsActive    bool
	LastLogin   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveLevel учитывает, что администраторы видят весь контент
func (u *User) EffectiveLevel() AccessLevel {
	if u == nil {
		return AccessPublic
	}
	if u.IsAdmin {
		return AccessPremium2
	}
	return u.AccessLevel
}

type AuthCode struct {
	ID         uuid.UUID
	Code       string
	TelegramID int64
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Post struct {
	ID                uuid.UUID
	AuthorID          uuid.NullUUID
	Title             string
	Slug              string
	ContentMD         string
	ContentHTML       string
	ContentBlocks     json.RawMessage
	Excerpt           string
	Visibility        PostVisibility
	Status            PostStatus
	ViewCount         int
	PublishedAt       *time.Time
	IsPinned          bool
	PinnedAt          *time.Time
	TelegramMessageID *int
	CoverImageID      uuid.NullUUID
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Заполняются сервисом при необходимости
	Media      []Media
	CoverImage *Media
}

// FeaturedImage возвращает URL обложки или первой картинки поста
func (p *Post) FeaturedImage() string {
	if p.CoverImage != nil {
		return p.CoverImage.URL()
	}
	for _, m := range p.Media {
		if m.MediaType == MediaImage {
			return m.URL()
		}
	}
	return ""
}

func (p *Post) IsPublished() bool {
	return p.Status == StatusPublished
}

type Media struct {
	ID             uuid.UUID
	PostID         uuid.NullUUID
	UploaderID     uuid.NullUUID
	MediaType      MediaType
	Filename       string
	OriginalName   string
	FilePath       string
	FileSize       int64
	MimeType       string
	SortOrder      int
	TelegramFileID string
	CreatedAt      time.Time
}

// URL: публичный адрес файла
func (m Media) URL() string {
	return "/uploads/" + m.FilePath
}

type Comment struct {
	ID         uuid.UUID
	PostID     uuid.UUID
	AuthorID   uuid.UUID
	ParentID   uuid.NullUUID
	Content    string
	IsApproved bool
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Author  *User
	Replies []Comment
}

type SiteSetting struct {
	Key   string
	Value string
}
