package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/database"
	"jakob-blog/internal/models"
	"jakob-blog/internal/render"
	"jakob-blog/pkg/utilities"
)

const (
	MaxTitleLength   = 200
	MaxContentLength = 100000
	ExcerptLength    = 200
	PostsPerPage     = 10

	maxExcerptLength = 500
	maxSlugLength    = 250
	slugAttempts     = 3
)

type PostService struct {
	posts  PostStore
	media  MediaStore
	logger *zap.Logger

	now func() time.Time
}

func NewPostService(posts PostStore, media MediaStore, logger *zap.Logger) *PostService {
	return &PostService{
		posts:  posts,
		media:  media,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PostInput: данные нового поста
type PostInput struct {
	AuthorID      uuid.NullUUID
	Title         string
	ContentMD     string
	ContentBlocks json.RawMessage
	Excerpt       string
	Visibility    models.PostVisibility
	Status        models.PostStatus
	CoverImageID  uuid.NullUUID
}

// PostUpdate: частичное обновление, nil означает «не менять»
type PostUpdate struct {
	Title         *string
	ContentMD     *string
	ContentBlocks json.RawMessage
	Excerpt       *string
	Visibility    *models.PostVisibility
	Status        *models.PostStatus
	CoverImageID  *uuid.NullUUID
}

// PostStats: счётчики для дашборда
type PostStats struct {
	Total     int
	Published int
	Drafts    int
	Archived  int
	Views     int
	Media     int
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalidf("Заголовок не может быть пустым")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", invalidf("Заголовок длиннее %d символов", MaxTitleLength)
	}
	return title, nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > MaxContentLength {
		return invalidf("Текст длиннее %d символов", MaxContentLength)
	}
	return nil
}

// renderContent собирает HTML: блоки редактора важнее Markdown.
// Для постов из блоков текст без разметки идёт в content_md ради поиска.
func renderContent(md string, blocks json.RawMessage) (string, string, json.RawMessage, error) {
	if len(blocks) > 0 {
		if !render.ValidBlocks(blocks) {
			return "", "", nil, invalidf("Некорректный формат содержимого")
		}
		html := render.Blocks(blocks)
		if strings.TrimSpace(md) == "" {
			md = render.StripTags(html)
		}
		return md, html, blocks, nil
	}
	html, err := render.Markdown(md)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return md, html, nil, nil
}

func excerptFor(given, html string) string {
	given = strings.TrimSpace(given)
	if given != "" {
		return utilities.Truncate(given, maxExcerptLength)
	}
	return render.Excerpt(html, ExcerptLength)
}

// uniqueSlug подбирает свободный slug: base, base-1, base-2…
func (s *PostService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := render.Slugify(title)
	if base == "" {
		base = "post"
	}
	if r := []rune(base); len(r) > maxSlugLength {
		base = strings.TrimRight(string(r[:maxSlugLength]), "-")
	}

	slug := base
	for i := 1; ; i++ {
		exists, err := s.posts.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// Create сохраняет новый пост
func (s *PostService) Create(ctx context.Context, in PostInput) (*models.Post, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateContent(in.ContentMD); err != nil {
		return nil, err
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if _, ok := models.ParseVisibility(string(in.Visibility)); !ok {
		return nil, invalidf("Неизвестная видимость: %s", in.Visibility)
	}
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if _, ok := models.ParseStatus(string(in.Status)); !ok {
		return nil, invalidf("Неизвестный статус: %s", in.Status)
	}

	md, html, blocks, err := renderContent(in.ContentMD, in.ContentBlocks)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		AuthorID:      in.AuthorID,
		Title:         title,
		ContentMD:     md,
		ContentHTML:   html,
		ContentBlocks: blocks,
		Excerpt:       excerptFor(in.Excerpt, html),
		Visibility:    in.Visibility,
		Status:        in.Status,
		CoverImageID:  in.CoverImageID,
	}
	if post.IsPublished() {
		now := s.now()
		post.PublishedAt = &now
	}

	// Slug может занять параллельный запрос между проверкой и вставкой
	for attempt := 0; attempt < slugAttempts; attempt++ {
		post.Slug, err = s.uniqueSlug(ctx, title)
		if err != nil {
			return nil, err
		}
		err = s.posts.CreatePost(ctx, post)
		if !errors.Is(err, database.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("post created",
		zap.String("post_id", post.ID.String()),
		zap.String("slug", post.Slug),
		zap.String("status", string(post.Status)))
	return post, nil
}

// Update применяет изменения. Второе значение true, если пост опубликован впервые.
func (s *PostService) Update(ctx context.Context, id uuid.UUID, upd PostUpdate) (*models.Post, bool, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if upd.Title != nil {
		title, err := validateTitle(*upd.Title)
		if err != nil {
			return nil, false, err
		}
		post.Title = title
	}

	contentChanged := false
	switch {
	case len(upd.ContentBlocks) > 0:
		md := ""
		if upd.ContentMD != nil {
			md = *upd.ContentMD
		}
		if err := validateContent(md); err != nil {
			return nil, false, err
		}
		post.ContentMD, post.ContentHTML, post.ContentBlocks, err = renderContent(md, upd.ContentBlocks)
		if err != nil {
			return nil, false, err
		}
		contentChanged = true
	case upd.ContentMD != nil && *upd.ContentMD != "":
		if err := validateContent(*upd.ContentMD); err != nil {
			return nil, false, err
		}
		post.ContentMD, post.ContentHTML, post.ContentBlocks, err = renderContent(*upd.ContentMD, nil)
		if err != nil {
			return nil, false, err
		}
		contentChanged = true
	}

	if upd.Visibility != nil {
		if _, ok := models.ParseVisibility(string(*upd.Visibility)); !ok {
			return nil, false, invalidf("Неизвестная видимость: %s", *upd.Visibility)
		}
		post.Visibility = *upd.Visibility
	}

	firstPublish := false
	if upd.Status != nil {
		if _, ok := models.ParseStatus(string(*upd.Status)); !ok {
			return nil, false, invalidf("Неизвестный статус: %s", *upd.Status)
		}
		post.Status = *upd.Status
		if post.IsPublished() && post.PublishedAt == nil {
			now := s.now()
			post.PublishedAt = &now
			firstPublish = true
		}
	}

	switch {
	case upd.Excerpt != nil && strings.TrimSpace(*upd.Excerpt) != "":
		post.Excerpt = excerptFor(*upd.Excerpt, post.ContentHTML)
	case contentChanged && post.Excerpt == "":
		post.Excerpt = excerptFor("", post.ContentHTML)
	}

	if upd.CoverImageID != nil {
		post.CoverImageID = *upd.CoverImageID
	}

	if err := s.posts.UpdatePost(ctx, post); err != nil {
		return nil, false, err
	}
	s.logger.Info("post updated", zap.String("post_id", id.String()), zap.Bool("first_publish", firstPublish))
	return post, firstPublish, nil
}

// Publish публикует черновик
func (s *PostService) Publish(ctx context.Context, id uuid.UUID) (*models.Post, bool, error) {
	status := models.StatusPublished
	return s.Update(ctx, id, PostUpdate{Status: &status})
}

func (s *PostService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.posts.DeletePost(ctx, id); err != nil {
		return err
	}
	s.logger.Info("post deleted", zap.String("post_id", id.String()))
	return nil
}

// TogglePin закрепляет пост или снимает закрепление
func (s *PostService) TogglePin(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.IsPinned {
		post.IsPinned = false
		post.PinnedAt = nil
	} else {
		now := s.now()
		post.IsPinned = true
		post.PinnedAt = &now
	}
	if err := s.posts.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return s.posts.IncrementViewCount(ctx, id)
}

// loadMedia подгружает вложения и обложку
func (s *PostService) loadMedia(ctx context.Context, post *models.Post) error {
	media, err := s.media.ListMediaByPost(ctx, post.ID)
	if err != nil {
		return err
	}
	post.Media = media
	post.CoverImage = nil
	if post.CoverImageID.Valid {
		cover, err := s.media.GetMediaByID(ctx, post.CoverImageID.UUID)
		switch {
		case err == nil:
			post.CoverImage = cover
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	return nil
}

func (s *PostService) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadMedia(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// GetBySlug возвращает опубликованный пост, если он виден уровню level
func (s *PostService) GetBySlug(ctx context.Context, slug string, level models.AccessLevel) (*models.Post, error) {
	post, err := s.posts.GetPostBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !post.IsPublished() || post.Visibility.RequiredLevel() > level {
		return nil, ErrNotFound
	}
	if err := s.loadMedia(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func pageOffset(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = PostsPerPage
	}
	return perPage, (page - 1) * perPage
}

func (s *PostService) withMedia(ctx context.Context, posts []models.Post) ([]models.Post, error) {
	for i := range posts {
		if err := s.loadMedia(ctx, &posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// List возвращает страницу постов, видимых уровню level
func (s *PostService) List(ctx context.Context, level models.AccessLevel, page, perPage int, includeDrafts bool) ([]models.Post, int, error) {
	limit, offset := pageOffset(page, perPage)
	posts, total, err := s.posts.ListPosts(ctx, models.PostFilter{
		Visibilities:  models.AllowedVisibilities(level),
		IncludeDrafts: includeDrafts,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, 0, err
	}
	posts, err = s.withMedia(ctx, posts)
	return posts, total, err
}

// Search ищет по заголовку и тексту среди опубликованных постов
func (s *PostService) Search(ctx context.Context, query string, level models.AccessLevel, page, perPage int) ([]models.Post, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, nil
	}
	limit, offset := pageOffset(page, perPage)
	posts, total, err := s.posts.SearchPosts(ctx, query, models.PostFilter{
		Visibilities: models.AllowedVisibilities(level),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, 0, err
	}
	posts, err = s.withMedia(ctx, posts)
	return posts, total, err
}

func (s *PostService) Stats(ctx context.Context) (*PostStats, error) {
	byStatus, err := s.posts.CountPostsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.posts.TotalViews(ctx)
	if err != nil {
		return nil, err
	}
	media, err := s.media.CountMedia(ctx)
	if err != nil {
		return nil, err
	}
	st := &PostStats{
		Published: byStatus[models.StatusPublished],
		Drafts:    byStatus[models.StatusDraft],
		Archived:  byStatus[models.StatusArchived],
		Views:     views,
		Media:     media,
	}
	st.Total = st.Published + st.Drafts + st.Archived
	return st, nil
}
