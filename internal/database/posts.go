package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"jakob-blog/internal/models"
)

const postColumns = `id, author_id, title, slug, content_md, content_html, content_blocks,
	excerpt, visibility, status, view_count, published_at, is_pinned, pinned_at,
	telegram_message_id, cover_image_id, created_at, updated_at`

// Закреплённые посты первыми, затем по дате публикации
const postOrder = ` ORDER BY is_pinned DESC, pinned_at DESC, COALESCE(published_at, created_at) DESC`

// PostRepository хранит посты
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		p           models.Post
		blocks      []byte
		publishedAt sql.NullTime
		pinnedAt    sql.NullTime
		tgMessageID sql.NullInt32
	)
	if err := row.Scan(
		&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.ContentMD, &p.ContentHTML, &blocks,
		&p.Excerpt, &p.Visibility, &p.Status, &p.ViewCount, &publishedAt, &p.IsPinned, &pinnedAt,
		&tgMessageID, &p.CoverImageID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.ContentBlocks = blocks
	p.PublishedAt = timePtr(publishedAt)
	p.PinnedAt = timePtr(pinnedAt)
	if tgMessageID.Valid {
		id := int(tgMessageID.Int32)
		p.TelegramMessageID = &id
	}
	return &p, nil
}

func postArgs(p *models.Post) []any {
	var blocks any
	if len(p.ContentBlocks) > 0 {
		blocks = string(p.ContentBlocks)
	}
	var tgMessageID sql.NullInt32
	if p.TelegramMessageID != nil {
		tgMessageID = sql.NullInt32{Int32: int32(*p.TelegramMessageID), Valid: true}
	}
	return []any{
		p.AuthorID, p.Title, p.Slug, p.ContentMD, p.ContentHTML, blocks,
		p.Excerpt, p.Visibility, p.Status, p.ViewCount, nullTime(p.PublishedAt), p.IsPinned, nullTime(p.PinnedAt),
		tgMessageID, p.CoverImageID,
	}
}

func (r *PostRepository) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (r *PostRepository) CreatePost(ctx context.Context, p *models.Post) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	args := append([]any{p.ID}, postArgs(p)...)
	args = append(args, p.CreatedAt, p.UpdatedAt)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (`+placeholders(18)+`)`, args...)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (r *PostRepository) UpdatePost(ctx context.Context, p *models.Post) error {
	p.UpdatedAt = time.Now().UTC()
	args := append(postArgs(p), p.UpdatedAt, p.ID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE posts SET author_id = ?, title = ?, slug = ?, content_md = ?, content_html = ?,
			content_blocks = ?, excerpt = ?, visibility = ?, status = ?, view_count = ?,
			published_at = ?, is_pinned = ?, pinned_at = ?, telegram_message_id = ?,
			cover_image_id = ?, updated_at = ?
		WHERE id = ?`, args...)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return affected(res)
}

func (r *PostRepository) DeletePost(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return affected(res)
}

func (r *PostRepository) GetPostByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM posts WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "failed to get post %s", id)
	}
	return p, nil
}

func (r *PostRepository) GetPostBySlug(ctx context.Context, slug string) (*models.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM posts WHERE slug = ?", slug))
	if err != nil {
		return nil, notFound(err, "failed to get post by slug %q", slug)
	}
	return p, nil
}

// SlugExists проверяет, занят ли slug
func (r *PostRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM posts WHERE slug = ?)", slug).Scan(&exists)
	return exists, err
}

func visibilityWhere(f models.PostFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Visibilities) > 0 {
		conds = append(conds, "visibility IN ("+placeholders(len(f.Visibilities))+")")
		for _, v := range f.Visibilities {
			args = append(args, v)
		}
	}
	if !f.IncludeDrafts {
		conds = append(conds, "status = ?")
		args = append(args, models.StatusPublished)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListPosts возвращает страницу постов и общее количество подходящих
func (r *PostRepository) ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, int, error) {
	where, args := visibilityWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	posts, err := r.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts"+where+postOrder+" LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// SearchPosts ищет опубликованные посты полнотекстовым индексом по заголовку и тексту
func (r *PostRepository) SearchPosts(ctx context.Context, query string, f models.PostFilter) ([]models.Post, int, error) {
	where, args := visibilityWhere(f)
	match := "MATCH(title, content_md) AGAINST (? IN NATURAL LANGUAGE MODE)"
	if where == "" {
		where = " WHERE " + match
	} else {
		where += " AND " + match
	}
	args = append(args, query)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	posts, err := r.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts"+where+" ORDER BY "+match+" DESC LIMIT ? OFFSET ?",
		append(args, query, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *PostRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "UPDATE posts SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}

func (r *PostRepository) CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM posts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PostStatus]int)
	for rows.Next() {
		var (
			status models.PostStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// TotalViews суммирует просмотры всех постов
func (r *PostRepository) TotalViews(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(view_count), 0) FROM posts").Scan(&n)
	return n, err
}

