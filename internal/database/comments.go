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

// Комментарий сразу с автором, чтобы не делать отдельный запрос на каждую строку
const commentSelect = `SELECT c.id, c.post_id, c.author_id, c.parent_id, c.content,
	c.is_approved, c.created_at, c.updated_at,
	u.id, u.telegram_id, u.username, u.display_name, u.access_level,
	u.is_admin, u.is_active, u.last_login, u.created_at, u.updated_at
	FROM comments c JOIN users u ON u.id = c.author_id`

// CommentRepository хранит комментарии
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var (
		c         models.Comment
		u         models.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.PostID, &c.AuthorID, &c.ParentID, &c.Content,
		&c.IsApproved, &c.CreatedAt, &c.UpdatedAt,
		&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &u.AccessLevel,
		&u.IsAdmin, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.LastLogin = timePtr(lastLogin)
	c.Author = &u
	return &c, nil
}

func (r *CommentRepository) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, author_id, parent_id, content, is_approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PostID, c.AuthorID, c.ParentID, c.Content, c.IsApproved, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *CommentRepository) GetCommentByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, commentSelect+" WHERE c.id = ?", id))
	if err != nil {
		return nil, notFound(err, "failed to get comment %s", id)
	}
	return c, nil
}

func (r *CommentRepository) UpdateComment(ctx context.Context, c *models.Comment) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"UPDATE comments SET content = ?, is_approved = ?, updated_at = ? WHERE id = ?",
		c.Content, c.IsApproved, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return affected(res)
}

// DeleteComment удаляет комментарий, ответы удаляются каскадом
func (r *CommentRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return affected(res)
}

func commentWhere(f models.CommentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.PostID.Valid {
		conds = append(conds, "c.post_id = ?")
		args = append(args, f.PostID.UUID)
	}
	if f.ParentID.Valid {
		conds = append(conds, "c.parent_id = ?")
		args = append(args, f.ParentID.UUID)
	} else if f.TopLevelOnly {
		conds = append(conds, "c.parent_id IS NULL")
	}
	if f.Approved != nil {
		conds = append(conds, "c.is_approved = ?")
		args = append(args, *f.Approved)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListComments возвращает комментарии по фильтру и их общее количество
func (r *CommentRepository) ListComments(ctx context.Context, f models.CommentFilter) ([]models.Comment, int, error) {
	where, args := commentWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM comments c"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count comments: %w", err)
	}

	order := " ORDER BY c.created_at DESC"
	if f.OldestFirst {
		order = " ORDER BY c.created_at ASC"
	}
	query := commentSelect + where + order
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	return comments, total, rows.Err()
}
