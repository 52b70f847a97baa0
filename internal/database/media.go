package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jakob-blog/internal/models"
)

const mediaColumns = `id, post_id, uploader_id, media_type, filename, original_name,
	file_path, file_size, mime_type, sort_order, telegram_file_id, created_at`

// MediaRepository хранит метаданные загруженных файлов
type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

func scanMedia(row rowScanner) (*models.Media, error) {
	var m models.Media
	if err := row.Scan(
		&m.ID, &m.PostID, &m.UploaderID, &m.MediaType, &m.Filename, &m.OriginalName,
		&m.FilePath, &m.FileSize, &m.MimeType, &m.SortOrder, &m.TelegramFileID, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MediaRepository) queryMedia(ctx context.Context, query string, args ...any) ([]models.Media, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	defer rows.Close()

	var list []models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

func (r *MediaRepository) CreateMedia(ctx context.Context, m *models.Media) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media (`+mediaColumns+`)
		VALUES (`+placeholders(12)+`)`,
		m.ID, m.PostID, m.UploaderID, m.MediaType, m.Filename, m.OriginalName,
		m.FilePath, m.FileSize, m.MimeType, m.SortOrder, m.TelegramFileID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create media: %w", err)
	}
	return nil
}

func (r *MediaRepository) GetMediaByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	m, err := scanMedia(r.db.QueryRowContext(ctx,
		"SELECT "+mediaColumns+" FROM media WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "failed to get media %s", id)
	}
	return m, nil
}

// UpdateMedia сохраняет привязку к посту и порядок
func (r *MediaRepository) UpdateMedia(ctx context.Context, m *models.Media) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE media SET post_id = ?, sort_order = ? WHERE id = ?",
		m.PostID, m.SortOrder, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update media: %w", err)
	}
	return affected(res)
}

func (r *MediaRepository) DeleteMedia(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM media WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return affected(res)
}

func (r *MediaRepository) ListMediaByPost(ctx context.Context, postID uuid.UUID) ([]models.Media, error) {
	return r.queryMedia(ctx,
		"SELECT "+mediaColumns+" FROM media WHERE post_id = ? ORDER BY sort_order, created_at",
		postID)
}

func (r *MediaRepository) ListUnattachedMedia(ctx context.Context, uploaderID uuid.UUID) ([]models.Media, error) {
	return r.queryMedia(ctx,
		"SELECT "+mediaColumns+" FROM media WHERE post_id IS NULL AND uploader_id = ? ORDER BY created_at DESC",
		uploaderID)
}

func (r *MediaRepository) CountMedia(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media").Scan(&n)
	return n, err
}
