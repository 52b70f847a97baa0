package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jakob-blog/internal/models"
)

// AuthRepository хранит одноразовые коды входа и сессии
type AuthRepository struct {
	db *sql.DB
}

func NewAuthRepository(db *sql.DB) *AuthRepository {
	return &AuthRepository{db: db}
}

// InvalidateAuthCodes помечает все неиспользованные коды пользователя использованными
func (r *AuthRepository) InvalidateAuthCodes(ctx context.Context, telegramID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE auth_codes SET used = TRUE WHERE telegram_id = ? AND used = FALSE",
		telegramID)
	if err != nil {
		return fmt.Errorf("failed to invalidate auth codes: %w", err)
	}
	return nil
}

func (r *AuthRepository) CreateAuthCode(ctx context.Context, c *models.AuthCode) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_codes (id, code, telegram_id, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.TelegramID, c.ExpiresAt.UTC(), c.Used, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auth code: %w", err)
	}
	return nil
}

// FindAuthCode ищет действующий код. telegramID == 0 означает любой пользователь.
func (r *AuthRepository) FindAuthCode(ctx context.Context, code string, telegramID int64, now time.Time) (*models.AuthCode, error) {
	query := `SELECT id, code, telegram_id, expires_at, used, created_at
		FROM auth_codes WHERE code = ? AND used = FALSE AND expires_at > ?`
	args := []any{code, now.UTC()}
	if telegramID != 0 {
		query += " AND telegram_id = ?"
		args = append(args, telegramID)
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	var c models.AuthCode
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.Code, &c.TelegramID, &c.ExpiresAt, &c.Used, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "failed to find auth code")
	}
	return &c, nil
}

// MarkAuthCodeUsed гасит код. Если код уже погашен, возвращается ErrNotFound.
func (r *AuthRepository) MarkAuthCodeUsed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE auth_codes SET used = TRUE WHERE id = ? AND used = FALSE", id)
	if err != nil {
		return fmt.Errorf("failed to mark auth code used: %w", err)
	}
	return affected(res)
}

func (r *AuthRepository) CreateSession(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt.UTC(), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *AuthRepository) GetSessionByHash(ctx context.Context, hash string, now time.Time) (*models.Session, error) {
	var s models.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = ? AND expires_at > ?`,
		hash, now.UTC(),
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, "failed to get session")
	}
	return &s, nil
}

func (r *AuthRepository) DeleteSessionByHash(ctx context.Context, hash string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", hash)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return affected(res)
}

// PurgeExpired удаляет просроченные коды и сессии, возвращая число удалённых строк
func (r *AuthRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		"DELETE FROM auth_codes WHERE expires_at <= ? OR used = TRUE",
		"DELETE FROM sessions WHERE expires_at <= ?",
	} {
		res, err := r.db.ExecContext(ctx, query, now.UTC())
		if err != nil {
			return total, fmt.Errorf("failed to purge expired rows: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
