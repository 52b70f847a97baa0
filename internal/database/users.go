package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jakob-blog/internal/models"
)

const userColumns = `id, telegram_id, username, display_name, access_level,
	is_admin, is_active, last_login, created_at, updated_at`

// UserRepository хранит пользователей
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &u.AccessLevel,
		&u.IsAdmin, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "failed to get user %s", id)
	}
	return u, nil
}

func (r *UserRepository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE telegram_id = ?", telegramID))
	if err != nil {
		return nil, notFound(err, "failed to get user by telegram id %d", telegramID)
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя, проставляя ID и время создания
func (r *UserRepository) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, telegram_id, username, display_name, access_level,
			is_admin, is_active, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TelegramID, u.Username, u.DisplayName, u.AccessLevel,
		u.IsAdmin, u.IsActive, nullTime(u.LastLogin), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET username = ?, display_name = ?, access_level = ?,
			is_admin = ?, is_active = ?, last_login = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.DisplayName, u.AccessLevel,
		u.IsAdmin, u.IsActive, nullTime(u.LastLogin), u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return affected(res)
}

// ListUsers возвращает страницу пользователей и общее количество.
// search ищет по отображаемому имени и username.
func (r *UserRepository) ListUsers(ctx context.Context, search string, limit, offset int) ([]models.User, int, error) {
	where := ""
	var args []any
	if search != "" {
		where = " WHERE display_name LIKE ? OR username LIKE ?"
		like := "%" + search + "%"
		args = append(args, like, like)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	users, err := r.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

func (r *UserRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE is_admin = TRUE").Scan(&n)
	return n, err
}

// CountActiveAdmins считает администраторов, которые ещё могут войти
func (r *UserRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE is_admin = TRUE AND is_active = TRUE").Scan(&n)
	return n, err
}

func (r *UserRepository) CountByAccessLevel(ctx context.Context) (map[models.AccessLevel]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT access_level, COUNT(*) FROM users GROUP BY access_level")
	if err != nil {
		return nil, fmt.Errorf("failed to count users by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AccessLevel]int)
	for rows.Next() {
		var (
			level models.AccessLevel
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

// ListActiveUsers возвращает активных пользователей с уровнем не ниже minLevel.
// Администраторы попадают в выборку всегда.
func (r *UserRepository) ListActiveUsers(ctx context.Context, minLevel models.AccessLevel) ([]models.User, error) {
	return r.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE is_active = TRUE AND (access_level >= ? OR is_admin = TRUE)",
		minLevel)
}

func (r *UserRepository) ListActiveAdmins(ctx context.Context) ([]models.User, error) {
	return r.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE is_active = TRUE AND is_admin = TRUE")
}
