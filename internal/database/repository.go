package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
)

var (
	// ErrNotFound возвращается, когда запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrDuplicate: нарушение уникального ключа
	ErrDuplicate = errors.New("duplicate key")
)

// Код ошибки MySQL ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

// Repository объединяет все хранилища блога поверх одного пула соединений
type Repository struct {
	*UserRepository
	*AuthRepository
	*PostRepository
	*MediaRepository
	*CommentRepository
	*SettingsRepository

	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		UserRepository:     NewUserRepository(db),
		AuthRepository:     NewAuthRepository(db),
		PostRepository:     NewPostRepository(db),
		MediaRepository:    NewMediaRepository(db),
		CommentRepository:  NewCommentRepository(db),
		SettingsRepository: NewSettingsRepository(db),
		db:                 db,
	}
}

// Ping проверяет соединение с базой
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Open открывает пул соединений и ждёт, пока база станет доступна
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка соединения с ретраями
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := retry(3, 2*time.Second, func() error {
		return db.PingContext(pingCtx)
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	return db, nil
}

// InitDB открывает базу и применяет миграции
func InitDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Применяем миграции
	migrator := NewMigrator(db, logger)
	if err := migrator.Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	return db, nil
}

func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// placeholders возвращает "?, ?, ?" для n аргументов
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// notFound переводит sql.ErrNoRows в ErrNotFound
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
