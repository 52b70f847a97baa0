package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewMigrator(db *sql.DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Run применяет все ещё не применённые миграции по порядку
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to init migrations table: %w", err)
	}

	// Получаем список примененных миграций
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, migration := range pending(migrations, applied) {
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	return nil
}

// Pending возвращает имена миграций, которые ещё не применены
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	if err := m.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to init migrations table: %w", err)
	}
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, migration := range pending(migrations, applied) {
		names = append(names, migration.Name)
	}
	return names, nil
}

func pending(all []Migration, applied map[string]struct{}) []Migration {
	var out []Migration
	for _, migration := range all {
		if _, ok := applied[migration.Name]; !ok {
			out = append(out, migration)
		}
	}
	return out
}

// В MySQL DDL фиксируется неявно, поэтому транзакция защищает только запись в migrations
func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	m.logger.Info("applying migration", zap.String("name", migration.Name))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, cmd := range migration.Commands {
		if _, err := tx.ExecContext(ctx, cmd); err != nil {
			return fmt.Errorf("failed to execute command:\n%s\nError: %w", cmd, err)
		}
	}

	// Фиксируем миграцию
	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO migrations (name) VALUES (?)",
		migration.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	return err
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT name FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = struct{}{}
	}

	return applied, rows.Err()
}
