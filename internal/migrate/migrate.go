// Package migrate runs the embedded Goose migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/erlendps/thingbooker/migrations"
)

// Migrator handles database migrations.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}
	return &Migrator{
		db:     db,
		logger: logger.Named("migrator"),
	}, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	m.logger.Info("running database migrations")
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	m.logger.Info("migrations completed successfully")
	return nil
}

// UpTo runs migrations up to a specific version.
func (m *Migrator) UpTo(ctx context.Context, version int64) error {
	m.logger.Info("running database migrations up to version", zap.Int64("version", version))
	if err := goose.UpToContext(ctx, m.db, ".", version); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down(ctx context.Context) error {
	m.logger.Info("rolling back last migration")
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	m.logger.Info("rollback completed successfully")
	return nil
}

// Status prints the current migration status.
func (m *Migrator) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

// Version returns the current database version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
