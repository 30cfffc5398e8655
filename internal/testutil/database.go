// Package testutil provides throwaway Postgres databases for repository
// tests. Tests using it are skipped unless POSTGRES_HOST is set.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/internal/database"
	"github.com/erlendps/thingbooker/internal/migrate"
)

// TestDB holds test database resources
type TestDB struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	DB     *bun.DB
	Name   string
	Log    *slog.Logger

	cleanup func()
}

// Close drops the test database
func (t *TestDB) Close() {
	if t.cleanup != nil {
		t.cleanup()
	}
}

// TxRunner returns a transaction runner over the test database using the
// configured booking retry settings.
func (t *TestDB) TxRunner() *database.TxRunner {
	return database.NewTxRunner(t.DB, t.Config, t.Log)
}

// RequireDB returns a migrated, isolated database for t, dropped when t
// finishes. It skips t when no database is configured.
func RequireDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() || os.Getenv("POSTGRES_HOST") == "" {
		t.Skip("POSTGRES_HOST not set; skipping database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := SetupTestDB(ctx, t.Name())
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_]+`)

// SetupTestDB creates an isolated database named after suffix, runs the
// migrations against it and connects to it.
func SetupTestDB(ctx context.Context, suffix string) (*TestDB, error) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	baseCfg, err := config.NewConfig(log)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	suffix = unsafeName.ReplaceAllString(strings.ToLower(suffix), "_")
	if len(suffix) > 30 {
		suffix = suffix[:30]
	}
	name := fmt.Sprintf("go_test_%s_%d", suffix, time.Now().UnixNano())

	adminPool, err := createPool(ctx, &baseCfg.Database, baseCfg.Database.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to base database: %w", err)
	}
	_, err = adminPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", name))
	adminPool.Close()
	if err != nil {
		return nil, fmt.Errorf("create test database: %w", err)
	}

	testCfg := *baseCfg
	testCfg.Database.Database = name

	pool, err := createPool(ctx, &testCfg.Database, name)
	if err != nil {
		dropTestDB(baseCfg, name)
		return nil, fmt.Errorf("connect to test database: %w", err)
	}

	sqldb := stdlib.OpenDBFromPool(pool)
	m, err := migrate.NewMigrator(sqldb, zap.NewNop())
	if err == nil {
		err = m.Up(ctx)
	}
	if err != nil {
		pool.Close()
		dropTestDB(baseCfg, name)
		return nil, fmt.Errorf("migrate test database: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	return &TestDB{
		Config: &testCfg,
		Pool:   pool,
		DB:     db,
		Name:   name,
		Log:    log,
		cleanup: func() {
			_ = db.Close()
			pool.Close()
			dropTestDB(baseCfg, name)
		},
	}, nil
}

func createPool(ctx context.Context, cfg *config.DatabaseConfig, dbName string) (*pgxpool.Pool, error) {
	c := *cfg
	c.Database = dbName
	poolCfg, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func dropTestDB(baseCfg *config.Config, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := createPool(ctx, &baseCfg.Database, baseCfg.Database.Database)
	if err != nil {
		return
	}
	defer pool.Close()
	_, _ = pool.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", name))
}
