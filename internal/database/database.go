package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/logger"
)

var Module = fx.Module("database",
	fx.Provide(
		NewPgxPool,
		NewBunDB,
		fx.Annotate(
			func(db *bun.DB) bun.IDB { return db },
			fx.As(new(bun.IDB)),
		),
		NewTxRunner,
	),
)

// NewPgxPool creates a new pgx connection pool
func NewPgxPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	log = log.With(logger.Scope("database"))

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database pool created",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("database", cfg.Database.Database),
		slog.Int("max_conns", cfg.Database.MaxOpenConns),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database pool")
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// NewBunDB creates a Bun ORM instance wrapping the pgx pool
func NewBunDB(lc fx.Lifecycle, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) (*bun.DB, error) {
	log = log.With(logger.Scope("bun"))

	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())

	if cfg.Database.QueryDebug {
		db.AddQueryHook(&queryLoggingHook{log: log})
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return db, nil
}

// queryLoggingHook implements bun.QueryHook for query logging
type queryLoggingHook struct {
	log *slog.Logger
}

func (h *queryLoggingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLoggingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.log.Error("query error",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
			logger.Error(event.Err),
		)
		return
	}

	if duration > time.Second {
		h.log.Warn("slow query",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
		)
		return
	}

	h.log.Debug("query",
		slog.String("query", event.Query),
		slog.Duration("duration", duration),
	)
}

// SafeTx wraps a bun.Tx so that Rollback is a no-op after Commit, which lets
// callers always `defer tx.Rollback()`.
type SafeTx struct {
	bun.Tx
	committed bool
}

// BeginSafeTx starts a new transaction and returns a SafeTx wrapper.
func BeginSafeTx(ctx context.Context, db bun.IDB) (*SafeTx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SafeTx{Tx: tx}, nil
}

// Commit commits the transaction and marks it as committed.
func (tx *SafeTx) Commit() error {
	if tx.committed {
		return nil
	}
	err := tx.Tx.Commit()
	if err == nil {
		tx.committed = true
	}
	return err
}

// Rollback rolls back the transaction only if it hasn't been committed.
func (tx *SafeTx) Rollback() error {
	if tx.committed {
		return nil
	}
	return tx.Tx.Rollback()
}

// LockKey takes a transaction-scoped advisory lock on key. The lock is
// released at commit or rollback.
func LockKey(ctx context.Context, tx bun.IDB, key string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?)::bigint)", key)
	return err
}
