package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
	"github.com/erlendps/thingbooker/pkg/pgutils"
)

// RetryPolicy re-runs an operation that failed with a retryable database
// error, doubling the delay between attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retries are used up. Exhausted retries surface as apperror.ErrTransient.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !pgutils.IsRetryable(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			log.Warn("transaction retries exhausted",
				slog.Int("attempts", attempt+1),
				slog.String("sqlstate", pgutils.Code(err)),
				logger.Error(err),
			)
			return apperror.ErrTransient.WithInternal(err)
		}

		delay := p.BaseDelay << attempt
		log.Debug("retrying transaction",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("sqlstate", pgutils.Code(err)),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TxRunner runs functions inside a transaction, retrying the whole
// transaction on serialization failures, deadlocks and lock timeouts.
type TxRunner struct {
	db     bun.IDB
	policy RetryPolicy
	log    *slog.Logger
}

// NewTxRunner creates a TxRunner using the booking retry settings
func NewTxRunner(db bun.IDB, cfg *config.Config, log *slog.Logger) *TxRunner {
	return &TxRunner{
		db: db,
		policy: RetryPolicy{
			MaxRetries: cfg.Booking.TxMaxRetries,
			BaseDelay:  cfg.Booking.TxRetryBaseDelay,
		},
		log: log.With(logger.Scope("database.tx")),
	}
}

// DB returns the underlying connection for non-transactional reads
func (r *TxRunner) DB() bun.IDB {
	return r.db
}

// Run executes fn in a transaction. fn must be safe to call more than once;
// any state it accumulates should be reset at the top of each call.
func (r *TxRunner) Run(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.policy.Do(ctx, r.log, func(ctx context.Context) error {
		tx, err := BeginSafeTx(ctx, r.db)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(ctx, tx.Tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}
