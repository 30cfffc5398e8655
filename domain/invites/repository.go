package invites

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/internal/database"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Repository is the Postgres implementation of Store.
type Repository struct {
	tx  *database.TxRunner
	log *slog.Logger
}

// NewRepository creates a new invite token repository
func NewRepository(tx *database.TxRunner, log *slog.Logger) *Repository {
	return &Repository{
		tx:  tx,
		log: log.With(logger.Scope("invites.repo")),
	}
}

// WithInviteLock implements Store using a transaction-scoped advisory lock.
func (r *Repository) WithInviteLock(ctx context.Context, ref memberships.Ref, userID string, fn func(ctx context.Context, tx Tx) error) error {
	return r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := database.LockKey(ctx, tx, "invite|"+ref.Key()+"|"+userID); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return fn(ctx, &txQueries{db: tx})
	})
}

// WithinTx implements Store.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txQueries{db: tx})
	})
}

// FindByHash implements Store.
func (r *Repository) FindByHash(ctx context.Context, kind memberships.TargetType, userID, hash string) (*InviteToken, error) {
	var tok InviteToken
	err := r.tx.DB().NewSelect().
		Model(&tok).
		Where("it.token_hash = ?", hash).
		Where("it.user_id = ?", userID).
		Where("it.target_type = ?", kind).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to look up invite token", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &tok, nil
}

// List implements Store.
func (r *Repository) List(ctx context.Context, ref memberships.Ref) ([]InviteToken, error) {
	var tokens []InviteToken
	err := r.tx.DB().NewSelect().
		Model(&tokens).
		Where("it.target_type = ?", ref.Type).
		Where("it.target_id = ?", ref.ID).
		Order("it.created_at DESC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list invite tokens", logger.Error(err), slog.String("target", ref.Key()))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tokens, nil
}

type txQueries struct {
	db bun.IDB
}

func (q *txQueries) FindActive(ctx context.Context, ref memberships.Ref, userID string, now time.Time) (*InviteToken, error) {
	var tok InviteToken
	err := q.db.NewSelect().
		Model(&tok).
		Where("it.target_type = ?", ref.Type).
		Where("it.target_id = ?", ref.ID).
		Where("it.user_id = ?", userID).
		Where("it.used_at IS NULL").
		Where("it.expires_at >= ?", now).
		Order("it.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &tok, nil
}

func (q *txQueries) Insert(ctx context.Context, tok *InviteToken) error {
	if _, err := q.db.NewInsert().Model(tok).Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (q *txQueries) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := q.db.NewUpdate().
		Model((*InviteToken)(nil)).
		Set("used_at = ?", now).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Where("expires_at >= ?", now).
		Exec(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return n == 1, nil
}

func (q *txQueries) AddMember(ctx context.Context, ref memberships.Ref, userID string) error {
	if _, err := memberships.Insert(ctx, q.db, ref, userID); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
