package groups

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

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

// NewRepository creates a new groups repository
func NewRepository(tx *database.TxRunner, log *slog.Logger) *Repository {
	return &Repository{
		tx:  tx,
		log: log.With(logger.Scope("groups.repo")),
	}
}

// Create implements Store.
func (r *Repository) Create(ctx context.Context, group *Group) error {
	err := r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(group).Exec(ctx); err != nil {
			return err
		}
		_, err := memberships.Insert(ctx, tx, group.Ref(), group.OwnerID)
		return err
	})
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return err
		}
		r.log.Error("failed to create group", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Get implements Store.
func (r *Repository) Get(ctx context.Context, id string) (*Group, error) {
	var group Group
	err := r.tx.DB().NewSelect().Model(&group).Where("g.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("Group")
		}
		r.log.Error("failed to get group", logger.Error(err), slog.String("group_id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &group, nil
}

// ListForUser implements Store.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Group, error) {
	var groups []Group
	err := r.tx.DB().NewSelect().
		Model(&groups).
		Where("g.owner_id = ? OR EXISTS (SELECT 1 FROM tb.memberships m WHERE m.target_type = ? AND m.target_id = g.id AND m.user_id = ?)",
			userID, memberships.TargetGroup, userID).
		Order("g.name ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list groups", logger.Error(err), slog.String("user_id", userID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return groups, nil
}

// Update implements Store.
func (r *Repository) Update(ctx context.Context, group *Group) error {
	_, err := r.tx.DB().NewUpdate().
		Model(group).
		Column("name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update group", logger.Error(err), slog.String("group_id", group.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Delete implements Store.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := memberships.DeleteTarget(ctx, tx, memberships.GroupRef(id)); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*Group)(nil)).Where("id = ?", id).Exec(ctx)
		return err
	})
	if err != nil {
		r.log.Error("failed to delete group", logger.Error(err), slog.String("group_id", id))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
