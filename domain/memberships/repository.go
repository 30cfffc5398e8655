package memberships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

var targetTables = map[TargetType]string{
	TargetGroup: "tb.groups",
	TargetThing: "tb.things",
}

// Repository stores member sets of groups and things.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new membership repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("memberships.repo")),
	}
}

// Get resolves the owner, name and members of ref.
func (r *Repository) Get(ctx context.Context, ref Ref) (*Set, error) {
	return Load(ctx, r.db, ref)
}

// Add inserts memberships for userIDs, ignoring existing ones, and returns
// the IDs that were not members before.
func (r *Repository) Add(ctx context.Context, ref Ref, userIDs ...string) ([]string, error) {
	added, err := Insert(ctx, r.db, ref, userIDs...)
	if err != nil {
		r.log.Error("failed to add members", logger.Error(err), slog.String("target", ref.Key()))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return added, nil
}

// Remove deletes the membership of userID and reports whether one existed.
func (r *Repository) Remove(ctx context.Context, ref Ref, userID string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*Membership)(nil)).
		Where("target_type = ?", ref.Type).
		Where("target_id = ?", ref.ID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to remove member", logger.Error(err), slog.String("target", ref.Key()))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		r.log.Error("failed to remove member", logger.Error(err), slog.String("target", ref.Key()))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return n > 0, nil
}

// Load reads the member set of ref using db, which may be a transaction.
func Load(ctx context.Context, db bun.IDB, ref Ref) (*Set, error) {
	table, ok := targetTables[ref.Type]
	if !ok {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unknown target type %q", ref.Type))
	}

	set := &Set{Ref: ref}
	err := db.NewSelect().
		TableExpr(table).
		Column("name", "owner_id").
		Where("id = ?", ref.ID).
		Scan(ctx, &set.Name, &set.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound(string(ref.Type))
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	err = db.NewSelect().
		Model((*Membership)(nil)).
		Column("user_id").
		Where("target_type = ?", ref.Type).
		Where("target_id = ?", ref.ID).
		Order("created_at ASC").
		Scan(ctx, &set.UserIDs)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return set, nil
}

// Insert adds memberships with ON CONFLICT DO NOTHING and returns the user
// IDs that were actually inserted.
func Insert(ctx context.Context, db bun.IDB, ref Ref, userIDs ...string) ([]string, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows := make([]Membership, len(userIDs))
	for i, id := range userIDs {
		rows[i] = Membership{TargetType: ref.Type, TargetID: ref.ID, UserID: id}
	}

	var added []string
	err := db.NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Returning("user_id").
		Scan(ctx, &added)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return added, nil
}

// DeleteTarget removes every membership and invite token of ref. Callers run
// it in the same transaction that deletes the target row.
func DeleteTarget(ctx context.Context, db bun.IDB, ref Ref) error {
	if _, err := db.NewDelete().
		Model((*Membership)(nil)).
		Where("target_type = ?", ref.Type).
		Where("target_id = ?", ref.ID).
		Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewDelete().
		TableExpr("tb.invite_tokens").
		Where("target_type = ?", ref.Type).
		Where("target_id = ?", ref.ID).
		Exec(ctx)
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
