package things

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
	"github.com/erlendps/thingbooker/pkg/pgutils"
)

var errDuplicateName = apperror.ErrConflict.WithMessage("You already have a thing with this name")

// Repository is the Postgres implementation of Store.
type Repository struct {
	tx  *database.TxRunner
	log *slog.Logger
}

// NewRepository creates a new things repository
func NewRepository(tx *database.TxRunner, log *slog.Logger) *Repository {
	return &Repository{
		tx:  tx,
		log: log.With(logger.Scope("things.repo")),
	}
}

func (r *Repository) wrap(msg string, err error, attrs ...any) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	if pgutils.IsUniqueViolation(err) {
		return errDuplicateName.WithInternal(err)
	}
	r.log.Error(msg, append([]any{logger.Error(err)}, attrs...)...)
	return apperror.ErrDatabase.WithInternal(err)
}

// Create implements Store.
func (r *Repository) Create(ctx context.Context, thing *Thing, rules []Rule) error {
	err := r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(thing).Exec(ctx); err != nil {
			return err
		}
		if _, err := memberships.Insert(ctx, tx, thing.Ref(), thing.OwnerID); err != nil {
			return err
		}
		if len(rules) > 0 {
			if _, err := tx.NewInsert().Model(&rules).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.wrap("failed to create thing", err, slog.String("owner_id", thing.OwnerID))
	}
	return nil
}

// Get implements Store.
func (r *Repository) Get(ctx context.Context, id string) (*Thing, error) {
	var thing Thing
	err := r.tx.DB().NewSelect().Model(&thing).Where("t.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("Thing")
		}
		return nil, r.wrap("failed to get thing", err, slog.String("thing_id", id))
	}
	return &thing, nil
}

// ListForUser implements Store.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Thing, error) {
	var things []Thing
	err := r.tx.DB().NewSelect().
		Model(&things).
		Where("t.owner_id = ? OR EXISTS (SELECT 1 FROM tb.memberships m WHERE m.target_type = ? AND m.target_id = t.id AND m.user_id = ?)",
			userID, memberships.TargetThing, userID).
		Order("t.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.wrap("failed to list things", err, slog.String("user_id", userID))
	}
	return things, nil
}

// Update implements Store.
func (r *Repository) Update(ctx context.Context, thing *Thing) error {
	res, err := r.tx.DB().NewUpdate().
		Model(thing).
		Column("name", "description", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return r.wrap("failed to update thing", err, slog.String("thing_id", thing.ID))
	}
	return r.requireRow(res, "Thing", slog.String("thing_id", thing.ID))
}

// Delete implements Store. Bookings and rules go with the row through
// ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := memberships.DeleteTarget(ctx, tx, memberships.ThingRef(id)); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*Thing)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NewNotFound("Thing")
		}
		return nil
	})
	if err != nil {
		return r.wrap("failed to delete thing", err, slog.String("thing_id", id))
	}
	return nil
}

// SetPicture implements Store.
func (r *Repository) SetPicture(ctx context.Context, id string, key *string) error {
	_, err := r.tx.DB().NewUpdate().
		Model((*Thing)(nil)).
		Set("picture_key = ?", key).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return r.wrap("failed to set picture", err, slog.String("thing_id", id))
	}
	return nil
}

// AddRule implements Store. The rule is placed after the existing ones.
func (r *Repository) AddRule(ctx context.Context, rule *Rule) error {
	err := r.tx.DB().NewInsert().
		Model(rule).
		Value("position", "(SELECT COALESCE(MAX(position) + 1, 0) FROM tb.thing_rules WHERE thing_id = ?)", rule.ThingID).
		Returning("position").
		Scan(ctx)
	if err != nil {
		return r.wrap("failed to add rule", err, slog.String("thing_id", rule.ThingID))
	}
	return nil
}

// GetRule implements Store.
func (r *Repository) GetRule(ctx context.Context, thingID, ruleID string) (*Rule, error) {
	rule := new(Rule)
	err := r.tx.DB().NewSelect().
		Model(rule).
		Where("r.id = ?", ruleID).
		Where("r.thing_id = ?", thingID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("Rule")
	}
	if err != nil {
		return nil, r.wrap("failed to get rule", err, slog.String("rule_id", ruleID))
	}
	return rule, nil
}

// UpdateRule implements Store.
func (r *Repository) UpdateRule(ctx context.Context, rule *Rule) error {
	res, err := r.tx.DB().NewUpdate().
		Model(rule).
		Column("short", "description").
		Where("id = ?", rule.ID).
		Where("thing_id = ?", rule.ThingID).
		Exec(ctx)
	if err != nil {
		return r.wrap("failed to update rule", err, slog.String("rule_id", rule.ID))
	}
	return r.requireRow(res, "Rule", slog.String("rule_id", rule.ID))
}

// DeleteRule implements Store. Remaining positions keep their gaps; rules
// are listed by position so order is unaffected.
func (r *Repository) DeleteRule(ctx context.Context, thingID, ruleID string) error {
	res, err := r.tx.DB().NewDelete().
		Model((*Rule)(nil)).
		Where("id = ?", ruleID).
		Where("thing_id = ?", thingID).
		Exec(ctx)
	if err != nil {
		return r.wrap("failed to delete rule", err, slog.String("rule_id", ruleID))
	}
	return r.requireRow(res, "Rule", slog.String("rule_id", ruleID))
}

func (r *Repository) requireRow(res sql.Result, resource string, attrs ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return r.wrap("failed to read affected rows", err, attrs...)
	}
	if n == 0 {
		return apperror.NewNotFound(resource)
	}
	return nil
}

// ListRules implements Store.
func (r *Repository) ListRules(ctx context.Context, thingID string) ([]Rule, error) {
	var rules []Rule
	err := r.tx.DB().NewSelect().
		Model(&rules).
		Where("r.thing_id = ?", thingID).
		Order("r.position ASC", "r.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.wrap("failed to list rules", err, slog.String("thing_id", thingID))
	}
	return rules, nil
}
