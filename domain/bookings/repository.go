package bookings

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/internal/database"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/interval"
	"github.com/erlendps/thingbooker/pkg/logger"
	"github.com/erlendps/thingbooker/pkg/pgutils"
)

// Repository is the Postgres implementation of Store.
type Repository struct {
	tx  *database.TxRunner
	log *slog.Logger
}

// NewRepository creates a new bookings repository
func NewRepository(tx *database.TxRunner, log *slog.Logger) *Repository {
	return &Repository{
		tx:  tx,
		log: log.With(logger.Scope("bookings.repo")),
	}
}

// WithThingLock implements Store with SELECT ... FOR UPDATE or FOR SHARE on
// the thing row.
func (r *Repository) WithThingLock(ctx context.Context, thingID string, exclusive bool, fn func(ctx context.Context, tx Tx) error) error {
	mode := "SHARE"
	if exclusive {
		mode = "UPDATE"
	}
	return r.tx.Run(ctx, func(ctx context.Context, tx bun.Tx) error {
		var id string
		err := tx.NewSelect().
			TableExpr("tb.things").
			Column("id").
			Where("id = ?", thingID).
			For(mode).
			Scan(ctx, &id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NewNotFound("Thing")
			}
			return r.dbError("failed to lock thing", err)
		}
		return fn(ctx, &txQueries{db: tx, repo: r})
	})
}

// dbError keeps retryable errors intact so the transaction runner can
// retry them.
func (r *Repository) dbError(msg string, err error) error {
	if pgutils.IsRetryable(err) {
		return err
	}
	if pgutils.IsCheckViolation(err) {
		return apperror.NewBadRequest("booking violates a constraint").WithInternal(err)
	}
	r.log.Error(msg, logger.Error(err))
	return apperror.ErrDatabase.WithInternal(err)
}

// Get implements Store.
func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	return getBooking(ctx, r.tx.DB(), r, id)
}

// ListByThing implements Store.
func (r *Repository) ListByThing(ctx context.Context, thingID string) ([]Booking, error) {
	var list []Booking
	err := r.tx.DB().NewSelect().
		Model(&list).
		Where("b.thing_id = ?", thingID).
		Order("b.start_date ASC", "b.end_date ASC", "b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.dbError("failed to list bookings", err)
	}
	return list, nil
}

// ListByBooker implements Store.
func (r *Repository) ListByBooker(ctx context.Context, bookerID string) ([]Booking, error) {
	var list []Booking
	err := r.tx.DB().NewSelect().
		Model(&list).
		Where("b.booker_id = ?", bookerID).
		Order("b.start_date ASC", "b.end_date ASC", "b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, r.dbError("failed to list bookings", err)
	}
	return list, nil
}

func getBooking(ctx context.Context, db bun.IDB, r *Repository, id string) (*Booking, error) {
	var b Booking
	err := db.NewSelect().Model(&b).Where("b.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("Booking")
		}
		return nil, r.dbError("failed to get booking", err)
	}
	return &b, nil
}

type txQueries struct {
	db   bun.IDB
	repo *Repository
}

func (q *txQueries) Get(ctx context.Context, id string) (*Booking, error) {
	return getBooking(ctx, q.db, q.repo, id)
}

// FindOverlapping uses the same closed-interval predicate as
// interval.Overlaps.
func (q *txQueries) FindOverlapping(ctx context.Context, thingID string, span interval.Interval, excludeID string) ([]Booking, error) {
	var list []Booking
	query := q.db.NewSelect().
		Model(&list).
		Where("b.thing_id = ?", thingID).
		Where("b.start_date <= ?", span.End).
		Where("b.end_date >= ?", span.Start).
		Order("b.start_date ASC", "b.end_date ASC", "b.id ASC")
	if excludeID != "" {
		query = query.Where("b.id <> ?", excludeID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, q.repo.dbError("failed to find overlapping bookings", err)
	}
	return list, nil
}

func (q *txQueries) Insert(ctx context.Context, b *Booking) error {
	if _, err := q.db.NewInsert().Model(b).Exec(ctx); err != nil {
		return q.repo.dbError("failed to insert booking", err)
	}
	return nil
}

func (q *txQueries) Update(ctx context.Context, b *Booking) error {
	_, err := q.db.NewUpdate().
		Model(b).
		Column("start_date", "end_date", "num_people", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return q.repo.dbError("failed to update booking", err)
	}
	return nil
}

func (q *txQueries) SetStatus(ctx context.Context, ids []string, status Status, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.db.NewUpdate().
		Model((*Booking)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, q.repo.dbError("failed to set booking status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, q.repo.dbError("failed to set booking status", err)
	}
	return int(n), nil
}

func (q *txQueries) Delete(ctx context.Context, id string) error {
	if _, err := q.db.NewDelete().Model((*Booking)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return q.repo.dbError("failed to delete booking", err)
	}
	return nil
}
