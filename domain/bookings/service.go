// Package bookings creates bookings under scheduling constraints, accepts
// them while declining their overlapping competitors, and declines them.
//
// No two accepted bookings of a thing may overlap. Every check that guards
// that rule runs in the same transaction as the write it guards, with the
// thing row locked: accepts take it exclusively so that they are serialized
// per thing, and creates and updates take it shared.
package bookings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/notify"
	"github.com/erlendps/thingbooker/domain/things"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/interval"
	"github.com/erlendps/thingbooker/pkg/logger"
	"github.com/erlendps/thingbooker/pkg/tracing"
)

// Store persists bookings.
type Store interface {
	// WithThingLock runs fn in a transaction holding a lock on the thing row,
	// exclusive or shared. It fails with NotFound when the thing is gone.
	WithThingLock(ctx context.Context, thingID string, exclusive bool, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (*Booking, error)
	// ListByThing returns the bookings of a thing ordered by start.
	ListByThing(ctx context.Context, thingID string) ([]Booking, error)
	// ListByBooker returns the bookings made by bookerID ordered by start.
	ListByBooker(ctx context.Context, bookerID string) ([]Booking, error)
}

// Tx is the transactional part of the store.
type Tx interface {
	Get(ctx context.Context, id string) (*Booking, error)
	// FindOverlapping returns bookings of thingID overlapping span in the
	// closed-interval sense, except excludeID.
	FindOverlapping(ctx context.Context, thingID string, span interval.Interval, excludeID string) ([]Booking, error)
	Insert(ctx context.Context, b *Booking) error
	// Update writes dates and guest count.
	Update(ctx context.Context, b *Booking) error
	// SetStatus sets status on every listed booking and returns how many
	// rows changed.
	SetStatus(ctx context.Context, ids []string, status Status, now time.Time) (int, error)
	Delete(ctx context.Context, id string) error
}

// UserLookup resolves notification recipients.
type UserLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]users.User, error)
}

// Service is the booking lifecycle manager
type Service struct {
	store         Store
	users         UserLookup
	notifier      *notify.Dispatcher
	clientBaseURL string
	now           func() time.Time
	log           *slog.Logger
}

// NewService creates a new bookings service
func NewService(store Store, lookup UserLookup, notifier *notify.Dispatcher, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:         store,
		users:         lookup,
		notifier:      notifier,
		clientBaseURL: strings.TrimRight(cfg.ClientBaseURL, "/"),
		now:           time.Now,
		log:           log.With(logger.Scope("bookings.svc")),
	}
}

// Create requests thing for the window in req. Only accepted bookings that
// have not started yet block the request; it is stored as waiting and the owner is
// told about it.
func (s *Service) Create(ctx context.Context, thing *things.Thing, booker *users.User, req CreateBookingRequest) (booking *Booking, err error) {
	ctx, sp := tracing.Start(ctx, "bookings.create",
		attribute.String("thingbooker.thing.id", thing.ID),
		attribute.String("thingbooker.booker.id", booker.ID),
	)
	defer func() { tracing.Finish(sp, err) }()

	span := interval.New(req.StartDate, req.EndDate)
	if err := validate(span, req.NumPeople, s.now().UTC()); err != nil {
		return nil, err
	}

	err = s.store.WithThingLock(ctx, thing.ID, false, func(ctx context.Context, tx Tx) error {
		now := s.now().UTC()
		overlapping, err := tx.FindOverlapping(ctx, thing.ID, span, "")
		if err != nil {
			return err
		}
		if blockers := blocking(overlapping, now); len(blockers) > 0 {
			bookingConflicts.WithLabelValues("create").Inc()
			return schedulingConflict(span, blockers)
		}

		booking = &Booking{
			ID:        uuid.NewString(),
			ThingID:   thing.ID,
			BookerID:  booker.ID,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Status:    StatusWaiting,
			NumPeople: req.NumPeople,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Insert(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	bookingsCreated.Inc()
	s.log.Info("booking created",
		slog.String("booking_id", booking.ID),
		slog.String("thing_id", thing.ID),
		slog.String("booker_id", booker.ID),
	)
	s.notifyOwner(ctx, thing, booker, booking)
	return booking, nil
}

// Accept accepts the booking and, when declineOverlapping is set, declines
// every other booking overlapping it. It fails with ErrAlreadyAccepted and
// changes nothing when an overlapping booking is already accepted.
func (s *Service) Accept(ctx context.Context, thing *things.Thing, bookingID string, declineOverlapping bool) (_ *AcceptSummary, err error) {
	ctx, sp := tracing.Start(ctx, "bookings.accept",
		attribute.String("thingbooker.thing.id", thing.ID),
		attribute.String("thingbooker.booking.id", bookingID),
		attribute.Bool("thingbooker.booking.decline_overlapping", declineOverlapping),
	)
	defer func() { tracing.Finish(sp, err) }()

	var (
		accepted *Booking
		declined []Booking
		summary  = &AcceptSummary{}
	)
	err = s.store.WithThingLock(ctx, thing.ID, true, func(ctx context.Context, tx Tx) error {
		// Reset in case the transaction is retried.
		accepted, declined, summary.NumDeclined = nil, nil, 0

		booking, err := getForThing(ctx, tx, thing.ID, bookingID)
		if err != nil {
			return err
		}
		switch booking.Status {
		case StatusAccepted:
			return apperror.ErrAlreadyAccepted
		case StatusDeclined:
			return apperror.ErrInvalidTransition.WithMessage("A declined booking cannot be accepted")
		}

		overlapping, err := tx.FindOverlapping(ctx, thing.ID, booking.Span(), booking.ID)
		if err != nil {
			return err
		}
		for _, b := range overlapping {
			if b.Status == StatusAccepted {
				bookingConflicts.WithLabelValues("accept").Inc()
				return apperror.ErrAlreadyAccepted.WithInternal(conflictCause{bookingID: b.ID})
			}
		}

		now := s.now().UTC()
		if _, err := tx.SetStatus(ctx, []string{booking.ID}, StatusAccepted, now); err != nil {
			return err
		}
		booking.Status = StatusAccepted
		booking.UpdatedAt = now
		accepted = booking

		if !declineOverlapping || len(overlapping) == 0 {
			return nil
		}
		ids := make([]string, len(overlapping))
		for i, b := range overlapping {
			ids[i] = b.ID
		}
		n, err := tx.SetStatus(ctx, ids, StatusDeclined, now)
		if err != nil {
			return err
		}
		summary.NumDeclined = n
		for _, b := range overlapping {
			// Only bookings that were still waiting hear about it.
			if b.Status == StatusWaiting {
				b.Status = StatusDeclined
				declined = append(declined, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary.Accepted = true
	sp.SetAttributes(attribute.Int("thingbooker.booking.num_declined", summary.NumDeclined))
	bookingTransitions.WithLabelValues(string(StatusAccepted), "accept").Inc()
	bookingTransitions.WithLabelValues(string(StatusDeclined), "cascade").Add(float64(len(declined)))
	s.log.Info("booking accepted",
		slog.String("booking_id", accepted.ID),
		slog.String("thing_id", thing.ID),
		slog.Int("num_declined", summary.NumDeclined),
	)

	s.notifyStatusChanged(ctx, thing, append(declined, *accepted)...)
	return summary, nil
}

// Decline declines the booking. Declining a declined booking succeeds
// without changing anything; no other booking is touched.
func (s *Service) Decline(ctx context.Context, thing *things.Thing, bookingID string) (*Booking, error) {
	var (
		booking *Booking
		changed bool
	)
	err := s.store.WithThingLock(ctx, thing.ID, true, func(ctx context.Context, tx Tx) error {
		var err error
		booking, err = getForThing(ctx, tx, thing.ID, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == StatusDeclined {
			changed = false
			return nil
		}
		now := s.now().UTC()
		if _, err := tx.SetStatus(ctx, []string{booking.ID}, StatusDeclined, now); err != nil {
			return err
		}
		booking.Status = StatusDeclined
		booking.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		bookingTransitions.WithLabelValues(string(StatusDeclined), "decline").Inc()
		s.log.Info("booking declined", slog.String("booking_id", booking.ID), slog.String("thing_id", thing.ID))
		s.notifyStatusChanged(ctx, thing, *booking)
	}
	return booking, nil
}

// UpdateStatus moves a booking to accepted or declined. Nothing moves a
// booking back to waiting.
func (s *Service) UpdateStatus(ctx context.Context, thing *things.Thing, bookingID string, req UpdateStatusRequest) (any, error) {
	switch req.Status {
	case StatusAccepted:
		decline := true
		if req.DeclineOverlapping != nil {
			decline = *req.DeclineOverlapping
		}
		return s.Accept(ctx, thing, bookingID, decline)
	case StatusDeclined:
		b, err := s.Decline(ctx, thing, bookingID)
		if err != nil {
			return nil, err
		}
		dto := b.ToDTO()
		return &dto, nil
	case StatusWaiting:
		return nil, apperror.ErrInvalidTransition.WithMessage("A booking cannot be moved back to waiting")
	default:
		return nil, apperror.NewBadRequest("status must be accepted or declined")
	}
}

// Get returns a booking of thing
func (s *Service) Get(ctx context.Context, thing *things.Thing, bookingID string) (*Booking, error) {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ThingID != thing.ID {
		return nil, apperror.NewNotFound("Booking")
	}
	return b, nil
}

// List returns the bookings of thing ordered by start
func (s *Service) List(ctx context.Context, thing *things.Thing) ([]Booking, error) {
	return s.store.ListByThing(ctx, thing.ID)
}

// ListMine returns the bookings made by userID ordered by start
func (s *Service) ListMine(ctx context.Context, userID string) ([]Booking, error) {
	return s.store.ListByBooker(ctx, userID)
}

// Update changes dates or guest count of a waiting booking. Only the booker
// may do so, and the new window is checked like a new request, ignoring the
// booking itself.
func (s *Service) Update(ctx context.Context, thing *things.Thing, bookingID, userID string, req UpdateBookingRequest) (*Booking, error) {
	var booking *Booking
	err := s.store.WithThingLock(ctx, thing.ID, false, func(ctx context.Context, tx Tx) error {
		var err error
		booking, err = getForThing(ctx, tx, thing.ID, bookingID)
		if err != nil {
			return err
		}
		if booking.BookerID != userID {
			return apperror.NewForbidden("Only the booker can change this booking")
		}
		if booking.Status != StatusWaiting {
			return apperror.ErrInvalidTransition.WithMessage("Only waiting bookings can be changed")
		}

		if req.StartDate != nil {
			booking.StartDate = *req.StartDate
		}
		if req.EndDate != nil {
			booking.EndDate = *req.EndDate
		}
		if req.NumPeople != nil {
			booking.NumPeople = *req.NumPeople
		}
		now := s.now().UTC()
		span := booking.Span()
		if err := validate(span, booking.NumPeople, now); err != nil {
			return err
		}

		overlapping, err := tx.FindOverlapping(ctx, thing.ID, span, booking.ID)
		if err != nil {
			return err
		}
		if blockers := blocking(overlapping, now); len(blockers) > 0 {
			bookingConflicts.WithLabelValues("update").Inc()
			return schedulingConflict(span, blockers)
		}

		booking.UpdatedAt = now
		return tx.Update(ctx, booking)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Delete removes a booking. The thing owner and the booker may do so.
func (s *Service) Delete(ctx context.Context, thing *things.Thing, bookingID, userID string) error {
	return s.store.WithThingLock(ctx, thing.ID, false, func(ctx context.Context, tx Tx) error {
		booking, err := getForThing(ctx, tx, thing.ID, bookingID)
		if err != nil {
			return err
		}
		if !memberships.CanModifyBooking(userID, thing.OwnerID, booking.BookerID) {
			return apperror.NewForbidden("Only the owner or the booker can delete this booking")
		}
		return tx.Delete(ctx, booking.ID)
	})
}

func getForThing(ctx context.Context, tx Tx, thingID, bookingID string) (*Booking, error) {
	b, err := tx.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ThingID != thingID {
		return nil, apperror.NewNotFound("Booking")
	}
	return b, nil
}
