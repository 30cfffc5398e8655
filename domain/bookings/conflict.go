package bookings

import (
	"time"

	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/interval"
)

const (
	msgEndsTooLate    = "Cannot end booking after another starts."
	msgStartsTooEarly = "Cannot start booking before another ends."
)

// blocking returns the accepted bookings among overlapping that start at or
// after now, ordered by start. Waiting and declined bookings never block, and
// neither does an accepted booking that is already under way.
func blocking(overlapping []Booking, now time.Time) []Booking {
	var out []Booking
	for _, b := range overlapping {
		if b.Status == StatusAccepted && !b.StartDate.Before(now) {
			out = append(out, b)
		}
	}
	interval.SortByStart(out)
	return out
}

// conflictDetails reports which boundary of requested collides with
// existing. The end collides when existing starts inside the request or
// outlasts it; the start collides when existing started first or ends inside
// it. A request containing existing collides on both.
func conflictDetails(requested, existing interval.Interval) map[string]any {
	details := map[string]any{}
	if !existing.Start.Before(requested.Start) || !existing.End.Before(requested.End) {
		details["end_date"] = msgEndsTooLate
	}
	if !existing.Start.After(requested.Start) || !existing.End.After(requested.End) {
		details["start_date"] = msgStartsTooEarly
	}
	return details
}

// schedulingConflict builds the error for a request that overlaps the
// first of the blocking bookings.
func schedulingConflict(requested interval.Interval, blockers []Booking) error {
	first := blockers[0]
	return apperror.ErrSchedulingConflict.
		WithDetails(conflictDetails(requested, first.Span())).
		WithInternal(conflictCause{bookingID: first.ID})
}

type conflictCause struct {
	bookingID string
}

func (c conflictCause) Error() string {
	return "overlaps accepted booking " + c.bookingID
}

// validate checks a requested window at now. A window that ends after it
// starts and does not start before now cannot end in the past either.
func validate(span interval.Interval, numPeople int, now time.Time) error {
	if !span.Valid() {
		return apperror.ErrInvalidRange
	}
	if span.Start.Before(now) {
		return apperror.ErrInvalidStart.WithDetails(map[string]any{"start_date": "Cannot start booking in the past."})
	}
	if numPeople < 1 {
		return apperror.ErrInvalidGuestCount
	}
	return nil
}
