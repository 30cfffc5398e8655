package bookings

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/pkg/interval"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Booking is a requested or granted reservation of a thing.
type Booking struct {
	bun.BaseModel `bun:"table:tb.bookings,alias:b"`

	ID        string    `bun:"id,pk,type:uuid"`
	ThingID   string    `bun:"thing_id,type:uuid,notnull"`
	BookerID  string    `bun:"booker_id,type:uuid,notnull"`
	StartDate time.Time `bun:"start_date,notnull"`
	EndDate   time.Time `bun:"end_date,notnull"`
	Status    Status    `bun:"status,notnull"`
	NumPeople int       `bun:"num_people,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// SpanID implements interval.Span.
func (b Booking) SpanID() string { return b.ID }

// Span implements interval.Span.
func (b Booking) Span() interval.Interval { return interval.New(b.StartDate, b.EndDate) }

// CreateBookingRequest is the body of a create call
type CreateBookingRequest struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	NumPeople int       `json:"numPeople"`
}

// UpdateBookingRequest is the body of an update call; nil fields are kept.
type UpdateBookingRequest struct {
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	NumPeople *int       `json:"numPeople,omitempty"`
}

// UpdateStatusRequest is the body of a status change. DeclineOverlapping
// defaults to true.
type UpdateStatusRequest struct {
	Status             Status `json:"status"`
	DeclineOverlapping *bool  `json:"declineOverlapping,omitempty"`
}

// AcceptSummary is the result of accepting a booking
type AcceptSummary struct {
	Accepted    bool `json:"accepted"`
	NumDeclined int  `json:"numDeclined"`
}

// BookingDTO is the response representation of a booking
type BookingDTO struct {
	ID        string    `json:"id"`
	ThingID   string    `json:"thingId"`
	BookerID  string    `json:"bookerId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    Status    `json:"status"`
	NumPeople int       `json:"numPeople"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToDTO converts a booking to its response form
func (b *Booking) ToDTO() BookingDTO {
	return BookingDTO{
		ID:        b.ID,
		ThingID:   b.ThingID,
		BookerID:  b.BookerID,
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
		Status:    b.Status,
		NumPeople: b.NumPeople,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// ToDTOs converts a list of bookings
func ToDTOs(list []Booking) []BookingDTO {
	out := make([]BookingDTO, len(list))
	for i := range list {
		out[i] = list[i].ToDTO()
	}
	return out
}
