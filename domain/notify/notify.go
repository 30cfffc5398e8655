// Package notify delivers user-facing notifications produced by the booking
// and invitation flows. Delivery happens after the triggering transaction has
// committed and never fails the operation that caused it.
package notify

import (
	"context"
	"log/slog"

	"github.com/erlendps/thingbooker/pkg/logger"
)

// Template names understood by the email renderer.
const (
	TemplateNewBooking        = "things/notify_owner_of_new_booking"
	TemplateBookingStatus     = "things/notify_booking_status_changed"
	TemplateInviteUserToGroup = "users/invite_user_to_group"
	TemplateInviteUserToThing = "things/invite_user_to_thing"
)

// Message is a single notification addressed to one recipient.
type Message struct {
	Template string
	To       string
	ToName   string
	Subject  string
	Data     map[string]any

	// SourceType and SourceID link the message to the entity that caused it.
	SourceType string
	SourceID   string
}

// Sender hands a message to a delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher sends messages and logs failures instead of returning them.
type Dispatcher struct {
	sender Sender
	log    *slog.Logger
}

// NewDispatcher creates a dispatcher on top of sender
func NewDispatcher(sender Sender, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		log:    log.With(logger.Scope("notify")),
	}
}

// Deliver sends every message. The request context may already be done by
// the time this runs, so its cancellation is dropped.
func (d *Dispatcher) Deliver(ctx context.Context, msgs ...Message) {
	if d == nil || d.sender == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, msg := range msgs {
		if msg.To == "" {
			d.log.Warn("dropping notification without recipient", slog.String("template", msg.Template))
			continue
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			d.log.Error("failed to send notification",
				slog.String("template", msg.Template),
				slog.String("to", msg.To),
				logger.Error(err),
			)
		}
	}
}
