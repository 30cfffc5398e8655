package bookings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/erlendps/thingbooker/domain/notify"
	"github.com/erlendps/thingbooker/domain/things"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/pkg/logger"
)

const dateLayout = "02.01.2006 15:04"

func (s *Service) thingURL(thing *things.Thing) string {
	return fmt.Sprintf("%s/things/%s/", s.clientBaseURL, thing.ID)
}

func bookingData(thing *things.Thing, b *Booking) map[string]any {
	return map[string]any{
		"thingName": thing.Name,
		"bookingId": b.ID,
		"startDate": b.StartDate.Format(dateLayout),
		"endDate":   b.EndDate.Format(dateLayout),
		"numPeople": b.NumPeople,
		"status":    string(b.Status),
	}
}

// notifyOwner tells the thing owner about a new booking request.
func (s *Service) notifyOwner(ctx context.Context, thing *things.Thing, booker *users.User, b *Booking) {
	found, err := s.users.GetByIDs(ctx, []string{thing.OwnerID})
	if err != nil {
		s.log.Warn("failed to resolve thing owner for notification", slog.String("thing_id", thing.ID), logger.Error(err))
		return
	}
	owner, ok := found[thing.OwnerID]
	if !ok {
		return
	}

	data := bookingData(thing, b)
	data["bookerName"] = booker.Name()
	data["updateStatusUrl"] = s.thingURL(thing)
	s.notifier.Deliver(ctx, notify.Message{
		Template:   notify.TemplateNewBooking,
		To:         owner.Email,
		ToName:     owner.DisplayName,
		Subject:    "[Thingbooker] New booking",
		Data:       data,
		SourceType: "booking",
		SourceID:   b.ID,
	})
}

// notifyStatusChanged tells each booker, except the thing owner, that their
// booking was accepted or declined.
func (s *Service) notifyStatusChanged(ctx context.Context, thing *things.Thing, changed ...Booking) {
	var ids []string
	for _, b := range changed {
		if b.BookerID != thing.OwnerID {
			ids = append(ids, b.BookerID)
		}
	}
	if len(ids) == 0 {
		return
	}
	found, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		s.log.Warn("failed to resolve bookers for notification", slog.String("thing_id", thing.ID), logger.Error(err))
		return
	}

	msgs := make([]notify.Message, 0, len(changed))
	for i := range changed {
		b := &changed[i]
		booker, ok := found[b.BookerID]
		if !ok || b.BookerID == thing.OwnerID {
			continue
		}
		declined := b.Status == StatusDeclined
		subject := "[Thingbooker] Your booking was accepted"
		if declined {
			subject = "[Thingbooker] Your booking was declined"
		}
		data := bookingData(thing, b)
		data["declined"] = declined
		data["recipientName"] = booker.Name()
		data["thingUrl"] = s.thingURL(thing)
		msgs = append(msgs, notify.Message{
			Template:   notify.TemplateBookingStatus,
			To:         booker.Email,
			ToName:     booker.DisplayName,
			Subject:    subject,
			Data:       data,
			SourceType: "booking",
			SourceID:   b.ID,
		})
	}
	s.notifier.Deliver(ctx, msgs...)
}
