package bookings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thingbooker_bookings_created_total",
		Help: "Bookings created in the waiting state",
	})

	bookingConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thingbooker_booking_conflicts_total",
		Help: "Booking requests refused because of an accepted overlap, by operation",
	}, []string{"operation"})

	bookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thingbooker_booking_transitions_total",
		Help: "Booking status changes, by new status and cause",
	}, []string{"status", "cause"})
)
