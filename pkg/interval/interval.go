// Package interval implements closed-interval overlap checks for time windows.
//
// Two intervals overlap when each one starts no later than the other ends, so
// windows that merely touch at a boundary are considered overlapping. The same
// predicate is expressed in SQL by the bookings repository.
package interval

import (
	"sort"
	"time"
)

// Interval is a closed time window [Start, End].
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns the interval between start and end.
func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether i and other share at least one instant.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i.Start, i.End, other.Start, other.End)
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps is the closed-interval predicate aStart <= bEnd && aEnd >= bStart.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// Span is anything that occupies an interval and has a stable identifier.
type Span interface {
	SpanID() string
	Span() Interval
}

// FindOverlapping returns the items overlapping candidate, skipping the item
// whose ID equals excludeID. Input order is preserved.
func FindOverlapping[T Span](items []T, candidate Interval, excludeID string) []T {
	var out []T
	for _, item := range items {
		if excludeID != "" && item.SpanID() == excludeID {
			continue
		}
		if item.Span().Overlaps(candidate) {
			out = append(out, item)
		}
	}
	return out
}

// SortByStart orders items by start time, then end time, then ID.
func SortByStart[T Span](items []T) {
	sort.SliceStable(items, func(a, b int) bool {
		sa, sb := items[a].Span(), items[b].Span()
		if !sa.Start.Equal(sb.Start) {
			return sa.Start.Before(sb.Start)
		}
		if !sa.End.Equal(sb.End) {
			return sa.End.Before(sb.End)
		}
		return items[a].SpanID() < items[b].SpanID()
	})
}
