package calendar

import (
	"sort"

	"github.com/cyp0633/calrecur/event"
)

// SortOccurrences orders occurrences for display: all-day before timed, then
// by date, then by start time. Ties keep their input order.
func SortOccurrences(occs []event.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		return lessOccurrence(&occs[i], &occs[j])
	})
}

func lessOccurrence(a, b *event.Occurrence) bool {
	if at, bt := a.IsTimed(), b.IsTimed(); at != bt {
		return !at
	}
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return startMinutes(a) < startMinutes(b)
}

// startMinutes treats a missing or ignored time as midnight.
func startMinutes(o *event.Occurrence) int {
	if o.AllDay || o.StartTime == nil {
		return 0
	}
	return o.StartTime.Minutes()
}
