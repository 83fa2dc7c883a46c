package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cyp0633/calrecur/event"
)

func TestBuildOverrideIndex(t *testing.T) {
	ref := func(parent string, d time.Time) *event.OverrideRef {
		return &event.OverrideRef{ParentID: parent, Date: d}
	}
	defs := []event.Definition{
		{ID: "m"},
		{ID: "e1", OverrideOf: ref("m", day(2025, 1, 13))},
		{ID: "x1", OverrideOf: ref("m", day(2025, 1, 20)), Cancelled: true},
		// A stray duplicate: the marker must win regardless of order.
		{ID: "x2", OverrideOf: ref("m", day(2025, 1, 27)), Cancelled: true},
		{ID: "e2", OverrideOf: ref("m", day(2025, 1, 27))},
	}
	idx := BuildOverrideIndex(defs)

	tests := []struct {
		parent string
		date   time.Time
		want   OverrideKind
		found  bool
	}{
		{"m", day(2025, 1, 13), OverrideEdited, true},
		{"m", day(2025, 1, 20), OverrideCancelled, true},
		{"m", day(2025, 1, 27), OverrideCancelled, true},
		{"m", day(2025, 1, 6), 0, false},
		{"other", day(2025, 1, 13), 0, false},
		// Lookups ignore the time of day.
		{"m", time.Date(2025, 1, 13, 18, 45, 0, 0, time.UTC), OverrideEdited, true},
	}
	for _, tt := range tests {
		got, ok := idx.Lookup(tt.parent, tt.date)
		assert.Equal(t, tt.found, ok, "%s %s", tt.parent, tt.date)
		assert.Equal(t, tt.want, got, "%s %s", tt.parent, tt.date)
	}
}
