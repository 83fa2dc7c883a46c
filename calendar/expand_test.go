package calendar

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

func TestExpander_Cases(t *testing.T) {
	m := master("m", day(2025, 1, 6), recurrence.Every(recurrence.Weekly, 1))
	m.EndDate = day(2025, 1, 7)
	defs := []event.Definition{
		m,
		single("inside", day(2025, 1, 10)),
		// Overlapping the range start counts.
		{ID: "spans-in", StartDate: day(2024, 12, 30), EndDate: day(2025, 1, 6)},
		single("outside", day(2025, 2, 1)),
		{ID: "orphan", StartDate: day(2025, 1, 9), EndDate: day(2025, 1, 9),
			OverrideOf: &event.OverrideRef{ParentID: "gone", Date: day(2025, 1, 9)}},
		{ID: "x", StartDate: day(2025, 1, 13), EndDate: day(2025, 1, 13), Cancelled: true,
			OverrideOf: &event.OverrideRef{ParentID: "m", Date: day(2025, 1, 13)}},
	}

	occs, err := NewExpander(nil, nil).Expand(defs, day(2025, 1, 6), day(2025, 1, 20))
	require.NoError(t, err)

	var ids []string
	for _, o := range occs {
		ids = append(ids, o.SourceID+"@"+o.Date.Format("01-02"))
	}
	assert.Equal(t, []string{"spans-in@12-30", "m@01-06", "orphan@01-09", "inside@01-10", "m@01-20"}, ids)
	assert.Equal(t, day(2025, 1, 21), occs[4].EndDate, "master span is kept")
	assert.True(t, occs[1].Recurring)
	assert.Equal(t, "m", occs[1].MasterID)
	assert.Empty(t, occs[3].MasterID)
}

func TestExpander_TruncationIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	engine := recurrence.NewEngineWithConfig(recurrence.EngineConfig{MaxIterations: 10})

	defs := []event.Definition{master("d", day(2025, 1, 1), recurrence.Every(recurrence.Daily, 1))}
	occs, err := NewExpander(engine, logger).Expand(defs, day(2025, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)
	assert.Len(t, occs, 10)
	assert.Contains(t, buf.String(), "expansion truncated")
}

func TestExpander_OldSeriesIsNotTruncated(t *testing.T) {
	engine := recurrence.NewEngineWithConfig(recurrence.EngineConfig{MaxIterations: 50})
	defs := []event.Definition{master("d", day(1990, 1, 1), recurrence.Every(recurrence.Daily, 1))}

	occs, err := NewExpander(engine, nil).Expand(defs, day(2025, 1, 1), day(2025, 1, 31))
	require.NoError(t, err)
	assert.Len(t, occs, 31)
	assert.Equal(t, time.Weekday(3), occs[0].Date.Weekday())
}
