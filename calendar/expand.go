package calendar

import (
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

// Expander materializes definitions into occurrences. It holds no state of
// its own and is safe for concurrent use.
type Expander struct {
	engine *recurrence.Engine
	logger *slog.Logger
}

// NewExpander creates an expander. nil arguments get defaults.
func NewExpander(engine *recurrence.Engine, logger *slog.Logger) *Expander {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Expander{engine: engine, logger: logger}
}

// Engine returns the stepping engine.
func (x *Expander) Engine() *recurrence.Engine {
	return x.engine
}

// Expand returns the sorted occurrences of defs within [from, to], both
// inclusive. defs is only read.
func (x *Expander) Expand(defs []event.Definition, from, to time.Time) ([]event.Occurrence, error) {
	from, to = recurrence.DateOf(from), recurrence.DateOf(to)
	if to.Before(from) {
		return nil, invalidRange("range end %s is before start %s",
			to.Format(recurrence.DateLayout), from.Format(recurrence.DateLayout))
	}

	idx := BuildOverrideIndex(defs)
	occs := make([]event.Occurrence, 0)
	for i := range defs {
		d := &defs[i]
		switch {
		case d.IsCancellation():
			continue
		case d.IsMaster():
			occs = x.expandMaster(occs, d, idx, from, to)
		default:
			// Standalone events and edited instances surface on their own dates.
			if !d.StartDate.After(to) && !d.EndDate.Before(from) {
				occs = append(occs, event.NewOccurrence(d, d.StartDate))
			}
		}
	}

	SortOccurrences(occs)
	return occs, nil
}

func (x *Expander) expandMaster(occs []event.Occurrence, d *event.Definition, idx OverrideIndex, from, to time.Time) []event.Occurrence {
	dates, truncated := x.engine.Between(d.Series(), from, to)
	if truncated {
		x.logger.Warn("expansion truncated at iteration ceiling",
			"id", d.ID,
			"rule", d.Recurrence.String(),
			"from", from.Format(recurrence.DateLayout),
			"to", to.Format(recurrence.DateLayout),
			"emitted", len(dates))
	}

	for _, date := range dates {
		if _, overridden := idx.Lookup(d.ID, date); overridden {
			continue
		}
		occs = append(occs, event.NewOccurrence(d, date))
	}
	return occs
}
