package calendar

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

// Patch lists the fields an edit changes. Absent options are left alone.
type Patch struct {
	Title       mo.Option[string]
	Description mo.Option[string]
	Location    mo.Option[string]
	Notes       mo.Option[string]

	// StartDate moves the definition. Without EndDate the day span is kept.
	StartDate mo.Option[time.Time]
	EndDate   mo.Option[time.Time]
	// StartTime and EndTime accept nil to clear the time of day.
	StartTime mo.Option[*event.Clock]
	EndTime   mo.Option[*event.Clock]
	AllDay    mo.Option[bool]

	CategoryID      mo.Option[string]
	Color           mo.Option[string]
	Kind            mo.Option[event.Kind]
	ReminderOffsets mo.Option[[]int]

	Recurrence      mo.Option[recurrence.Rule]
	RecurrenceEnd   mo.Option[*time.Time]
	RecurrenceCount mo.Option[int]
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return !p.touchesDisplay() && !p.touchesDates() && !p.touchesRecurrence()
}

func (p Patch) touchesDisplay() bool {
	return p.Title.IsPresent() || p.Description.IsPresent() || p.Location.IsPresent() ||
		p.Notes.IsPresent() || p.StartTime.IsPresent() || p.EndTime.IsPresent() ||
		p.AllDay.IsPresent() || p.CategoryID.IsPresent() || p.Color.IsPresent() ||
		p.Kind.IsPresent() || p.ReminderOffsets.IsPresent()
}

func (p Patch) touchesDates() bool {
	return p.StartDate.IsPresent() || p.EndDate.IsPresent()
}

func (p Patch) touchesRecurrence() bool {
	return p.Recurrence.IsPresent() || p.RecurrenceEnd.IsPresent() || p.RecurrenceCount.IsPresent()
}

// apply overlays the present fields onto d. d must be a private copy.
func (p Patch) apply(d *event.Definition) {
	if v, ok := p.Title.Get(); ok {
		d.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		d.Description = v
	}
	if v, ok := p.Location.Get(); ok {
		d.Location = v
	}
	if v, ok := p.Notes.Get(); ok {
		d.Notes = v
	}

	if v, ok := p.StartDate.Get(); ok {
		span := d.SpanDays()
		d.StartDate = recurrence.DateOf(v)
		d.EndDate = recurrence.AddDays(d.StartDate, span)
	}
	if v, ok := p.EndDate.Get(); ok {
		d.EndDate = recurrence.DateOf(v)
	}
	if v, ok := p.StartTime.Get(); ok {
		d.StartTime = copyClock(v)
	}
	if v, ok := p.EndTime.Get(); ok {
		d.EndTime = copyClock(v)
	}
	if v, ok := p.AllDay.Get(); ok {
		d.AllDay = v
	}

	if v, ok := p.CategoryID.Get(); ok {
		d.CategoryID = v
	}
	if v, ok := p.Color.Get(); ok {
		d.Color = v
	}
	if v, ok := p.Kind.Get(); ok {
		d.Kind = v
	}
	if v, ok := p.ReminderOffsets.Get(); ok {
		d.ReminderOffsets = append([]int(nil), v...)
	}

	if v, ok := p.Recurrence.Get(); ok {
		d.Recurrence = v
	}
	if v, ok := p.RecurrenceEnd.Get(); ok {
		if v == nil {
			d.RecurrenceEnd = nil
		} else {
			end := recurrence.DateOf(*v)
			d.RecurrenceEnd = &end
		}
	}
	if v, ok := p.RecurrenceCount.Get(); ok {
		d.RecurrenceCount = v
	}
}

func copyClock(c *event.Clock) *event.Clock {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
