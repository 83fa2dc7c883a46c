// Package ics exports definitions as an RFC 5545 VCALENDAR.
//
// Masters become VEVENTs with an RRULE, cancellation markers become EXDATEs
// on their master, and edited instances become VEVENTs sharing the master's
// UID with a RECURRENCE-ID. Dates carry no time zone, so timed events use
// floating DATE-TIME values.
package ics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

const (
	DefaultProductID = "-//calrecur//Calendar Export//EN"

	dateFormat     = "20060102"
	floatingFormat = "20060102T150405"
)

// Options controls the calendar envelope.
type Options struct {
	ProductID string
	// Name sets X-WR-CALNAME / NAME when not empty.
	Name string
	// Now stamps definitions that have no UpdatedAt.
	Now time.Time
}

// Export builds a calendar from defs. Definitions that cannot be expressed
// are reported as an error naming their id.
func Export(defs []event.Definition, opts Options) (*ical.Calendar, error) {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, opts.ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	if opts.Name != "" {
		cal.Props.SetText(ical.PropName, opts.Name)
		cal.Props.SetText("X-WR-CALNAME", opts.Name)
	}

	masters := make(map[string]*event.Definition)
	exdates := make(map[string][]time.Time)
	for i := range defs {
		d := &defs[i]
		if d.IsMaster() {
			masters[d.ID] = d
		}
		if d.IsCancellation() {
			exdates[d.OverrideOf.ParentID] = append(exdates[d.OverrideOf.ParentID], d.OverrideOf.Date)
		}
	}

	for i := range defs {
		d := &defs[i]
		if d.IsCancellation() {
			continue
		}

		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, d.ID)
		setCommon(ev, d, opts.Now)

		switch {
		case d.IsMaster():
			rule, err := d.Series().FloatingRRule(!d.IsTimed())
			if err != nil {
				return nil, fmt.Errorf("definition %s: %w", d.ID, err)
			}
			p := ical.NewProp(ical.PropRecurrenceRule)
			// Set directly: SetText would escape the commas of BYDAY.
			p.Value = rule
			ev.Props.Set(p)

			ex := exdates[d.ID]
			sort.Slice(ex, func(a, b int) bool { return ex[a].Before(ex[b]) })
			for _, date := range ex {
				ev.Props.Add(dateProp(ical.PropExceptionDates, date, d.StartTime, d.AllDay))
			}
		case d.IsEditedInstance():
			if parent, ok := masters[d.OverrideOf.ParentID]; ok {
				ev.Props.SetText(ical.PropUID, parent.ID)
				ev.Props.Set(dateProp(ical.PropRecurrenceID, d.OverrideOf.Date, parent.StartTime, parent.AllDay))
			}
		}

		cal.Children = append(cal.Children, ev.Component)
	}
	return cal, nil
}

// Encode writes defs to w as iCalendar text.
func Encode(w io.Writer, defs []event.Definition, opts Options) error {
	cal, err := Export(defs, opts)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func setCommon(ev *ical.Event, d *event.Definition, now time.Time) {
	stamp := d.UpdatedAt
	if stamp.IsZero() {
		stamp = now
	}
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	if !d.CreatedAt.IsZero() {
		ev.Props.SetDateTime(ical.PropCreated, d.CreatedAt.UTC())
	}
	if !d.UpdatedAt.IsZero() {
		ev.Props.SetDateTime(ical.PropLastModified, d.UpdatedAt.UTC())
	}

	if d.Title != "" {
		ev.Props.SetText(ical.PropSummary, d.Title)
	}
	if d.Description != "" {
		ev.Props.SetText(ical.PropDescription, d.Description)
	}
	if d.Location != "" {
		ev.Props.SetText(ical.PropLocation, d.Location)
	}
	if d.Notes != "" {
		ev.Props.SetText(ical.PropComment, d.Notes)
	}
	if d.Kind != "" {
		ev.Props.SetText(ical.PropCategories, strings.ToUpper(string(d.Kind)))
	}
	if d.Color != "" {
		ev.Props.SetText(ical.PropColor, d.Color)
	}

	timed := d.IsTimed()
	ev.Props.Set(dateProp(ical.PropDateTimeStart, d.StartDate, d.StartTime, !timed))
	switch {
	case !timed:
		// DTEND of an all-day event is exclusive.
		ev.Props.Set(dateProp(ical.PropDateTimeEnd, recurrence.AddDays(d.EndDate, 1), nil, true))
	case d.EndTime != nil:
		ev.Props.Set(dateProp(ical.PropDateTimeEnd, d.EndDate, d.EndTime, false))
	}

	for _, minutes := range d.ReminderOffsets {
		ev.Children = append(ev.Children, alarm(d, minutes))
	}
}

// dateProp renders date as a DATE value, or as a floating DATE-TIME at clock.
func dateProp(name string, date time.Time, clock *event.Clock, allDay bool) *ical.Prop {
	p := ical.NewProp(name)
	if allDay || clock == nil {
		p.Params.Set(ical.ParamValue, string(ical.ValueDate))
		p.Value = date.Format(dateFormat)
		return p
	}
	p.Value = clock.On(date).Format(floatingFormat)
	return p
}

func alarm(d *event.Definition, minutes int) *ical.Component {
	a := ical.NewComponent(ical.CompAlarm)
	a.Props.SetText(ical.PropAction, "DISPLAY")
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", minutes)
	if minutes < 0 {
		trigger.Value = fmt.Sprintf("PT%dM", -minutes)
	}
	a.Props.Set(trigger)
	desc := d.Title
	if desc == "" {
		desc = "Reminder"
	}
	a.Props.SetText(ical.PropDescription, desc)
	return a
}
