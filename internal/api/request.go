package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/calrecur/calendar"
	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

// definitionRequest is the body of POST /api/events. Dates are YYYY-MM-DD.
type definitionRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Notes       string `json:"notes"`

	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	StartTime *event.Clock `json:"start_time"`
	EndTime   *event.Clock `json:"end_time"`
	AllDay    bool         `json:"is_all_day"`

	Recurrence      recurrence.Rule `json:"recurrence"`
	RecurrenceEnd   string          `json:"recurrence_end"`
	RecurrenceCount int             `json:"recurrence_count"`

	CategoryID      string     `json:"category_id"`
	Color           string     `json:"color"`
	Kind            event.Kind `json:"event_kind"`
	ReminderOffsets []int      `json:"reminder_offsets"`
}

func (r definitionRequest) definition() (event.Definition, error) {
	// Stored rules degrade quietly; a client sending a broken one is told.
	if err := r.Recurrence.Err(); err != nil {
		return event.Definition{}, err
	}
	start, err := recurrence.ParseDate(r.StartDate)
	if err != nil {
		return event.Definition{}, fmt.Errorf("start_date: %w", err)
	}
	d := event.Definition{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Location:        r.Location,
		Notes:           r.Notes,
		StartDate:       start,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		AllDay:          r.AllDay,
		Recurrence:      r.Recurrence,
		RecurrenceCount: r.RecurrenceCount,
		CategoryID:      r.CategoryID,
		Color:           r.Color,
		Kind:            r.Kind,
		ReminderOffsets: r.ReminderOffsets,
	}
	if r.EndDate != "" {
		if d.EndDate, err = recurrence.ParseDate(r.EndDate); err != nil {
			return event.Definition{}, fmt.Errorf("end_date: %w", err)
		}
	}
	if r.RecurrenceEnd != "" {
		end, err := recurrence.ParseDate(r.RecurrenceEnd)
		if err != nil {
			return event.Definition{}, fmt.Errorf("recurrence_end: %w", err)
		}
		d.RecurrenceEnd = &end
	}
	return d, nil
}

// patchFields decode one JSON member each into a Patch. A null value clears
// nullable fields.
var patchFields = map[string]func(json.RawMessage, *calendar.Patch) error{
	"title":       stringField(func(p *calendar.Patch, v string) { p.Title = mo.Some(v) }),
	"description": stringField(func(p *calendar.Patch, v string) { p.Description = mo.Some(v) }),
	"location":    stringField(func(p *calendar.Patch, v string) { p.Location = mo.Some(v) }),
	"notes":       stringField(func(p *calendar.Patch, v string) { p.Notes = mo.Some(v) }),
	"category_id": stringField(func(p *calendar.Patch, v string) { p.CategoryID = mo.Some(v) }),
	"color":       stringField(func(p *calendar.Patch, v string) { p.Color = mo.Some(v) }),
	"event_kind":  stringField(func(p *calendar.Patch, v string) { p.Kind = mo.Some(event.Kind(v)) }),
	"start_date": func(raw json.RawMessage, p *calendar.Patch) error {
		d, err := decodeDate(raw)
		p.StartDate = mo.Some(d)
		return err
	},
	"end_date": func(raw json.RawMessage, p *calendar.Patch) error {
		d, err := decodeDate(raw)
		p.EndDate = mo.Some(d)
		return err
	},
	"start_time": func(raw json.RawMessage, p *calendar.Patch) error {
		var c *event.Clock
		err := json.Unmarshal(raw, &c)
		p.StartTime = mo.Some(c)
		return err
	},
	"end_time": func(raw json.RawMessage, p *calendar.Patch) error {
		var c *event.Clock
		err := json.Unmarshal(raw, &c)
		p.EndTime = mo.Some(c)
		return err
	},
	"is_all_day": func(raw json.RawMessage, p *calendar.Patch) error {
		var v bool
		err := json.Unmarshal(raw, &v)
		p.AllDay = mo.Some(v)
		return err
	},
	"reminder_offsets": func(raw json.RawMessage, p *calendar.Patch) error {
		var v []int
		err := json.Unmarshal(raw, &v)
		p.ReminderOffsets = mo.Some(v)
		return err
	},
	"recurrence": func(raw json.RawMessage, p *calendar.Patch) error {
		var r recurrence.Rule
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if err := r.Err(); err != nil {
			return err
		}
		p.Recurrence = mo.Some(r)
		return nil
	},
	"recurrence_end": func(raw json.RawMessage, p *calendar.Patch) error {
		if string(raw) == "null" {
			p.RecurrenceEnd = mo.Some[*time.Time](nil)
			return nil
		}
		d, err := decodeDate(raw)
		p.RecurrenceEnd = mo.Some(&d)
		return err
	},
	"recurrence_count": func(raw json.RawMessage, p *calendar.Patch) error {
		var v int
		err := json.Unmarshal(raw, &v)
		p.RecurrenceCount = mo.Some(v)
		return err
	},
}

// decodePatch reads a JSON object of changed fields. Unknown fields are an error.
func decodePatch(body []byte) (calendar.Patch, error) {
	var patch calendar.Patch
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return patch, fmt.Errorf("invalid patch: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		decode, ok := patchFields[k]
		if !ok {
			return calendar.Patch{}, fmt.Errorf("unknown field %q", k)
		}
		if err := decode(fields[k], &patch); err != nil {
			return calendar.Patch{}, fmt.Errorf("field %q: %w", k, err)
		}
	}
	return patch, nil
}

func stringField(set func(*calendar.Patch, string)) func(json.RawMessage, *calendar.Patch) error {
	return func(raw json.RawMessage, p *calendar.Patch) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		set(p, v)
		return nil
	}
}

func decodeDate(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	return recurrence.ParseDate(s)
}
