package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/samber/mo"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

// columnList is the column order shared by encodeRow and decodeRow.
const columnList = "id, title, description, location, notes, " +
	"start_date, end_date, start_time, end_time, is_all_day, " +
	"recurrence_kind, recurrence_rule, recurrence_end, recurrence_count, " +
	"is_cancelled, override_parent_id, override_date, " +
	"category_id, color, event_kind, reminder_offsets, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

// decodeRow scans one row into a definition. The recurrence rule is parsed
// here, once, and a malformed rule comes back as its fallback.
func decodeRow(row scanner) mo.Result[event.Definition] {
	var (
		d                  event.Definition
		startTime, endTime sql.NullString
		kind, rule         string
		recurrenceEnd      sql.NullTime
		parentID           sql.NullString
		overrideDate       sql.NullTime
		eventKind          string
		offsets            pq.Int64Array
	)
	err := row.Scan(
		&d.ID, &d.Title, &d.Description, &d.Location, &d.Notes,
		&d.StartDate, &d.EndDate, &startTime, &endTime, &d.AllDay,
		&kind, &rule, &recurrenceEnd, &d.RecurrenceCount,
		&d.Cancelled, &parentID, &overrideDate,
		&d.CategoryID, &d.Color, &eventKind, &offsets, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return mo.Err[event.Definition](err)
	}

	d.StartDate = recurrence.DateOf(d.StartDate)
	d.EndDate = recurrence.DateOf(d.EndDate)
	d.Kind = event.Kind(eventKind)
	// Malformed rules are kept as their fallback; Err() carries the reason.
	d.Recurrence, _ = recurrence.ParseRule(kind, []byte(rule))

	if d.StartTime, err = nullClock(startTime); err != nil {
		return mo.Err[event.Definition](fmt.Errorf("definition %s: start_time: %w", d.ID, err))
	}
	if d.EndTime, err = nullClock(endTime); err != nil {
		return mo.Err[event.Definition](fmt.Errorf("definition %s: end_time: %w", d.ID, err))
	}
	if recurrenceEnd.Valid {
		end := recurrence.DateOf(recurrenceEnd.Time)
		d.RecurrenceEnd = &end
	}
	if parentID.Valid {
		if !overrideDate.Valid {
			return mo.Err[event.Definition](fmt.Errorf("definition %s: override without date", d.ID))
		}
		d.OverrideOf = &event.OverrideRef{ParentID: parentID.String, Date: recurrence.DateOf(overrideDate.Time)}
	}
	if offsets != nil {
		d.ReminderOffsets = make([]int, len(offsets))
		for i, o := range offsets {
			d.ReminderOffsets[i] = int(o)
		}
	}
	return mo.Ok(d)
}

// encodeRow returns the arguments for columnList in order. Dates are sent as
// plain YYYY-MM-DD strings so the session time zone cannot shift them.
func encodeRow(d event.Definition) ([]any, error) {
	rule, err := encodeRule(d.Recurrence)
	if err != nil {
		return nil, err
	}

	var parentID, overrideDate any
	if d.OverrideOf != nil {
		parentID = d.OverrideOf.ParentID
		overrideDate = formatDate(d.OverrideOf.Date)
	}
	var recurrenceEnd any
	if d.RecurrenceEnd != nil {
		recurrenceEnd = formatDate(*d.RecurrenceEnd)
	}
	var offsets pq.Int64Array
	if d.ReminderOffsets != nil {
		offsets = make(pq.Int64Array, len(d.ReminderOffsets))
		for i, o := range d.ReminderOffsets {
			offsets[i] = int64(o)
		}
	}

	return []any{
		d.ID, d.Title, d.Description, d.Location, d.Notes,
		formatDate(d.StartDate), formatDate(d.EndDate), clockValue(d.StartTime), clockValue(d.EndTime), d.AllDay,
		kindOf(d.Recurrence), rule, recurrenceEnd, d.RecurrenceCount,
		d.Cancelled, parentID, overrideDate,
		d.CategoryID, d.Color, string(d.Kind), offsets, timestamp(d.CreatedAt), timestamp(d.UpdatedAt),
	}, nil
}

func encodeRule(r recurrence.Rule) (string, error) {
	if !r.IsRecurring() {
		return "", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func kindOf(r recurrence.Rule) string {
	if !r.IsRecurring() {
		return string(recurrence.None)
	}
	return string(r.Kind)
}

func nullClock(s sql.NullString) (*event.Clock, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	c, err := event.ParseClock(s.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func clockValue(c *event.Clock) any {
	if c == nil {
		return nil
	}
	return c.String()
}

func formatDate(t time.Time) string {
	return t.Format(recurrence.DateLayout)
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
