package event

import (
	"time"

	"github.com/cyp0633/calrecur/recurrence"
)

// Kind classifies a definition for display. It plays no part in expansion.
type Kind string

const (
	KindPersonal    Kind = "personal"
	KindWork        Kind = "work"
	KindBirthday    Kind = "birthday"
	KindHoliday     Kind = "holiday"
	KindAnniversary Kind = "anniversary"
	KindOther       Kind = "other"
)

// OverrideRef ties an override to one occurrence of its parent master.
type OverrideRef struct {
	ParentID string    `json:"parent_id"`
	Date     time.Time `json:"date"`
}

// Definition is the persisted record a user edits. Depending on its fields
// it is a normal event, a recurring master, an edited instance of one
// master occurrence, or a cancellation marker.
//
// Dates are naive calendar dates held as midnight UTC.
type Definition struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Notes       string `json:"notes,omitempty"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	StartTime *Clock    `json:"start_time,omitempty"`
	EndTime   *Clock    `json:"end_time,omitempty"`
	AllDay    bool      `json:"is_all_day"`

	Recurrence      recurrence.Rule `json:"recurrence"`
	RecurrenceEnd   *time.Time      `json:"recurrence_end,omitempty"`
	RecurrenceCount int             `json:"recurrence_count,omitempty"`

	Cancelled  bool         `json:"is_cancelled,omitempty"`
	OverrideOf *OverrideRef `json:"override_of,omitempty"`

	CategoryID      string `json:"category_id,omitempty"`
	Color           string `json:"color,omitempty"`
	Kind            Kind   `json:"event_kind,omitempty"`
	ReminderOffsets []int  `json:"reminder_offsets,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMaster reports whether d is a recurring series definition.
func (d *Definition) IsMaster() bool {
	return d.Recurrence.IsRecurring() && d.OverrideOf == nil
}

// IsOverride reports whether d replaces or suppresses one master occurrence.
func (d *Definition) IsOverride() bool {
	return d.OverrideOf != nil
}

// IsCancellation reports whether d is a cancellation marker.
func (d *Definition) IsCancellation() bool {
	return d.OverrideOf != nil && d.Cancelled
}

// IsEditedInstance reports whether d is a displayable single-occurrence edit.
func (d *Definition) IsEditedInstance() bool {
	return d.OverrideOf != nil && !d.Cancelled
}

// IsTimed reports whether d has a time of day that matters for layout.
func (d *Definition) IsTimed() bool {
	return !d.AllDay && d.StartTime != nil
}

// SpanDays is the number of days the definition lasts beyond its start date.
func (d *Definition) SpanDays() int {
	if span := recurrence.DaysBetween(d.StartDate, d.EndDate); span > 0 {
		return span
	}
	return 0
}

// Series returns the recurrence series anchored at the definition's start date.
func (d *Definition) Series() recurrence.Series {
	return recurrence.Series{
		Start: d.StartDate,
		Rule:  d.Recurrence,
		Until: d.RecurrenceEnd,
		Count: d.RecurrenceCount,
	}
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (d Definition) Clone() Definition {
	out := d
	if d.StartTime != nil {
		t := *d.StartTime
		out.StartTime = &t
	}
	if d.EndTime != nil {
		t := *d.EndTime
		out.EndTime = &t
	}
	if d.RecurrenceEnd != nil {
		t := *d.RecurrenceEnd
		out.RecurrenceEnd = &t
	}
	if d.OverrideOf != nil {
		ref := *d.OverrideOf
		out.OverrideOf = &ref
	}
	if d.ReminderOffsets != nil {
		out.ReminderOffsets = append([]int(nil), d.ReminderOffsets...)
	}
	return out
}

// Occurrence is one concrete, ephemeral instance of a definition on a date.
// It is produced fresh by every expansion and never persisted.
type Occurrence struct {
	// SourceID is the master's id for generated occurrences and the
	// definition's own id for edited instances and standalone events.
	SourceID string `json:"source_id"`
	// MasterID is the series id for generated occurrences and edited
	// instances, empty for standalone events.
	MasterID string `json:"master_id,omitempty"`

	Date      time.Time `json:"date"`
	EndDate   time.Time `json:"end_date"`
	StartTime *Clock    `json:"start_time,omitempty"`
	EndTime   *Clock    `json:"end_time,omitempty"`
	AllDay    bool      `json:"is_all_day"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	Color       string `json:"color,omitempty"`
	Kind        Kind   `json:"event_kind,omitempty"`

	ReminderOffsets []int `json:"reminder_offsets,omitempty"`

	Recurring bool `json:"recurring"`
	Override  bool `json:"override"`
}

// IsTimed reports whether the occurrence sorts among timed events.
func (o *Occurrence) IsTimed() bool {
	return !o.AllDay && o.StartTime != nil
}

// NewOccurrence materializes d on date, keeping d's day span.
func NewOccurrence(d *Definition, date time.Time) Occurrence {
	occ := Occurrence{
		SourceID:    d.ID,
		Date:        date,
		EndDate:     recurrence.AddDays(date, d.SpanDays()),
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		AllDay:      d.AllDay,
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Notes:       d.Notes,
		CategoryID:  d.CategoryID,
		Color:       d.Color,
		Kind:        d.Kind,
		Recurring:   d.Recurrence.IsRecurring(),
	}
	if d.ReminderOffsets != nil {
		occ.ReminderOffsets = append([]int(nil), d.ReminderOffsets...)
	}
	if d.OverrideOf != nil {
		occ.MasterID = d.OverrideOf.ParentID
		occ.Override = true
	} else if occ.Recurring {
		occ.MasterID = d.ID
	}
	if occ.StartTime != nil {
		t := *occ.StartTime
		occ.StartTime = &t
	}
	if occ.EndTime != nil {
		t := *occ.EndTime
		occ.EndTime = &t
	}
	return occ
}
