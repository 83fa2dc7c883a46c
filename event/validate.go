package event

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid definition")

// Validate checks the structural invariants of a definition.
func (d *Definition) Validate() error {
	if d.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalid)
	}
	if d.EndDate.Before(d.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s",
			ErrInvalid, d.EndDate.Format("2006-01-02"), d.StartDate.Format("2006-01-02"))
	}
	if d.SpanDays() == 0 && d.StartTime != nil && d.EndTime != nil && d.EndTime.Minutes() < d.StartTime.Minutes() {
		return fmt.Errorf("%w: end time %s is before start time %s", ErrInvalid, d.EndTime, d.StartTime)
	}
	if !d.Recurrence.Kind.Valid() {
		return fmt.Errorf("%w: unknown recurrence kind %q", ErrInvalid, d.Recurrence.Kind)
	}
	if d.Recurrence.Interval < 0 {
		return fmt.Errorf("%w: recurrence interval %d is negative", ErrInvalid, d.Recurrence.Interval)
	}
	if d.RecurrenceCount < 0 {
		return fmt.Errorf("%w: recurrence count %d is negative", ErrInvalid, d.RecurrenceCount)
	}
	if d.RecurrenceEnd != nil && d.RecurrenceEnd.Before(d.StartDate) {
		return fmt.Errorf("%w: recurrence ends before the series starts", ErrInvalid)
	}

	if d.OverrideOf != nil {
		if d.Recurrence.IsRecurring() {
			return fmt.Errorf("%w: an override cannot recur", ErrInvalid)
		}
		if d.OverrideOf.ParentID == "" {
			return fmt.Errorf("%w: override has no parent", ErrInvalid)
		}
		if d.OverrideOf.ParentID == d.ID {
			return fmt.Errorf("%w: definition overrides itself", ErrInvalid)
		}
	} else if d.Cancelled {
		return fmt.Errorf("%w: only overrides can be cancelled", ErrInvalid)
	}
	return nil
}
