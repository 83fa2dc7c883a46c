package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

// Scope is the breadth of an edit or delete.
type Scope int

const (
	ScopeSingle Scope = iota
	ScopeFuture
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeSingle:
		return "single"
	case ScopeFuture:
		return "future"
	case ScopeAll:
		return "all"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope accepts "single", "future" (or "this-and-future") and "all".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "this", "":
		return ScopeSingle, nil
	case "future", "this-and-future", "following":
		return ScopeFuture, nil
	case "all":
		return ScopeAll, nil
	default:
		return 0, fmt.Errorf("unknown scope %q", s)
	}
}

// Create adds a standalone event or a master. An empty ID is generated;
// overrides are only created through the scoped edits and deletes.
func (c *Calendar) Create(ctx context.Context, def event.Definition) (event.Definition, error) {
	var created event.Definition
	err := c.mutate(ctx, "create", func(t *tx) error {
		d := def.Clone()
		if d.ID == "" {
			d.ID = c.newID()
		} else if _, exists := t.get(d.ID); exists {
			return invalidDefinition(fmt.Errorf("%w: id %q already exists", event.ErrInvalid, d.ID))
		}
		if d.OverrideOf != nil || d.Cancelled {
			return invalidDefinition(fmt.Errorf("%w: overrides are created by scoped edits", event.ErrInvalid))
		}
		d.StartDate = recurrence.DateOf(d.StartDate)
		if d.EndDate.IsZero() {
			d.EndDate = d.StartDate
		}
		d.EndDate = recurrence.DateOf(d.EndDate)
		if d.Recurrence.Kind == "" {
			d.Recurrence.Kind = recurrence.None
		}
		d.CreatedAt, d.UpdatedAt = t.now, t.now

		if err := d.Validate(); err != nil {
			return invalidDefinition(err)
		}
		t.put(d)
		created = d
		return nil
	})
	return created.Clone(), err
}

// Edit dispatches to the edit of the given scope.
func (c *Calendar) Edit(ctx context.Context, scope Scope, id string, target time.Time, patch Patch) (event.Definition, error) {
	switch scope {
	case ScopeSingle:
		return c.EditSingle(ctx, id, target, patch)
	case ScopeFuture:
		return c.EditFuture(ctx, id, target, patch)
	case ScopeAll:
		return c.EditAll(ctx, id, target, patch)
	default:
		return event.Definition{}, fmt.Errorf("unknown scope %v", scope)
	}
}

// Delete dispatches to the delete of the given scope.
func (c *Calendar) Delete(ctx context.Context, scope Scope, id string, target time.Time) error {
	switch scope {
	case ScopeSingle:
		return c.DeleteSingle(ctx, id, target)
	case ScopeFuture:
		return c.DeleteFuture(ctx, id, target)
	case ScopeAll:
		return c.DeleteAll(ctx, id, target)
	default:
		return fmt.Errorf("unknown scope %v", scope)
	}
}

// EditSingle changes one occurrence of a master on target by writing an
// edited instance for (master, target). The master is left untouched. An
// existing override for that date is replaced under its own id.
//
// A standalone event or an edited instance named by id is edited in place.
// The date of an occurrence that belongs to a series cannot be patched.
func (c *Calendar) EditSingle(ctx context.Context, id string, target time.Time, patch Patch) (event.Definition, error) {
	var out event.Definition
	err := c.mutate(ctx, "edit_single", func(t *tx) error {
		d, err := c.resolve(t, id, &target, ScopeSingle)
		if err != nil {
			return err
		}
		if patch.touchesDates() && c.attached(t, d) {
			return invalidDefinition(
				fmt.Errorf("%w: dates cannot be patched for a single occurrence of a series", event.ErrInvalid))
		}
		if !d.IsMaster() {
			out, err = editInPlace(t, d, patch)
			return err
		}
		if err := c.checkOccurrence(d, target); err != nil {
			return err
		}

		inst := d.Clone()
		inst.ID = c.newID()
		inst.CreatedAt = t.now
		inst.Recurrence = recurrence.Rule{Kind: recurrence.None}
		inst.RecurrenceEnd = nil
		inst.RecurrenceCount = 0
		inst.StartDate = target
		inst.EndDate = recurrence.AddDays(target, d.SpanDays())
		if prev, ok := t.overrideAt(d.ID, target); ok {
			if prev.IsEditedInstance() {
				// Successive edits of one date accumulate.
				inst = prev.Clone()
			}
			inst.ID = prev.ID
			inst.CreatedAt = prev.CreatedAt
		}
		inst.Cancelled = false
		inst.OverrideOf = &event.OverrideRef{ParentID: d.ID, Date: target}

		patch.apply(&inst)
		inst.UpdatedAt = t.now
		if err := inst.Validate(); err != nil {
			return invalidDefinition(err)
		}
		t.put(inst)
		out = inst
		return nil
	})
	return out.Clone(), err
}

// EditFuture splits a master at target: the original series ends the day
// before and a new master carrying the patch continues from target with the
// original rule and termination. The new master is returned.
//
// The new series inherits the count still left after target, and overrides
// dated on or after target move to it. A target on or before the first
// occurrence edits the whole series. target must be an occurrence, and for
// monthly and yearly series one that falls on the anchor day.
func (c *Calendar) EditFuture(ctx context.Context, id string, target time.Time, patch Patch) (event.Definition, error) {
	if patch.touchesDates() {
		return event.Definition{}, invalidDefinition(
			fmt.Errorf("%w: dates cannot be patched for this and future occurrences", event.ErrInvalid))
	}

	var out event.Definition
	err := c.mutate(ctx, "edit_future", func(t *tx) error {
		d, err := c.resolve(t, id, &target, ScopeFuture)
		if err != nil {
			return err
		}
		if !d.IsMaster() {
			out, err = editInPlace(t, d, patch)
			return err
		}
		if !target.After(d.StartDate) {
			out, err = c.editAll(t, d, patch)
			return err
		}
		if err := c.checkOccurrence(d, target); err != nil {
			return err
		}
		if clamped(d, target) {
			return invalidRange("%s is a shortened month-end occurrence of %s; split at an occurrence on day %d",
				target.Format(recurrence.DateLayout), d.ID, d.StartDate.Day())
		}

		before, err := c.splitPoint(d, target)
		if err != nil {
			return err
		}

		old := d.Clone()
		end := recurrence.AddDays(target, -1)
		old.RecurrenceEnd = &end
		old.UpdatedAt = t.now

		next := d.Clone()
		next.ID = c.newID()
		next.StartDate = target
		next.EndDate = recurrence.AddDays(target, d.SpanDays())
		if d.RecurrenceCount > 0 {
			next.RecurrenceCount = d.RecurrenceCount - before
		}
		next.CreatedAt, next.UpdatedAt = t.now, t.now
		patch.apply(&next)

		if err := old.Validate(); err != nil {
			return invalidDefinition(err)
		}
		if err := next.Validate(); err != nil {
			return invalidDefinition(err)
		}

		for _, o := range t.overrides(d.ID) {
			if o.OverrideOf.Date.Before(target) {
				continue
			}
			moved := o.Clone()
			moved.OverrideOf.ParentID = next.ID
			moved.UpdatedAt = t.now
			t.put(moved)
		}
		t.put(old)
		t.put(next)
		out = next
		return nil
	})
	return out.Clone(), err
}

// EditAll changes a master in place, rule and termination included, and
// drops its edited instances. Cancellation markers stay in force.
func (c *Calendar) EditAll(ctx context.Context, id string, target time.Time, patch Patch) (event.Definition, error) {
	var out event.Definition
	err := c.mutate(ctx, "edit_all", func(t *tx) error {
		d, err := c.resolve(t, id, &target, ScopeAll)
		if err != nil {
			return err
		}
		if !d.IsMaster() {
			out, err = editInPlace(t, d, patch)
			return err
		}
		out, err = c.editAll(t, d, patch)
		return err
	})
	return out.Clone(), err
}

func (c *Calendar) editAll(t *tx, master *event.Definition, patch Patch) (event.Definition, error) {
	m := master.Clone()
	patch.apply(&m)
	m.UpdatedAt = t.now
	if err := m.Validate(); err != nil {
		return event.Definition{}, invalidDefinition(err)
	}
	if !m.Recurrence.IsRecurring() {
		// A master turned into a one-off leaves nothing for overrides to target.
		for _, o := range t.overrides(m.ID) {
			t.remove(o.ID)
		}
	} else {
		for _, o := range t.overrides(m.ID) {
			if o.IsEditedInstance() {
				t.remove(o.ID)
			}
		}
	}
	t.put(m)
	return m, nil
}

func editInPlace(t *tx, d *event.Definition, patch Patch) (event.Definition, error) {
	e := d.Clone()
	patch.apply(&e)
	e.UpdatedAt = t.now
	if err := e.Validate(); err != nil {
		return event.Definition{}, invalidDefinition(err)
	}
	t.put(e)
	return e, nil
}

// DeleteSingle cancels the occurrence of a master on target. An edited
// instance for that date is replaced by the marker; an existing marker makes
// the call a no-op.
//
// A standalone event named by id is removed; an edited instance named by id
// becomes a cancellation marker for its date.
func (c *Calendar) DeleteSingle(ctx context.Context, id string, target time.Time) error {
	err := c.mutate(ctx, "delete_single", func(t *tx) error {
		d, err := c.resolve(t, id, &target, ScopeSingle)
		if err != nil {
			return err
		}
		switch {
		case d.IsCancellation():
			return nil
		case d.IsEditedInstance():
			t.put(marker(d.ID, d.OverrideOf.ParentID, d.OverrideOf.Date, d.CreatedAt, t.now))
			return nil
		case !d.IsMaster():
			t.remove(d.ID)
			return nil
		}

		if err := c.checkOccurrence(d, target); err != nil {
			return err
		}
		prev, ok := t.overrideAt(d.ID, target)
		switch {
		case ok && prev.IsCancellation():
			return nil
		case ok:
			t.put(marker(prev.ID, d.ID, target, prev.CreatedAt, t.now))
		default:
			t.put(marker(c.newID(), d.ID, target, t.now, t.now))
		}
		return nil
	})
	return err
}

// DeleteFuture ends a master the day before target and drops the overrides
// it can no longer reach. A target on or before the first occurrence
// deletes the whole series; a target after the series end changes nothing.
func (c *Calendar) DeleteFuture(ctx context.Context, id string, target time.Time) error {
	err := c.mutate(ctx, "delete_future", func(t *tx) error {
		d, err := c.resolve(t, id, &target, ScopeFuture)
		if err != nil {
			return err
		}
		if !d.IsMaster() {
			t.remove(d.ID)
			return nil
		}
		if !target.After(d.StartDate) {
			deleteSeries(t, d.ID)
			return nil
		}
		if _, err := c.splitPoint(d, target); err != nil {
			// Already over by then.
			return nil
		}

		m := d.Clone()
		end := recurrence.AddDays(target, -1)
		m.RecurrenceEnd = &end
		m.UpdatedAt = t.now
		t.put(m)
		for _, o := range t.overrides(d.ID) {
			if !o.OverrideOf.Date.Before(target) {
				t.remove(o.ID)
			}
		}
		return nil
	})
	return err
}

// DeleteAll removes a master together with every override referencing it.
func (c *Calendar) DeleteAll(ctx context.Context, id string, target time.Time) error {
	err := c.mutate(ctx, "delete_all", func(t *tx) error {
		d, err := c.resolve(t, id, &target, ScopeAll)
		if err != nil {
			return err
		}
		deleteSeries(t, d.ID)
		return nil
	})
	return err
}

func deleteSeries(t *tx, id string) {
	for _, o := range t.overrides(id) {
		t.remove(o.ID)
	}
	t.remove(id)
}

func marker(id, parentID string, date, created, now time.Time) event.Definition {
	return event.Definition{
		ID:         id,
		StartDate:  date,
		EndDate:    date,
		Recurrence: recurrence.Rule{Kind: recurrence.None},
		Cancelled:  true,
		OverrideOf: &event.OverrideRef{ParentID: parentID, Date: date},
		CreatedAt:  created,
		UpdatedAt:  now,
	}
}

// resolve finds the definition an operation applies to and normalizes
// target. Overrides resolve to their master with their own date, except an
// edited instance in single scope, which is its own target.
func (c *Calendar) resolve(t *tx, id string, target *time.Time, scope Scope) (*event.Definition, error) {
	d, ok := t.get(id)
	if !ok {
		return nil, notFound(id)
	}
	*target = recurrence.DateOf(*target)

	if d.OverrideOf != nil && !(scope == ScopeSingle && d.IsEditedInstance()) {
		parent, ok := t.get(d.OverrideOf.ParentID)
		if !ok {
			if d.IsEditedInstance() {
				// Orphaned instances behave like standalone events.
				return d, nil
			}
			return nil, notFound(d.OverrideOf.ParentID)
		}
		*target = d.OverrideOf.Date
		return parent, nil
	}
	if d.IsMaster() && scope != ScopeAll && target.IsZero() {
		return nil, invalidRange("a target date is required for %s scope", scope)
	}
	return d, nil
}

// checkOccurrence rejects a target the master never produces.
func (c *Calendar) checkOccurrence(d *event.Definition, target time.Time) error {
	dates, _ := c.expander.Engine().Between(d.Series(), target, target)
	if len(dates) == 0 {
		return invalidRange("%s is not an occurrence of %s", target.Format(recurrence.DateLayout), d.ID)
	}
	return nil
}

// attached reports whether d is tied to a date of a live series: a master,
// or an edited instance whose parent still exists.
func (c *Calendar) attached(t *tx, d *event.Definition) bool {
	if d.IsMaster() {
		return true
	}
	if d.OverrideOf == nil {
		return false
	}
	_, ok := t.get(d.OverrideOf.ParentID)
	return ok
}

// clamped reports whether target is a monthly or yearly occurrence pulled
// back to the end of a shorter month. A series anchored there would keep the
// shorter day.
func clamped(d *event.Definition, target time.Time) bool {
	switch d.Recurrence.Kind {
	case recurrence.Monthly, recurrence.Yearly:
		return target.Day() != d.StartDate.Day()
	default:
		return false
	}
}

// splitPoint returns how many occurrences precede target, or an error when
// the series is already over by target.
func (c *Calendar) splitPoint(d *event.Definition, target time.Time) (int, error) {
	if d.RecurrenceEnd != nil && target.After(recurrence.DateOf(*d.RecurrenceEnd)) {
		return 0, invalidRange("series %s ends before %s", d.ID, target.Format(recurrence.DateLayout))
	}
	before := c.expander.Engine().CountBefore(d.Series(), target)
	if d.RecurrenceCount > 0 && before >= d.RecurrenceCount {
		return 0, invalidRange("series %s ends before %s", d.ID, target.Format(recurrence.DateLayout))
	}
	return before, nil
}
