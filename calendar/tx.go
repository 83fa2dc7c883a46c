package calendar

import (
	"time"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/storage"
)

// tx collects the writes of one mutation on a private copy of a snapshot.
// Nothing is visible to readers until commit.
type tx struct {
	now     time.Time
	defs    []event.Definition
	byID    map[string]int
	removed map[string]bool
	// touched keeps the order in which ids were written, for the changeset.
	touched []string
	written map[string]bool
}

func newTx(s *snapshot, now time.Time) *tx {
	t := &tx{
		now:     now,
		defs:    append([]event.Definition(nil), s.defs...),
		byID:    make(map[string]int, len(s.byID)),
		removed: make(map[string]bool),
		written: make(map[string]bool),
	}
	for id, i := range s.byID {
		t.byID[id] = i
	}
	return t
}

// get returns a definition that is still part of the collection. The
// result is shared; callers clone before changing it.
func (t *tx) get(id string) (*event.Definition, bool) {
	i, ok := t.byID[id]
	if !ok || t.removed[id] {
		return nil, false
	}
	return &t.defs[i], true
}

// put stores d, replacing any definition with the same id.
func (t *tx) put(d event.Definition) {
	if i, ok := t.byID[d.ID]; ok {
		t.defs[i] = d
	} else {
		t.byID[d.ID] = len(t.defs)
		t.defs = append(t.defs, d)
	}
	delete(t.removed, d.ID)
	t.touch(d.ID)
}

func (t *tx) remove(id string) {
	if _, ok := t.get(id); !ok {
		return
	}
	t.removed[id] = true
	t.touch(id)
}

func (t *tx) touch(id string) {
	if !t.written[id] {
		t.written[id] = true
		t.touched = append(t.touched, id)
	}
}

func (t *tx) changed() bool {
	return len(t.touched) > 0
}

// overrides returns the live overrides of a master in collection order.
func (t *tx) overrides(parentID string) []*event.Definition {
	var out []*event.Definition
	for i := range t.defs {
		d := &t.defs[i]
		if d.OverrideOf != nil && d.OverrideOf.ParentID == parentID && !t.removed[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// overrideAt returns the override of parentID for date, if any.
func (t *tx) overrideAt(parentID string, date time.Time) (*event.Definition, bool) {
	for _, d := range t.overrides(parentID) {
		if d.OverrideOf.Date.Equal(date) {
			return d, true
		}
	}
	return nil, false
}

// commit builds the next snapshot, dropping removed definitions.
func (t *tx) commit(revision uint64) *snapshot {
	defs := make([]event.Definition, 0, len(t.defs))
	for _, d := range t.defs {
		if !t.removed[d.ID] {
			defs = append(defs, d)
		}
	}
	return newSnapshot(revision, defs)
}

func (t *tx) changeset() storage.Changeset {
	var change storage.Changeset
	for _, id := range t.touched {
		if t.removed[id] {
			change.Deleted = append(change.Deleted, id)
			continue
		}
		d, _ := t.get(id)
		change.Upserted = append(change.Upserted, *d)
	}
	return change
}
