package calendar

import (
	"time"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
)

// OverrideKind tells how an override treats the master occurrence it targets.
type OverrideKind uint8

const (
	OverrideEdited OverrideKind = iota + 1
	OverrideCancelled
)

type overrideKey struct {
	parentID string
	day      int64 // days since the Unix epoch
}

func keyOf(parentID string, date time.Time) overrideKey {
	return overrideKey{parentID: parentID, day: recurrence.DateOf(date).Unix() / 86400}
}

// OverrideIndex maps (parent id, date) to the override registered for it.
// It is derived from the definitions on every expansion and never stored.
type OverrideIndex map[overrideKey]OverrideKind

// BuildOverrideIndex scans defs once for cancellation markers and edited
// instances. Should two overrides share a key, the cancellation wins.
func BuildOverrideIndex(defs []event.Definition) OverrideIndex {
	idx := make(OverrideIndex)
	for i := range defs {
		d := &defs[i]
		if d.OverrideOf == nil {
			continue
		}
		k := keyOf(d.OverrideOf.ParentID, d.OverrideOf.Date)
		if d.Cancelled {
			idx[k] = OverrideCancelled
		} else if _, taken := idx[k]; !taken {
			idx[k] = OverrideEdited
		}
	}
	return idx
}

// Lookup returns the override registered for parentID on date.
func (idx OverrideIndex) Lookup(parentID string, date time.Time) (OverrideKind, bool) {
	k, ok := idx[keyOf(parentID, date)]
	return k, ok
}
