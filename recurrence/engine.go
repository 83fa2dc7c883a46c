package recurrence

import (
	"time"
)

// Engine steps recurring series into concrete dates.
type Engine struct {
	config EngineConfig
}

// NewEngine creates a new recurrence engine instance
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Between returns the dates of s within [from, to], both inclusive.
// truncated reports that the iteration ceiling stopped the walk early.
func (e *Engine) Between(s Series, from, to time.Time) (dates []time.Time, truncated bool) {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return nil, false
	}

	truncated = e.walk(s, from, to, func(d time.Time) bool {
		dates = append(dates, d)
		return true
	})
	return dates, truncated
}

// Upcoming returns at most limit dates of s on or after from.
func (e *Engine) Upcoming(s Series, from time.Time, limit int) (dates []time.Time, truncated bool) {
	if limit <= 0 {
		limit = e.config.DefaultUpcomingLimit
	}

	truncated = e.walk(s, DateOf(from), time.Time{}, func(d time.Time) bool {
		dates = append(dates, d)
		return len(dates) < limit
	})
	return dates, truncated
}

// CountBefore returns how many matching dates s produces strictly before the given date.
func (e *Engine) CountBefore(s Series, before time.Time) int {
	before = DateOf(before)
	if s.Until != nil {
		if limit := AddDays(DateOf(*s.Until), 1); limit.Before(before) {
			before = limit
		}
	}

	c := newCursor(s)
	c.seek(before)
	if s.Count > 0 && c.matched > s.Count {
		return s.Count
	}
	return c.matched
}

// walk visits every matching date of s from the first candidate on or after
// from, stopping at the series termination, at stop (when non-zero), when
// visit returns false, or at the iteration ceiling. It returns true only
// when the ceiling was hit.
func (e *Engine) walk(s Series, from, stop time.Time, visit func(time.Time) bool) bool {
	c := newCursor(s)
	c.seek(from)
	if !s.Rule.IsRecurring() && c.step > 0 {
		return false
	}

	for i := 0; ; i++ {
		if s.Count > 0 && c.matched >= s.Count {
			return false
		}
		d := c.candidate()
		if s.Until != nil && d.After(DateOf(*s.Until)) {
			return false
		}
		if !stop.IsZero() && d.After(stop) {
			return false
		}
		if i >= e.config.MaxIterations {
			return true
		}
		if c.matches(d) {
			c.matched++
			if !visit(d) {
				return false
			}
		}
		if !c.advance() {
			return false
		}
	}
}

// cursor walks the candidate dates of a series. For fixed-step rules step is
// the candidate index; for weekday-filtered rules it is the day offset from
// the anchor.
type cursor struct {
	start   time.Time
	rule    Rule
	step    int
	matched int // matching dates before the current candidate
}

func newCursor(s Series) *cursor {
	return &cursor{start: DateOf(s.Start), rule: s.Rule}
}

func (c *cursor) candidate() time.Time {
	if c.rule.filtersWeekdays() {
		return AddDays(c.start, c.step)
	}
	return c.nth(c.step)
}

// nth returns the k-th candidate of a fixed-step rule, computed from the
// anchor so that month-end clamping does not drift.
func (c *cursor) nth(k int) time.Time {
	n := k * c.rule.interval()
	switch c.rule.Kind {
	case Weekly:
		return AddDays(c.start, 7*n)
	case Monthly:
		return AddMonths(c.start, n)
	case Yearly:
		return AddMonths(c.start, 12*n)
	default:
		return AddDays(c.start, n)
	}
}

func (c *cursor) matches(d time.Time) bool {
	if c.rule.filtersWeekdays() {
		return c.rule.Weekdays.Has(d.Weekday())
	}
	return true
}

// advance moves to the next candidate. A non-recurring rule has exactly one.
func (c *cursor) advance() bool {
	if !c.rule.IsRecurring() {
		return false
	}
	c.step++
	return true
}

// seek positions the cursor on the first candidate on or after from,
// accounting for the matches it skipped.
func (c *cursor) seek(from time.Time) {
	if !from.After(c.start) {
		return
	}
	if !c.rule.IsRecurring() {
		c.step, c.matched = 1, 1
		return
	}

	days := DaysBetween(c.start, from)
	switch {
	case c.rule.filtersWeekdays():
		weeks := days / 7
		c.step = weeks * 7
		c.matched = weeks * c.rule.Weekdays.Len()
		for c.step < days {
			if c.matches(c.candidate()) {
				c.matched++
			}
			c.step++
		}
	case c.rule.Kind == Monthly || c.rule.Kind == Yearly:
		unit := c.rule.interval()
		if c.rule.Kind == Yearly {
			unit *= 12
		}
		k := floorDiv(monthsBetween(c.start, from), unit)
		if k < 0 {
			k = 0
		}
		for c.nth(k).Before(from) {
			k++
		}
		c.step, c.matched = k, k
	default:
		unit := c.rule.interval()
		if c.rule.Kind == Weekly {
			unit *= 7
		}
		k := ceilDiv(days, unit)
		c.step, c.matched = k, k
	}
}
