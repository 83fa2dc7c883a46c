package recurrence

import (
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the calendar field a Rule steps along.
type Kind string

const (
	None    Kind = "none"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
	Custom  Kind = "custom"
)

// Valid reports whether k is one of the known kinds. The empty kind is treated as None.
func (k Kind) Valid() bool {
	switch k {
	case "", None, Daily, Weekly, Monthly, Yearly, Custom:
		return true
	}
	return false
}

// WeekdaySet is a bitmask of time.Weekday values.
type WeekdaySet uint8

// weekdayCodes are the two-letter RFC 5545 codes indexed by time.Weekday.
var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// NewWeekdaySet builds a set from the given days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			s |= 1 << uint(d)
		}
	}
	return s
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Len returns the number of days in the set.
func (s WeekdaySet) Len() int {
	return bits.OnesCount8(uint8(s) & 0x7f)
}

func (s WeekdaySet) IsEmpty() bool {
	return s.Len() == 0
}

// Days returns the members Monday first, the order users read a week in.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	days := s.Days()
	codes := make([]string, 0, len(days))
	for _, d := range days {
		codes = append(codes, weekdayCodes[d])
	}
	return strings.Join(codes, ",")
}

// Rule describes how an event definition repeats.
//
// The zero Rule does not repeat. Interval values below one are read as one.
type Rule struct {
	Kind     Kind
	Interval int
	Weekdays WeekdaySet

	// err is set when the rule was decoded from a malformed payload and
	// replaced by its fallback.
	err error
}

// Every returns a rule stepping interval units of kind.
func Every(kind Kind, interval int) Rule {
	return Rule{Kind: kind, Interval: interval}
}

// OnWeekdays returns a custom rule that matches the given days of every week.
func OnWeekdays(days ...time.Weekday) Rule {
	return Rule{Kind: Custom, Interval: 1, Weekdays: NewWeekdaySet(days...)}
}

// IsRecurring reports whether the rule produces more than one date.
func (r Rule) IsRecurring() bool {
	return r.Kind != "" && r.Kind != None
}

// Err returns the decode error that forced this rule to its fallback, if any.
func (r Rule) Err() error {
	return r.err
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// filtersWeekdays reports whether the rule steps one day at a time and
// emits only the days in its weekday set.
func (r Rule) filtersWeekdays() bool {
	return r.Kind == Custom && !r.Weekdays.IsEmpty()
}

func (r Rule) String() string {
	switch {
	case !r.IsRecurring():
		return string(None)
	case r.filtersWeekdays():
		return "custom(" + r.Weekdays.String() + ")"
	default:
		return string(r.Kind) + "/" + strconv.Itoa(r.interval())
	}
}

// Series is a Rule anchored at its first date together with its termination.
type Series struct {
	Start time.Time  // first candidate date
	Rule  Rule       // stepping rule
	Until *time.Time // inclusive last date, nil when open-ended
	Count int        // cap on matching dates, 0 when unbounded
}
