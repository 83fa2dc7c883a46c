package recurrence

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrNotRecurring is returned when an RRULE is requested for a rule that does not repeat.
var ErrNotRecurring = errors.New("rule does not repeat")

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ROption converts the series to rrule-go options. Dtstart is left for the
// caller to set when a full rule is needed.
//
// Weekday-filtered custom rules map to FREQ=DAILY;BYDAY=..., which matches
// their day-by-day stepping. Month-end clamping has no RRULE equivalent:
// RFC 5545 skips months without the anchor day.
func (s Series) ROption() (rrule.ROption, error) {
	r := s.Rule
	if !r.IsRecurring() {
		return rrule.ROption{}, ErrNotRecurring
	}

	opt := rrule.ROption{Interval: r.interval()}
	switch r.Kind {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case Monthly:
		opt.Freq = rrule.MONTHLY
	case Yearly:
		opt.Freq = rrule.YEARLY
	case Custom:
		opt.Freq = rrule.DAILY
		if r.filtersWeekdays() {
			opt.Interval = 1
			for _, d := range r.Weekdays.Days() {
				opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
			}
		}
	}

	if s.Count > 0 {
		opt.Count = s.Count
	}
	if s.Until != nil {
		// UNTIL is inclusive of the whole last day.
		opt.Until = DateOf(*s.Until).Add(24*time.Hour - time.Second)
	}
	return opt, nil
}

// RRule returns the RFC 5545 RRULE value (without the "RRULE:" prefix).
func (s Series) RRule() (string, error) {
	opt, err := s.ROption()
	if err != nil {
		return "", err
	}
	return opt.String(), nil
}

// FloatingRRule returns the RRULE value for a series whose DTSTART has no
// time zone. UNTIL takes the same value type as DTSTART: a DATE when
// dateOnly, otherwise a local date-time at the end of the last day.
func (s Series) FloatingRRule(dateOnly bool) (string, error) {
	opt, err := s.ROption()
	if err != nil {
		return "", err
	}
	opt.Until = time.Time{}
	rule := opt.String()
	if s.Until != nil {
		layout := "20060102T235959"
		if dateOnly {
			layout = "20060102"
		}
		rule += ";UNTIL=" + DateOf(*s.Until).Format(layout)
	}
	return rule, nil
}

// NewRRule builds an rrule-go rule anchored at the series start.
func (s Series) NewRRule() (*rrule.RRule, error) {
	opt, err := s.ROption()
	if err != nil {
		return nil, err
	}
	opt.Dtstart = DateOf(s.Start)
	return rrule.NewRRule(opt)
}
