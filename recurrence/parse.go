package recurrence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedRule is reported alongside the fallback rule when a payload
// cannot be parsed. It is never fatal.
var ErrMalformedRule = errors.New("malformed recurrence rule")

// rulePayload is the wire shape of a Rule.
type rulePayload struct {
	Kind     string          `json:"kind"`
	Interval json.RawMessage `json:"interval,omitempty"`
	Weekdays json.RawMessage `json:"weekdays,omitempty"`
}

// ParseRule builds a Rule from a kind and its JSON payload
// ({"interval": 2, "weekdays": ["MO", "WE"]}).
//
// On malformed input it returns the fallback for the kind together with an
// error wrapping ErrMalformedRule: interval 1 and no weekday filter, or None
// when the kind itself is unknown.
func ParseRule(kind string, payload []byte) (Rule, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	if k == "" {
		k = None
	}
	if !k.Valid() {
		return fallback(None, fmt.Errorf("%w: unknown kind %q", ErrMalformedRule, kind))
	}
	if k == None {
		return Rule{Kind: None}, nil
	}

	rule := Rule{Kind: k, Interval: 1}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return rule, nil
	}

	var p rulePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fallback(k, fmt.Errorf("%w: %v", ErrMalformedRule, err))
	}

	if len(p.Interval) > 0 && !bytes.Equal(p.Interval, []byte("null")) {
		var interval int
		if err := json.Unmarshal(p.Interval, &interval); err != nil {
			return fallback(k, fmt.Errorf("%w: interval: %v", ErrMalformedRule, err))
		}
		if interval < 1 {
			return fallback(k, fmt.Errorf("%w: interval %d is below 1", ErrMalformedRule, interval))
		}
		rule.Interval = interval
	}

	if len(p.Weekdays) > 0 && !bytes.Equal(p.Weekdays, []byte("null")) {
		set, err := parseWeekdays(p.Weekdays)
		if err != nil {
			return fallback(k, fmt.Errorf("%w: weekdays: %v", ErrMalformedRule, err))
		}
		if k == Custom {
			rule.Weekdays = set
		}
	}

	return rule, nil
}

func fallback(k Kind, err error) (Rule, error) {
	if k == None {
		return Rule{Kind: None, err: err}, err
	}
	return Rule{Kind: k, Interval: 1, err: err}, err
}

// parseWeekdays accepts codes ("MO"), names ("monday") or time.Weekday numbers.
func parseWeekdays(raw json.RawMessage) (WeekdaySet, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, err
	}

	var set WeekdaySet
	for _, item := range items {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			if n < 0 || n > 6 {
				return 0, fmt.Errorf("weekday %d out of range", n)
			}
			set |= NewWeekdaySet(time.Weekday(n))
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return 0, fmt.Errorf("weekday %s is neither a number nor a string", string(item))
		}
		d, ok := ParseWeekday(s)
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", s)
		}
		set |= NewWeekdaySet(d)
	}
	return set, nil
}

// ParseWeekday parses a two-letter code or an English day name.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, code := range weekdayCodes {
		if s == code || s == strings.ToUpper(time.Weekday(i).String()) {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// MarshalJSON encodes the rule as {"kind": ..., "interval": ..., "weekdays": [...]}.
func (r Rule) MarshalJSON() ([]byte, error) {
	if !r.IsRecurring() {
		return json.Marshal(rulePayload{Kind: string(None)})
	}

	out := struct {
		Kind     string   `json:"kind"`
		Interval int      `json:"interval"`
		Weekdays []string `json:"weekdays,omitempty"`
	}{Kind: string(r.Kind), Interval: r.interval()}
	for _, d := range r.Weekdays.Days() {
		out.Weekdays = append(out.Weekdays, weekdayCodes[d])
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes leniently: a malformed payload yields the fallback
// rule with Err set instead of failing the surrounding document.
func (r *Rule) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Rule{Kind: None}
		return nil
	}

	// A bare string is a kind without parameters.
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		*r, _ = ParseRule(kind, nil)
		return nil
	}

	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		*r, _ = fallback(None, fmt.Errorf("%w: %v", ErrMalformedRule, err))
		return nil
	}
	*r, _ = ParseRule(head.Kind, data)
	return nil
}
