package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		payload   string
		expected  Rule
		malformed bool
	}{
		{name: "Empty kind is none", kind: "", expected: Rule{Kind: None}},
		{name: "Daily without payload", kind: "daily", expected: Rule{Kind: Daily, Interval: 1}},
		{name: "Kind is case-insensitive", kind: " Weekly ", payload: `{"interval":2}`, expected: Rule{Kind: Weekly, Interval: 2}},
		{
			name:     "Custom with weekday codes",
			kind:     "custom",
			payload:  `{"interval":1,"weekdays":["MO","we","Friday"]}`,
			expected: OnWeekdays(time.Monday, time.Wednesday, time.Friday),
		},
		{
			name:     "Custom with weekday numbers",
			kind:     "custom",
			payload:  `{"weekdays":[0,6]}`,
			expected: Rule{Kind: Custom, Interval: 1, Weekdays: NewWeekdaySet(time.Sunday, time.Saturday)},
		},
		{name: "Weekdays ignored outside custom", kind: "weekly", payload: `{"weekdays":["MO"]}`, expected: Rule{Kind: Weekly, Interval: 1}},
		{name: "Custom unparseable structure", kind: "custom", payload: `{"interval":`, expected: Rule{Kind: Custom, Interval: 1}, malformed: true},
		{name: "Custom interval is a string", kind: "custom", payload: `{"interval":"two"}`, expected: Rule{Kind: Custom, Interval: 1}, malformed: true},
		{name: "Custom zero interval", kind: "custom", payload: `{"interval":0}`, expected: Rule{Kind: Custom, Interval: 1}, malformed: true},
		{name: "Custom unknown weekday", kind: "custom", payload: `{"weekdays":["XX"]}`, expected: Rule{Kind: Custom, Interval: 1}, malformed: true},
		{name: "Unknown kind", kind: "fortnightly", expected: Rule{Kind: None}, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRule(tt.kind, []byte(tt.payload))
			if tt.malformed {
				require.ErrorIs(t, err, ErrMalformedRule)
				assert.ErrorIs(t, got.Err(), ErrMalformedRule)
			} else {
				require.NoError(t, err)
				assert.NoError(t, got.Err())
			}
			assert.Equal(t, tt.expected.Kind, got.Kind)
			assert.Equal(t, tt.expected.Interval, got.Interval)
			assert.Equal(t, tt.expected.Weekdays, got.Weekdays)
		})
	}
}

func TestRule_JSONRoundTrip(t *testing.T) {
	rule := OnWeekdays(time.Friday, time.Monday)

	data, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"custom","interval":1,"weekdays":["MO","FR"]}`, string(data))

	var decoded Rule
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rule, decoded)
}

func TestRule_UnmarshalJSONIsLenient(t *testing.T) {
	var doc struct {
		Title string `json:"title"`
		Rule  Rule   `json:"recurrence"`
	}

	err := json.Unmarshal([]byte(`{"title":"Gym","recurrence":{"kind":"custom","weekdays":"MO"}}`), &doc)
	require.NoError(t, err)
	assert.Equal(t, "Gym", doc.Title)
	assert.Equal(t, Custom, doc.Rule.Kind)
	assert.Equal(t, 1, doc.Rule.Interval)
	assert.True(t, doc.Rule.Weekdays.IsEmpty())
	assert.ErrorIs(t, doc.Rule.Err(), ErrMalformedRule)

	require.NoError(t, json.Unmarshal([]byte(`{"recurrence":"monthly"}`), &doc))
	assert.Equal(t, Rule{Kind: Monthly, Interval: 1}, doc.Rule)

	var empty struct {
		Rule Rule `json:"recurrence"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"recurrence":null}`), &empty))
	assert.False(t, empty.Rule.IsRecurring())
}

func TestWeekdaySet(t *testing.T) {
	set := NewWeekdaySet(time.Sunday, time.Wednesday, time.Wednesday)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has(time.Sunday))
	assert.False(t, set.Has(time.Monday))
	assert.Equal(t, []time.Weekday{time.Wednesday, time.Sunday}, set.Days())
	assert.Equal(t, "WE,SU", set.String())
}
