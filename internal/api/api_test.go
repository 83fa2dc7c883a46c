package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/calrecur/calendar"
	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
	"github.com/cyp0633/calrecur/storage/memory"
)

type envelope struct {
	Success     bool               `json:"success"`
	Persisted   *bool              `json:"persisted"`
	Warning     string             `json:"warning"`
	Error       string             `json:"error"`
	Code        int                `json:"code"`
	Event       event.Definition   `json:"event"`
	Events      []event.Definition `json:"events"`
	Occurrences []event.Occurrence `json:"occurrences"`
	Dates       []string           `json:"dates"`
	Date        string             `json:"date"`
}

func newTestApp(t *testing.T, defs ...event.Definition) (*fiber.App, *memory.Store) {
	t.Helper()
	store := memory.New(defs...)
	cal, err := calendar.New(context.Background(), store, calendar.Config{
		Now: func() time.Time { return time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(cal.Close)
	return New(cal, Options{CalendarName: "test"}).App(), store
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func weeklyMonday() event.Definition {
	start := recurrence.Date(2025, 1, 6)
	return event.Definition{
		ID:         "standup",
		Title:      "Standup",
		StartDate:  start,
		EndDate:    start,
		StartTime:  event.ClockPtr(9, 30),
		Recurrence: recurrence.Every(recurrence.Weekly, 1),
	}
}

func occurrenceDates(occs []event.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.Date.Format(recurrence.DateLayout)
	}
	return out
}

func TestOccurrences(t *testing.T) {
	app, _ := newTestApp(t, weeklyMonday())

	status, env := do(t, app, http.MethodGet, "/api/occurrences?from=2025-01-01&to=2025-01-31", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"2025-01-06", "2025-01-13", "2025-01-20", "2025-01-27"}, occurrenceDates(env.Occurrences))
	assert.Equal(t, "standup", env.Occurrences[0].MasterID)
}

func TestOccurrences_BadRange(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing bounds", "/api/occurrences"},
		{"malformed date", "/api/occurrences?from=2025-13-01&to=2025-01-31"},
		{"end before start", "/api/occurrences?from=2025-02-01&to=2025-01-01"},
		{"zero days", "/api/next?days=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, env.Success)
			assert.Equal(t, http.StatusBadRequest, env.Code)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestTodayAndNext(t *testing.T) {
	friday := recurrence.Date(2025, 1, 10)
	app, _ := newTestApp(t, weeklyMonday(), event.Definition{ID: "lunch", Title: "Lunch", StartDate: friday, EndDate: friday})

	status, env := do(t, app, http.MethodGet, "/api/today", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2025-01-10", env.Date)
	require.Len(t, env.Occurrences, 1)
	assert.Equal(t, "lunch", env.Occurrences[0].SourceID)

	status, env = do(t, app, http.MethodGet, "/api/next?days=4", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"2025-01-10", "2025-01-13"}, occurrenceDates(env.Occurrences))
}

func TestCreateAndGet(t *testing.T) {
	app, store := newTestApp(t)

	body := `{"title":"Gym","start_date":"2025-01-07","start_time":"18:00","recurrence":{"kind":"custom","weekdays":["TU","TH"]},"recurrence_count":4}`
	status, env := do(t, app, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)
	require.NotNil(t, env.Persisted)
	assert.True(t, *env.Persisted)
	require.NotEmpty(t, env.Event.ID)
	assert.Equal(t, 1, store.Len())

	id := env.Event.ID
	status, env = do(t, app, http.MethodGet, "/api/events/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Gym", env.Event.Title)
	assert.Equal(t, recurrence.Custom, env.Event.Recurrence.Kind)

	status, env = do(t, app, http.MethodGet, "/api/events/"+id+"/upcoming?limit=10", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"2025-01-14", "2025-01-16"}, env.Dates)

	status, env = do(t, app, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, env.Events, 1)
}

func TestCreate_Rejected(t *testing.T) {
	app, store := newTestApp(t, weeklyMonday())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `{"title":`, http.StatusBadRequest},
		{"bad start date", `{"title":"x","start_date":"tomorrow"}`, http.StatusUnprocessableEntity},
		{"malformed rule", `{"title":"x","start_date":"2025-01-07","recurrence":{"kind":"weekly","interval":0}}`, http.StatusUnprocessableEntity},
		{"end before start", `{"title":"x","start_date":"2025-01-07","end_date":"2025-01-05"}`, http.StatusUnprocessableEntity},
		{"duplicate id", `{"id":"standup","title":"x","start_date":"2025-01-07"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
		})
	}
	assert.Equal(t, 1, store.Len())
}

func TestEdit_Scopes(t *testing.T) {
	app, _ := newTestApp(t, weeklyMonday())

	status, env := do(t, app, http.MethodPatch, "/api/events/standup?scope=single&date=2025-01-13", `{"title":"Retro","start_time":"14:00"}`)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Event.OverrideOf)
	assert.Equal(t, "standup", env.Event.OverrideOf.ParentID)

	status, env = do(t, app, http.MethodPatch, "/api/events/standup?scope=future&date=2025-01-20", `{"title":"Sync"}`)
	require.Equal(t, http.StatusOK, status)
	newMaster := env.Event.ID
	assert.NotEqual(t, "standup", newMaster)

	_, env = do(t, app, http.MethodGet, "/api/occurrences?from=2025-01-01&to=2025-01-31", "")
	require.Len(t, env.Occurrences, 4)
	titles := make([]string, len(env.Occurrences))
	for i, o := range env.Occurrences {
		titles[i] = o.Title
	}
	assert.Equal(t, []string{"Standup", "Retro", "Sync", "Sync"}, titles)
	assert.Equal(t, newMaster, env.Occurrences[3].MasterID)
}

func TestEdit_Rejected(t *testing.T) {
	app, _ := newTestApp(t, weeklyMonday())

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"unknown id", "/api/events/nope?scope=all", `{"title":"x"}`, http.StatusNotFound},
		{"unknown scope", "/api/events/standup?scope=sometimes", `{"title":"x"}`, http.StatusBadRequest},
		{"unknown field", "/api/events/standup?scope=all", `{"colour":"red"}`, http.StatusBadRequest},
		{"empty patch", "/api/events/standup?scope=all", `{}`, http.StatusBadRequest},
		{"not an occurrence", "/api/events/standup?scope=single&date=2025-01-14", `{"title":"x"}`, http.StatusBadRequest},
		{"single without date", "/api/events/standup?scope=single", `{"title":"x"}`, http.StatusBadRequest},
		{"malformed rule", "/api/events/standup?scope=all", `{"recurrence":{"kind":"fortnightly"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodPatch, tt.target, tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
		})
	}
}

func TestDelete_Scopes(t *testing.T) {
	app, store := newTestApp(t, weeklyMonday())

	status, env := do(t, app, http.MethodDelete, "/api/events/standup?scope=single&date=2025-01-13", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = do(t, app, http.MethodDelete, "/api/events/standup?scope=future&date=2025-01-27", "")
	require.Equal(t, http.StatusOK, status)

	_, env = do(t, app, http.MethodGet, "/api/occurrences?from=2025-01-01&to=2025-02-28", "")
	assert.Equal(t, []string{"2025-01-06", "2025-01-20"}, occurrenceDates(env.Occurrences))

	status, _ = do(t, app, http.MethodDelete, "/api/events/standup?scope=all", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, store.Len())

	status, env = do(t, app, http.MethodGet, "/api/events/standup", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestPersistenceFailure(t *testing.T) {
	app, store := newTestApp(t, weeklyMonday())
	store.FailWrites(errors.New("disk full"))

	status, env := do(t, app, http.MethodPatch, "/api/events/standup?scope=all", `{"title":"Daily"}`)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	require.NotNil(t, env.Persisted)
	assert.False(t, *env.Persisted)
	assert.NotEmpty(t, env.Warning)
	assert.Equal(t, "Daily", env.Event.Title)

	status, env = do(t, app, http.MethodPost, "/api/flush", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, env.Success)

	store.FailWrites(nil)
	status, env = do(t, app, http.MethodPost, "/api/flush", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, *env.Persisted)

	stored, err := store.Get(context.Background(), "standup")
	require.NoError(t, err)
	assert.Equal(t, "Daily", stored.Title)
}

func TestICSExport(t *testing.T) {
	app, _ := newTestApp(t, weeklyMonday())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/calendar.ics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "UID:standup")
	assert.Contains(t, string(body), "FREQ=WEEKLY")
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Dirty  bool   `json:"dirty"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Dirty)
}

func TestDecodePatch(t *testing.T) {
	patch, err := decodePatch([]byte(`{"title":"x","start_time":null,"recurrence_end":null,"recurrence_count":3,"start_date":"2025-02-01"}`))
	require.NoError(t, err)

	assert.Equal(t, "x", patch.Title.MustGet())
	assert.Nil(t, patch.StartTime.MustGet())
	assert.Nil(t, patch.RecurrenceEnd.MustGet())
	assert.Equal(t, 3, patch.RecurrenceCount.MustGet())
	assert.Equal(t, recurrence.Date(2025, 2, 1), patch.StartDate.MustGet())
	assert.False(t, patch.Description.IsPresent())

	_, err = decodePatch([]byte(`{"start_date":"02/01/2025"}`))
	assert.Error(t, err)
	_, err = decodePatch([]byte(`[1,2]`))
	assert.Error(t, err)
}
