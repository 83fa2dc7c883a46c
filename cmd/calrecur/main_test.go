package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/calrecur/internal/config"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LogLevel = "error"
	cfg.Storage.Driver = config.DriverJSON
	cfg.Storage.Path = filepath.Join(dir, "events.json")
	path := filepath.Join(dir, "calrecur.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"calrecur", "--config", cfgPath}, args...))
	return out.String(), err
}

func TestCLI_AddDeleteAgenda(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "add", "--id", "standup", "--title", "Standup",
		"--start", "2025-01-06", "--repeat", "weekly", "--start-time", "09:30")
	require.NoError(t, err)
	assert.Equal(t, "standup\n", out)

	_, err = run(t, cfg, "delete", "--scope", "single", "--date", "2025-01-20", "standup")
	require.NoError(t, err)

	out, err = run(t, cfg, "agenda", "--from", "2025-01-01", "--to", "2025-02-01")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "2025-01-06"))
	assert.True(t, strings.HasPrefix(lines[1], "2025-01-13"))
	assert.True(t, strings.HasPrefix(lines[2], "2025-01-27"))
	assert.Contains(t, lines[0], "09:30")
	assert.Contains(t, lines[0], "Standup~")
}

func TestCLI_EditAndExport(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "add", "--id", "gym", "--title", "Gym", "--start", "2025-01-07",
		"--repeat", "custom", "--weekdays", "TU,TH", "--count", "4")
	require.NoError(t, err)

	_, err = run(t, cfg, "edit", "--scope", "single", "--date", "2025-01-09", "--title", "Swim", "gym")
	require.NoError(t, err)

	out, err := run(t, cfg, "agenda", "--from", "2025-01-01", "--to", "2025-01-31")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Swim*")

	icsPath := filepath.Join(t.TempDir(), "out.ics")
	_, err = run(t, cfg, "export", "--out", icsPath)
	require.NoError(t, err)
	data, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BYDAY=")
	assert.Contains(t, string(data), "RECURRENCE-ID")
}

func TestCLI_Rejects(t *testing.T) {
	cfg := writeConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown repeat", []string{"add", "--title", "x", "--start", "2025-01-07", "--repeat", "hourly"}},
		{"bad weekday", []string{"add", "--title", "x", "--start", "2025-01-07", "--repeat", "custom", "--weekdays", "XX"}},
		{"bad time", []string{"add", "--title", "x", "--start", "2025-01-07", "--start-time", "25:00"}},
		{"edit without changes", []string{"edit", "--scope", "all", "nope"}},
		{"delete missing id", []string{"delete", "--scope", "all"}},
		{"unknown event", []string{"delete", "--scope", "all", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfg, tt.args...)
			assert.Error(t, err)
		})
	}
}
