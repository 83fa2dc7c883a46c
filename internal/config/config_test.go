package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/calrecur/recurrence"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "calrecur.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calrecur.yaml")
	yml := `
listen: ":9090"
log_level: DEBUG
storage:
  driver: Postgres
  dsn: "postgres://localhost/cal?sslmode=disable"
engine:
  max_iterations: 200
  cache_ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 200, cfg.Engine.MaxIterations)
	assert.Equal(t, time.Minute, cfg.Engine.CacheTTL)
	assert.Equal(t, 1000, cfg.Engine.CacheMaxEntries)
	assert.Equal(t, 7, cfg.Agenda.HorizonDays)
	assert.Equal(t, "*/5 * * * *", cfg.FlushRetry)
	assert.NoError(t, cfg.Validate())

	engine := cfg.EngineConfig()
	assert.Equal(t, 200, engine.MaxIterations)
	assert.False(t, engine.CacheEnabled)
	assert.Equal(t, time.Minute, engine.CacheConfig.TTL)
}

func TestLoad_EnginePreset(t *testing.T) {
	tests := []struct {
		name      string
		yml       string
		wantCache bool
		wantTTL   time.Duration
		wantMax   int
		wantLimit int
	}{
		{
			name:      "low memory preset fills the gaps",
			yml:       "engine:\n  preset: low_memory\n  cache_enabled: true\n",
			wantCache: true,
			wantTTL:   recurrence.LowMemoryConfig.CacheConfig.TTL,
			wantMax:   recurrence.LowMemoryConfig.CacheConfig.MaxEntries,
			wantLimit: recurrence.LowMemoryConfig.DefaultUpcomingLimit,
		},
		{
			name:      "explicit settings win over the preset",
			yml:       "engine:\n  preset: high_performance\n  cache_enabled: true\n  cache_max_entries: 42\n",
			wantCache: true,
			wantTTL:   recurrence.HighPerformanceConfig.CacheConfig.TTL,
			wantMax:   42,
			wantLimit: recurrence.HighPerformanceConfig.DefaultUpcomingLimit,
		},
		{
			name:      "disabled cache preset ignores cache_enabled",
			yml:       "engine:\n  preset: disabled_cache\n  cache_enabled: true\n",
			wantCache: false,
			wantTTL:   recurrence.DefaultCacheConfig.TTL,
			wantMax:   recurrence.DefaultCacheConfig.MaxEntries,
			wantLimit: recurrence.DisabledCacheConfig.DefaultUpcomingLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "calrecur.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yml), 0o600))

			cfg, err := Load(path)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			engine := cfg.EngineConfig()
			assert.Equal(t, tt.wantCache, engine.CacheEnabled)
			assert.Equal(t, tt.wantTTL, engine.CacheConfig.TTL)
			assert.Equal(t, tt.wantMax, engine.CacheConfig.MaxEntries)
			assert.Equal(t, tt.wantLimit, engine.DefaultUpcomingLimit)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calrecur.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory", func(c *Config) { c.Storage.Driver = DriverMemory }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, true},
		{"bad schedule", func(c *Config) { c.FlushRetry = "every minute" }, true},
		{"known preset", func(c *Config) { c.Engine.Preset = recurrence.PresetLowMemory }, false},
		{"unknown preset", func(c *Config) { c.Engine.Preset = "turbo" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{"CALRECUR_DSN": "postgres://db/cal", "LOG_LEVEL": "WARN"}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "postgres://db/cal", cfg.Storage.DSN)
	assert.Equal(t, "warn", cfg.LogLevel)
}
