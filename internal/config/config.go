// Package config holds the YAML configuration of the calrecur service and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/cyp0633/calrecur/recurrence"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverJSON     = "json"
	DriverPostgres = "postgres"
)

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is one of "memory", "json" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the JSON file used by the json driver.
	Path string `yaml:"path" json:"path"`
	// DSN is the lib/pq connection string used by the postgres driver.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// EngineSettings tunes expansion. Preset picks a recurrence engine preset;
// the other fields override it when set.
type EngineSettings struct {
	Preset          string        `yaml:"preset" json:"preset"`
	MaxIterations   int           `yaml:"max_iterations" json:"max_iterations"`
	CacheEnabled    bool          `yaml:"cache_enabled" json:"cache_enabled"`
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries" json:"cache_max_entries"`
}

// AgendaConfig controls the default agenda window.
type AgendaConfig struct {
	// HorizonDays is the number of days shown, today included.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Storage StorageConfig  `yaml:"storage" json:"storage"`
	Engine  EngineSettings `yaml:"engine" json:"engine"`
	Agenda  AgendaConfig   `yaml:"agenda" json:"agenda"`

	// FlushRetry is a cron schedule on which the server retries saving
	// unsaved changes.
	FlushRetry string `yaml:"flush_retry" json:"flush_retry"`
}

// DefaultConfig returns the default configuration: a JSON file store next to
// the working directory and the default engine preset.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Storage: StorageConfig{
			Driver: DriverJSON,
			Path:   "calrecur.json",
		},
		Engine: EngineSettings{
			Preset:          recurrence.PresetDefault,
			MaxIterations:   recurrence.DefaultEngineConfig.MaxIterations,
			CacheEnabled:    true,
			CacheTTL:        recurrence.DefaultCacheConfig.TTL,
			CacheMaxEntries: recurrence.DefaultCacheConfig.MaxEntries,
		},
		Agenda:     AgendaConfig{HorizonDays: 7},
		FlushRetry: "*/5 * * * *",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Driver == DriverJSON && c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}

	c.Engine.Preset = strings.ToLower(strings.TrimSpace(c.Engine.Preset))
	if c.Engine.Preset == "" {
		c.Engine.Preset = def.Engine.Preset
	}
	// Unknown presets fall back to the default here; Validate reports them.
	preset, _ := recurrence.EnginePreset(c.Engine.Preset)
	if c.Engine.MaxIterations <= 0 {
		c.Engine.MaxIterations = preset.MaxIterations
	}
	if c.Engine.CacheTTL <= 0 {
		c.Engine.CacheTTL = preset.CacheConfig.TTL
	}
	if c.Engine.CacheTTL <= 0 {
		c.Engine.CacheTTL = def.Engine.CacheTTL
	}
	if c.Engine.CacheMaxEntries <= 0 {
		c.Engine.CacheMaxEntries = preset.CacheConfig.MaxEntries
	}
	if c.Engine.CacheMaxEntries <= 0 {
		c.Engine.CacheMaxEntries = def.Engine.CacheMaxEntries
	}
	if c.Agenda.HorizonDays <= 0 {
		c.Agenda.HorizonDays = def.Agenda.HorizonDays
	}
	if c.FlushRetry == "" {
		c.FlushRetry = def.FlushRetry
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverJSON:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := recurrence.EnginePreset(c.Engine.Preset); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.FlushRetry); err != nil {
		return fmt.Errorf("invalid flush_retry schedule %q: %w", c.FlushRetry, err)
	}
	return nil
}

// EngineConfig converts the engine settings for recurrence.NewEngineWithConfig,
// starting from the preset. The cache runs only when both the preset and
// cache_enabled allow it.
func (c *Config) EngineConfig() recurrence.EngineConfig {
	cfg, _ := recurrence.EnginePreset(c.Engine.Preset)
	if c.Engine.MaxIterations > 0 {
		cfg.MaxIterations = c.Engine.MaxIterations
	}
	cfg.CacheEnabled = cfg.CacheEnabled && c.Engine.CacheEnabled
	if c.Engine.CacheTTL > 0 {
		cfg.CacheConfig.TTL = c.Engine.CacheTTL
	}
	if c.Engine.CacheMaxEntries > 0 {
		cfg.CacheConfig.MaxEntries = c.Engine.CacheMaxEntries
	}
	return cfg
}

// ApplyEnv overrides settings from the environment: CALRECUR_DSN and LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if dsn := getenv("CALRECUR_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Write to a temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(dir, ".calrecur-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
