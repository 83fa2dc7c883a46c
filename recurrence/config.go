package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// MaxIterations is the safety ceiling on candidate dates visited per
	// series in a single query.
	MaxIterations int
	// DefaultUpcomingLimit is used when Upcoming is asked for a non-positive limit.
	DefaultUpcomingLimit int
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	MaxIterations:        1000,
	DefaultUpcomingLimit: 10,
}

// HighPerformanceConfig is optimized for high-traffic scenarios
var HighPerformanceConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             30 * time.Minute, // Longer cache TTL
		MaxEntries:      5000,             // More cache entries
		CleanupInterval: 10 * time.Minute, // Less frequent cleanup
	},

	MaxIterations:        500,
	DefaultUpcomingLimit: 10,
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute, // Shorter cache TTL
		MaxEntries:      100,             // Fewer cache entries
		CleanupInterval: 2 * time.Minute, // More frequent cleanup
	},

	MaxIterations:        1000,
	DefaultUpcomingLimit: 5,
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,
	CacheConfig:  CacheConfig{}, // Not used

	MaxIterations:        1000,
	DefaultUpcomingLimit: 10,
}

// Preset names accepted by EnginePreset.
const (
	PresetDefault         = "default"
	PresetHighPerformance = "high_performance"
	PresetLowMemory       = "low_memory"
	PresetDisabledCache   = "disabled_cache"
)

var presets = map[string]EngineConfig{
	PresetDefault:         DefaultEngineConfig,
	PresetHighPerformance: HighPerformanceConfig,
	PresetLowMemory:       LowMemoryConfig,
	PresetDisabledCache:   DisabledCacheConfig,
}

// EnginePreset returns the named configuration. An empty name is the default.
func EnginePreset(name string) (EngineConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = PresetDefault
	}
	cfg, ok := presets[name]
	if !ok {
		return DefaultEngineConfig, fmt.Errorf("unknown engine preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return cfg, nil
}

// PresetNames lists the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultEngineConfig.MaxIterations
	}
	if config.DefaultUpcomingLimit <= 0 {
		config.DefaultUpcomingLimit = DefaultEngineConfig.DefaultUpcomingLimit
	}
	return &Engine{config: config}
}
