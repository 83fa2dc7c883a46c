package recurrence

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CacheEntry represents a cached expansion result
type CacheEntry[V any] struct {
	Result     V
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// Cache keeps expansion results for a limited time. Keys are derived from an
// operation name and the parts that determine the result; callers must
// include whatever versions their input (e.g. a collection revision).
type Cache[V any] struct {
	entries         map[string]*CacheEntry[V]
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// CacheConfig holds configuration for the expansion cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for expansion caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute, // Cache results for 15 minutes
	MaxEntries:      1000,             // Keep up to 1000 cached results
	CleanupInterval: 5 * time.Minute,  // Cleanup every 5 minutes
}

// NewCache creates a new cache with the given configuration
func NewCache[V any](config CacheConfig) *Cache[V] {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}

	cache := &Cache[V]{
		entries:         make(map[string]*CacheEntry[V]),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go cache.cleanupLoop()

	return cache
}

// Key hashes an operation and its inputs into a cache key.
func Key(operation string, parts ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(operation))
	for _, p := range parts {
		// Separator keeps ("ab","c") and ("a","bc") apart.
		hasher.Write([]byte{0})
		hasher.Write([]byte(p))
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Get retrieves a cached result if it exists and hasn't expired
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return zero, false
	}
	if now.After(entry.ExpiresAt) {
		delete(c.entries, key)
		return zero, false
	}

	entry.AccessedAt = now
	return entry.Result, true
}

// Set stores a result in the cache
func (c *Cache[V]) Set(key string, result V) {
	now := time.Now()
	entry := &CacheEntry[V]{
		Result:     result,
		ExpiresAt:  now.Add(c.ttl),
		AccessedAt: now,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry

	// If we're over the limit, trigger cleanup
	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry[V])
	c.mutex.Unlock()
}

// cleanup removes expired entries and, when still over the limit, the least
// recently accessed ones. Callers hold the write lock.
func (c *Cache[V]) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	keys := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		keys = append(keys, keyAccess{key: key, accessedAt: entry.AccessedAt})
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].accessedAt.Before(keys[j].accessedAt)
	})

	excess := len(c.entries) - c.maxEntries
	for i := 0; i < excess; i++ {
		delete(c.entries, keys[i].key)
	}
}

// cleanupLoop runs periodic cleanup
func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache. It is safe to call more than once.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.Purge()
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entryCount := len(c.entries)
	expiredCount := 0
	now := time.Now()

	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expiredCount++
		}
	}

	return CacheStats{
		TotalEntries:   entryCount,
		ExpiredEntries: expiredCount,
		ActiveEntries:  entryCount - expiredCount,
	}
}

// CacheStats provides information about cache performance
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
