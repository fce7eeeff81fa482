package verification

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached verification stays fresh. The
// certifying bodies publish updates on roughly a daily cadence, so one
// day bounds staleness without hammering their registries on repeat scans.
const DefaultCacheTTL = 24 * time.Hour

// CacheKeyPrefix namespaces verification cache keys in shared stores.
const CacheKeyPrefix = "certification_cache"

// ErrCacheMiss is returned when no fresh cached result exists for a barcode.
var ErrCacheMiss = errors.New("verification cache miss")

// Cache stores aggregated verification results keyed by barcode. A Get
// must only return entries younger than the configured TTL; stale entries
// behave as misses and are overwritten by the next Put.
type Cache interface {
	// Get returns the cached result for barcode, or ErrCacheMiss when the
	// barcode is absent or the cached entry has gone stale.
	Get(ctx context.Context, barcode string) (*Result, error)

	// Put stores the result for barcode, overwriting any prior value and
	// resetting its freshness window.
	Put(ctx context.Context, barcode string, result Result) error

	// Clear drops every cached verification.
	Clear(ctx context.Context) error
}

// cacheEntry pairs a payload with its insertion time.
type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// MemoryCache is an in-process Cache with TTL expiry. Thread-safe via
// RWMutex. Expired entries are dropped lazily on access.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-memory verification cache. A non-positive
// ttl falls back to DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached result for barcode if it is still fresh.
func (c *MemoryCache) Get(_ context.Context, barcode string) (*Result, error) {
	c.mu.RLock()
	entry, ok := c.entries[barcode]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a Put may have refreshed the entry.
		if current, ok := c.entries[barcode]; ok && c.now().Sub(current.storedAt) >= c.ttl {
			delete(c.entries, barcode)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}

	// Return a copy to prevent external modification.
	result := entry.result
	result.Certifications = append([]Certification(nil), entry.result.Certifications...)
	return &result, nil
}

// Put stores the result for barcode, overwriting any prior value.
func (c *MemoryCache) Put(_ context.Context, barcode string, result Result) error {
	result.Certifications = append([]Certification(nil), result.Certifications...)

	c.mu.Lock()
	c.entries[barcode] = cacheEntry{result: result, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

// Clear drops every cached verification.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}
