// Package cache provides a generic key/value store with per-entry expiry.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry is a stored value with its insertion time and lifetime.
type Entry[V any] struct {
	Key      string
	Value    V
	StoredAt time.Time
	TTL      time.Duration
}

func (e *Entry[V]) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Stats describes the logical contents of a cache.
type Stats struct {
	Size   int      `json:"size"`
	Keys   []string `json:"keys"`
	Hits   int64    `json:"hits"`
	Misses int64    `json:"misses"`
}

// TTLCache is a map guarded by a mutex whose entries expire lazily: Get treats
// an expired entry as a miss and removes it, so no background sweep is needed.
type TTLCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*Entry[V]
	defaultTTL time.Duration
	now        func() time.Time
	hits       int64
	misses     int64
}

// Option customizes a TTLCache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache whose Set falls back to defaultTTL when given ttl <= 0.
func New[V any](defaultTTL time.Duration, opts ...Option) *TTLCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		entries:    make(map[string]*Entry[V]),
		defaultTTL: defaultTTL,
		now:        o.now,
	}
}

// DefaultTTL returns the lifetime applied when Set receives no explicit ttl.
func (c *TTLCache[V]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns the live value for key.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if entry.expired(c.now()) {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}
	c.hits++
	return entry.Value, true
}

// Set stores value under key, replacing any previous entry.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Entry[V]{Key: key, Value: value, StoredAt: c.now(), TTL: ttl}
}

// Invalidate removes key. Removing a missing key is a no-op.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry and resets the hit/miss counters.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
	c.hits = 0
	c.misses = 0
}

// Len returns the number of live entries.
func (c *TTLCache[V]) Len() int {
	return c.Stats().Size
}

// Stats reports live entries only; expired entries found while scanning are purged.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys, Hits: c.hits, Misses: c.misses}
}
