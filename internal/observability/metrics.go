package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	providers    map[string]*ProviderCounters
}

// ProviderCounters are the per-provider fetch and cache counters.
type ProviderCounters struct {
	Fetches       int64         `json:"fetches"`
	FetchErrors   int64         `json:"fetch_errors"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	FetchDuration time.Duration `json:"fetch_duration_ns"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests  map[string]int64            `json:"requests"`
	Errors    map[string]int64            `json:"errors"`
	Providers map[string]ProviderCounters `json:"providers"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		providers:    make(map[string]*ProviderCounters),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// CacheHit counts a provider cache hit.
func (m *Metrics) CacheHit(provider string) {
	m.withProvider(provider, func(c *ProviderCounters) { c.CacheHits++ })
}

// CacheMiss counts a provider cache miss.
func (m *Metrics) CacheMiss(provider string) {
	m.withProvider(provider, func(c *ProviderCounters) { c.CacheMisses++ })
}

// Fetched records a provider round trip.
func (m *Metrics) Fetched(provider string, took time.Duration, err error) {
	m.withProvider(provider, func(c *ProviderCounters) {
		c.Fetches++
		c.FetchDuration += took
		if err != nil {
			c.FetchErrors++
		}
	})
}

func (m *Metrics) withProvider(provider string, fn func(*ProviderCounters)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.providers[provider]
	if !ok {
		c = &ProviderCounters{}
		m.providers[provider] = c
	}
	fn(c)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests:  map[string]int64{},
		Errors:    map[string]int64{},
		Providers: map[string]ProviderCounters{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.providers {
		snap.Providers[k] = *v
	}
	return snap
}

// ProviderNames lists providers that have recorded activity.
func (s Snapshot) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
