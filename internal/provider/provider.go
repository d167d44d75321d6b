// Package provider fetches records from Jira, GitHub and Slack and maps them
// onto domain.RecentTicket. Each provider owns a TTL cache keyed by the ticket
// id it was asked for.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/cache"
	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
)

// Provider is the uniform surface every ticket source implements.
type Provider interface {
	Name() string
	ValidateConfig(ctx context.Context) bool
	GetTicket(ctx context.Context, id string) (*domain.RecentTicket, error)
	MapToRecentTicket(raw json.RawMessage) (*domain.RecentTicket, error)
	ClearCache()
	CacheStats() cache.Stats
	InvalidateCache(key string)
}

// Observer receives cache and fetch outcomes, typically for metrics.
type Observer interface {
	CacheHit(provider string)
	CacheMiss(provider string)
	Fetched(provider string, took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)                      {}
func (nopObserver) CacheMiss(string)                     {}
func (nopObserver) Fetched(string, time.Duration, error) {}

// Options are the collaborators shared by all providers.
type Options struct {
	Transport  Transport
	Classifier *classify.Classifier
	Logger     *zap.Logger
	Observer   Observer
	Clock      func() time.Time
}

func (o Options) withDefaults(name string, timeout time.Duration) Options {
	if o.Classifier == nil {
		o.Classifier = classify.Default()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Logger = o.Logger.With(zap.String("provider", name))
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Transport == nil {
		o.Transport = NewHTTPTransport(TransportConfig{Provider: name, Timeout: timeout, Logger: o.Logger})
	}
	return o
}

// base carries the cache plumbing common to all providers.
type base struct {
	name       string
	cache      *cache.TTLCache[*domain.RecentTicket]
	transport  Transport
	classifier *classify.Classifier
	logger     *zap.Logger
	observer   Observer
}

func newBase(name string, ttl time.Duration, opts Options) base {
	opts = opts.withDefaults(name, 0)
	return base{
		name:       name,
		cache:      cache.New[*domain.RecentTicket](ttl, cache.WithClock(opts.Clock)),
		transport:  opts.Transport,
		classifier: opts.Classifier,
		logger:     opts.Logger,
		observer:   opts.Observer,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) ClearCache() {
	b.cache.Clear()
	b.logger.Info("cache cleared")
}

func (b *base) CacheStats() cache.Stats { return b.cache.Stats() }

func (b *base) InvalidateCache(key string) { b.cache.Invalidate(key) }

// cached serves key from the cache or calls fetch and stores its result.
// Callers always receive a copy so cached entries cannot be mutated.
func (b *base) cached(ctx context.Context, key string, fetch func(context.Context) (*domain.RecentTicket, error)) (*domain.RecentTicket, error) {
	if t, ok := b.cache.Get(key); ok {
		b.observer.CacheHit(b.name)
		b.logger.Debug("cache hit", zap.String("key", key))
		return t.Clone(), nil
	}
	b.observer.CacheMiss(b.name)

	start := time.Now()
	ticket, err := fetch(ctx)
	b.observer.Fetched(b.name, time.Since(start), err)
	if err != nil {
		b.logger.Warn("fetch failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	b.cache.Set(key, ticket, 0)
	b.logger.Debug("ticket fetched", zap.String("key", key), zap.String("ticket_id", ticket.ID))
	return ticket.Clone(), nil
}

// store primes the cache with a ticket that was fetched by other means.
func (b *base) store(key string, ticket *domain.RecentTicket) {
	b.cache.Set(key, ticket, 0)
}
