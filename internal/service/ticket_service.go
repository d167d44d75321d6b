package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ticketlens/ticket-aggregator/internal/cache"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/events"
	"github.com/ticketlens/ticket-aggregator/internal/provider"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// Batch limits.
const (
	DefaultBatchConcurrency = 4
	MaxBatchRefs            = 50
)

// Scanner is implemented by providers that can collect tickets in bulk.
type Scanner interface {
	ScanChannels(ctx context.Context, opts provider.ScanOptions) (*provider.ScanResult, error)
}

// TicketService aggregates the configured providers behind one surface.
type TicketService struct {
	providers        map[string]provider.Provider
	dispatcher       events.Dispatcher
	logger           *zap.Logger
	scanDefaults     provider.ScanOptions
	batchConcurrency int
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Providers        []provider.Provider
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	ScanDefaults     provider.ScanOptions
	BatchConcurrency int
}

// TicketRef names one ticket of one provider.
type TicketRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// BatchResult is the outcome of one ref of a batch; exactly one of Ticket and
// Err is set.
type BatchResult struct {
	Ref    TicketRef
	Ticket *domain.RecentTicket
	Err    error
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := deps.BatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	providers := make(map[string]provider.Provider, len(deps.Providers))
	for _, p := range deps.Providers {
		providers[p.Name()] = p
	}
	return &TicketService{
		providers:        providers,
		dispatcher:       deps.Dispatcher,
		logger:           logger,
		scanDefaults:     deps.ScanDefaults,
		batchConcurrency: concurrency,
	}
}

// ProviderNames lists the registered providers in name order.
func (s *TicketService) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider looks a provider up by name.
func (s *TicketService) Provider(name string) (provider.Provider, error) {
	p, ok := s.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, apperrors.NewNotFound("provider", map[string]any{
			"provider":  name,
			"available": s.ProviderNames(),
		})
	}
	return p, nil
}

// GetTicket fetches one ticket through the provider cache.
func (s *TicketService) GetTicket(ctx context.Context, providerName, id string) (*domain.RecentTicket, error) {
	p, err := s.Provider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ticket, err := p.GetTicket(ctx, strings.TrimSpace(id))
	if err != nil {
		de := apperrors.ToDomainError(err)
		s.publish(ctx, events.New(events.EventTicketFetchFailed, p.Name(), id, ActorFrom(ctx), events.TicketFetchFailedPayload{
			Code:    de.Code,
			Message: de.Message,
		}))
		return nil, err
	}
	s.publish(ctx, events.New(events.EventTicketFetched, p.Name(), ticket.ID, ActorFrom(ctx), events.TicketFetchedPayload{
		Key:      ticket.Key,
		Priority: string(ticket.Priority),
		Status:   ticket.Status,
		Duration: time.Since(start),
	}))
	return ticket, nil
}

// MapRaw normalizes a raw provider payload without any I/O.
func (s *TicketService) MapRaw(providerName string, raw json.RawMessage) (*domain.RecentTicket, error) {
	p, err := s.Provider(providerName)
	if err != nil {
		return nil, err
	}
	return p.MapToRecentTicket(raw)
}

// BatchGet fetches refs concurrently. A failing ref does not cancel the
// others; results keep the order of refs.
func (s *TicketService) BatchGet(ctx context.Context, refs []TicketRef) ([]BatchResult, error) {
	if len(refs) == 0 {
		return nil, apperrors.NewValidationError("at least one ticket reference is required", nil)
	}
	if len(refs) > MaxBatchRefs {
		return nil, apperrors.NewValidationError("too many ticket references", map[string]any{
			"max":   MaxBatchRefs,
			"given": len(refs),
		})
	}

	results := make([]BatchResult, len(refs))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			ticket, err := s.GetTicket(ctx, ref.Provider, ref.ID)
			results[i] = BatchResult{Ref: ref, Ticket: ticket, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// ScanSlack runs a batch scan on the provider registered as slack. Unset
// fields of opts take the service defaults and set ones are capped by them.
func (s *TicketService) ScanSlack(ctx context.Context, opts provider.ScanOptions) (*provider.ScanResult, error) {
	p, err := s.Provider(string(domain.ProviderSlack))
	if err != nil {
		return nil, err
	}
	scanner, ok := p.(Scanner)
	if !ok {
		return nil, apperrors.NewValidationError("provider does not support scanning", map[string]any{"provider": p.Name()})
	}

	result, err := scanner.ScanChannels(ctx, s.mergeScanOptions(opts))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.EventSlackScanned, p.Name(), "", ActorFrom(ctx), events.SlackScannedPayload{
		Tickets:         len(result.Tickets),
		ChannelsScanned: result.ChannelsScanned,
		MessagesScanned: result.MessagesScanned,
		ChannelErrors:   result.ChannelErrors,
	}))
	return result, nil
}

// mergeScanOptions fills unset fields from the configured defaults and
// clamps overrides to them, so a request can narrow a scan but not widen it.
func (s *TicketService) mergeScanOptions(opts provider.ScanOptions) provider.ScanOptions {
	d := s.scanDefaults
	if len(opts.Channels) == 0 {
		opts.Channels = d.Channels
	}
	opts.MaxChannels = clampBound(opts.MaxChannels, d.MaxChannels)
	opts.MaxConcurrentChannels = clampBound(opts.MaxConcurrentChannels, d.MaxConcurrentChannels)
	opts.BatchSize = clampBound(opts.BatchSize, d.BatchSize)
	opts.MessagesPerChannel = clampBound(opts.MessagesPerChannel, d.MessagesPerChannel)
	switch {
	case opts.ThreadReplies == nil || *opts.ThreadReplies < 0:
		opts.ThreadReplies = d.ThreadReplies
	case d.ThreadReplies != nil && *opts.ThreadReplies > *d.ThreadReplies:
		opts.ThreadReplies = provider.Replies(*d.ThreadReplies)
	}
	if opts.Oldest.IsZero() {
		opts.Oldest = d.Oldest
	}
	return opts
}

// clampBound returns limit for an unset v and caps v at a positive limit.
func clampBound(v, limit int) int {
	if v <= 0 {
		return limit
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

// CacheStats returns the cache stats of one provider.
func (s *TicketService) CacheStats(providerName string) (cache.Stats, error) {
	p, err := s.Provider(providerName)
	if err != nil {
		return cache.Stats{}, err
	}
	return p.CacheStats(), nil
}

// AllCacheStats returns the cache stats of every provider.
func (s *TicketService) AllCacheStats() map[string]cache.Stats {
	out := make(map[string]cache.Stats, len(s.providers))
	for name, p := range s.providers {
		out[name] = p.CacheStats()
	}
	return out
}

// ClearCache empties one provider cache and reports how many live entries it held.
func (s *TicketService) ClearCache(ctx context.Context, providerName string) (int, error) {
	p, err := s.Provider(providerName)
	if err != nil {
		return 0, err
	}
	dropped := p.CacheStats().Size
	p.ClearCache()
	s.publish(ctx, events.New(events.EventCacheCleared, p.Name(), "", ActorFrom(ctx), events.CacheClearedPayload{
		EntriesDropped: dropped,
	}))
	return dropped, nil
}

// ClearAllCaches empties every provider cache.
func (s *TicketService) ClearAllCaches(ctx context.Context) map[string]int {
	out := make(map[string]int, len(s.providers))
	for _, name := range s.ProviderNames() {
		dropped, _ := s.ClearCache(ctx, name)
		out[name] = dropped
	}
	return out
}

// InvalidateCache drops one cache entry. The key is the ticket id the entry
// was fetched with.
func (s *TicketService) InvalidateCache(ctx context.Context, providerName, key string) error {
	p, err := s.Provider(providerName)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.NewValidationError("cache key is required", nil)
	}
	p.InvalidateCache(key)
	s.publish(ctx, events.New(events.EventCacheInvalidated, p.Name(), key, ActorFrom(ctx), events.CacheInvalidatedPayload{Key: key}))
	return nil
}

// SweepExpired purges expired entries from every cache and returns the
// number of live entries left.
func (s *TicketService) SweepExpired() int {
	live := 0
	for _, p := range s.providers {
		live += p.CacheStats().Size
	}
	return live
}

// ValidateProviders checks every provider configuration concurrently.
func (s *TicketService) ValidateProviders(ctx context.Context) map[string]bool {
	var (
		mu  sync.Mutex
		out = make(map[string]bool, len(s.providers))
		g   errgroup.Group
	)
	for name, p := range s.providers {
		name, p := name, p
		g.Go(func() error {
			ok := p.ValidateConfig(ctx)
			mu.Lock()
			out[name] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

type actorKey struct{}

// WithActor attaches the actor that events published under ctx are attributed to.
func WithActor(ctx context.Context, actor events.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor, or a system actor.
func ActorFrom(ctx context.Context) events.Actor {
	if actor, ok := ctx.Value(actorKey{}).(events.Actor); ok {
		return actor
	}
	return events.Actor{Type: "system"}
}
