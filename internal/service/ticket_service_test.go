package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketlens/ticket-aggregator/internal/cache"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/events"
	"github.com/ticketlens/ticket-aggregator/internal/provider"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

type fakeProvider struct {
	name    string
	mu      sync.Mutex
	tickets map[string]*domain.RecentTicket
	errs    map[string]error
	entries map[string]bool
	valid   bool
	calls   int32
	delay   time.Duration
	active  int32
	peak    int32
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:    name,
		tickets: map[string]*domain.RecentTicket{},
		errs:    map[string]error{},
		entries: map[string]bool{},
		valid:   true,
	}
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) ValidateConfig(context.Context) bool { return f.valid }

func (f *fakeProvider) GetTicket(_ context.Context, id string) (*domain.RecentTicket, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	t, ok := f.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	f.entries[id] = true
	return t.Clone(), nil
}

func (f *fakeProvider) MapToRecentTicket(raw json.RawMessage) (*domain.RecentTicket, error) {
	var t domain.RecentTicket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, apperrors.NewParsingError("bad payload", err)
	}
	t.Provider = domain.ProviderKind(f.name)
	t.Normalize()
	return &t, nil
}

func (f *fakeProvider) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = map[string]bool{}
}

func (f *fakeProvider) CacheStats() cache.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return cache.Stats{Size: len(keys), Keys: keys}
}

func (f *fakeProvider) InvalidateCache(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
}

type fakeScanner struct {
	*fakeProvider
	got provider.ScanOptions
}

func (f *fakeScanner) ScanChannels(_ context.Context, opts provider.ScanOptions) (*provider.ScanResult, error) {
	f.got = opts
	return &provider.ScanResult{
		Tickets:         []*domain.RecentTicket{{ID: "1.2", Provider: domain.ProviderSlack}},
		ChannelsScanned: 2,
		MessagesScanned: 7,
	}, nil
}

func newTestService(t *testing.T, providers ...provider.Provider) (*TicketService, *AuditService) {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher()
	audit := NewAuditService(dispatcher, nil, 10)
	audit.RegisterHandlers()
	svc := NewTicketService(TicketDependencies{
		Providers:        providers,
		Dispatcher:       dispatcher,
		BatchConcurrency: 2,
		ScanDefaults: provider.ScanOptions{
			MaxChannels:           5,
			MaxConcurrentChannels: 3,
			BatchSize:             10,
			ThreadReplies:         provider.Replies(10),
			MessagesPerChannel:    100,
		},
	})
	return svc, audit
}

func TestTicketService_ProviderLookup(t *testing.T) {
	svc, _ := newTestService(t, newFakeProvider("jira"), newFakeProvider("github"))

	assert.Equal(t, []string{"github", "jira"}, svc.ProviderNames())

	p, err := svc.Provider(" JIRA ")
	require.NoError(t, err)
	assert.Equal(t, "jira", p.Name())

	_, err = svc.Provider("trello")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTicketService_GetTicketPublishesEvents(t *testing.T) {
	jira := newFakeProvider("jira")
	jira.tickets["TEST-1"] = &domain.RecentTicket{ID: "10001", Key: "TEST-1", Priority: domain.PriorityHigh, Status: "In Progress"}
	jira.errs["TEST-2"] = apperrors.NewRateLimitError("jira", nil)
	svc, audit := newTestService(t, jira)

	ctx := WithActor(context.Background(), events.Actor{Type: "http", Subject: "admin"})
	ticket, err := svc.GetTicket(ctx, "jira", " TEST-1 ")
	require.NoError(t, err)
	assert.Equal(t, "10001", ticket.ID)

	_, err = svc.GetTicket(ctx, "jira", "TEST-2")
	assert.True(t, apperrors.IsRateLimit(err))

	recent := audit.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, events.EventTicketFetchFailed, recent[0].Type)
	assert.Equal(t, apperrors.CodeRateLimit, recent[0].Payload.(events.TicketFetchFailedPayload).Code)
	assert.Equal(t, events.EventTicketFetched, recent[1].Type)
	assert.Equal(t, "10001", recent[1].TicketID)
	assert.Equal(t, "admin", recent[1].Actor.Subject)
}

func TestTicketService_MapRaw(t *testing.T) {
	svc, _ := newTestService(t, newFakeProvider("github"))

	ticket, err := svc.MapRaw("github", json.RawMessage(`{"id":"o/r#1"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPriority, ticket.Priority)
	assert.Equal(t, domain.DefaultStatus, ticket.Status)

	_, err = svc.MapRaw("nope", json.RawMessage(`{}`))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTicketService_BatchGetKeepsOrderAndIsolatesFailures(t *testing.T) {
	jira := newFakeProvider("jira")
	jira.delay = 10 * time.Millisecond
	for _, key := range []string{"A-1", "A-2", "A-3", "A-4"} {
		jira.tickets[key] = &domain.RecentTicket{ID: key, Key: key}
	}
	svc, _ := newTestService(t, jira)

	refs := []TicketRef{
		{Provider: "jira", ID: "A-1"},
		{Provider: "slack", ID: "C1/1.2"},
		{Provider: "jira", ID: "A-9"},
		{Provider: "jira", ID: "A-2"},
		{Provider: "jira", ID: "A-3"},
		{Provider: "jira", ID: "A-4"},
	}
	results, err := svc.BatchGet(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, results, len(refs))

	assert.Equal(t, "A-1", results[0].Ticket.ID)
	assert.True(t, apperrors.IsNotFound(results[1].Err))
	assert.True(t, apperrors.IsNotFound(results[2].Err))
	assert.Nil(t, results[2].Ticket)
	assert.Equal(t, "A-4", results[5].Ticket.ID)
	assert.Equal(t, refs[3], results[3].Ref)
	assert.LessOrEqual(t, atomic.LoadInt32(&jira.peak), int32(2))
}

func TestTicketService_BatchGetValidatesSize(t *testing.T) {
	svc, _ := newTestService(t, newFakeProvider("jira"))

	_, err := svc.BatchGet(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.BatchGet(context.Background(), make([]TicketRef, MaxBatchRefs+1))
	assert.True(t, apperrors.IsValidation(err))
}

func TestTicketService_CacheAdministration(t *testing.T) {
	jira := newFakeProvider("jira")
	jira.tickets["A-1"] = &domain.RecentTicket{ID: "1", Key: "A-1"}
	jira.tickets["A-2"] = &domain.RecentTicket{ID: "2", Key: "A-2"}
	github := newFakeProvider("github")
	svc, audit := newTestService(t, jira, github)
	ctx := context.Background()

	_, _ = svc.GetTicket(ctx, "jira", "A-1")
	_, _ = svc.GetTicket(ctx, "jira", "A-2")

	stats, err := svc.CacheStats("jira")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, svc.SweepExpired())

	require.NoError(t, svc.InvalidateCache(ctx, "jira", "A-1"))
	assert.Equal(t, 1, svc.AllCacheStats()["jira"].Size)
	assert.True(t, apperrors.IsValidation(svc.InvalidateCache(ctx, "jira", "  ")))

	dropped := svc.ClearAllCaches(ctx)
	assert.Equal(t, map[string]int{"github": 0, "jira": 1}, dropped)
	assert.Equal(t, 0, svc.AllCacheStats()["jira"].Size)

	_, err = svc.ClearCache(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))

	recent := audit.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, events.EventCacheCleared, recent[0].Type)
	assert.Equal(t, "jira", recent[0].Provider)
	assert.Equal(t, events.EventCacheCleared, recent[1].Type)
	assert.Equal(t, events.EventCacheInvalidated, recent[2].Type)
}

func TestTicketService_ValidateProviders(t *testing.T) {
	jira := newFakeProvider("jira")
	github := newFakeProvider("github")
	github.valid = false
	svc, _ := newTestService(t, jira, github)

	assert.Equal(t, map[string]bool{"jira": true, "github": false}, svc.ValidateProviders(context.Background()))
}

func TestTicketService_ScanSlack(t *testing.T) {
	t.Run("merges defaults and publishes", func(t *testing.T) {
		slack := &fakeScanner{fakeProvider: newFakeProvider("slack")}
		svc, audit := newTestService(t, slack)

		result, err := svc.ScanSlack(context.Background(), provider.ScanOptions{BatchSize: 3})
		require.NoError(t, err)
		assert.Len(t, result.Tickets, 1)
		assert.Equal(t, 5, slack.got.MaxChannels)
		assert.Equal(t, 3, slack.got.MaxConcurrentChannels)
		assert.Equal(t, 3, slack.got.BatchSize)
		require.NotNil(t, slack.got.ThreadReplies)
		assert.Equal(t, 10, *slack.got.ThreadReplies)

		recent := audit.Recent(1)
		require.Len(t, recent, 1)
		assert.Equal(t, events.EventSlackScanned, recent[0].Type)
		assert.Equal(t, 7, recent[0].Payload.(events.SlackScannedPayload).MessagesScanned)
	})

	t.Run("caps overrides at the configured bounds", func(t *testing.T) {
		slack := &fakeScanner{fakeProvider: newFakeProvider("slack")}
		svc, _ := newTestService(t, slack)

		_, err := svc.ScanSlack(context.Background(), provider.ScanOptions{
			MaxChannels:           500,
			MaxConcurrentChannels: 64,
			BatchSize:             1000,
			ThreadReplies:         provider.Replies(200),
			MessagesPerChannel:    10000,
		})
		require.NoError(t, err)
		assert.Equal(t, 5, slack.got.MaxChannels)
		assert.Equal(t, 3, slack.got.MaxConcurrentChannels)
		assert.Equal(t, 10, slack.got.BatchSize)
		assert.Equal(t, 100, slack.got.MessagesPerChannel)
		assert.Equal(t, 10, *slack.got.ThreadReplies)
	})

	t.Run("narrower overrides are kept", func(t *testing.T) {
		slack := &fakeScanner{fakeProvider: newFakeProvider("slack")}
		svc, _ := newTestService(t, slack)

		_, err := svc.ScanSlack(context.Background(), provider.ScanOptions{
			MaxChannels:           2,
			MaxConcurrentChannels: 1,
			ThreadReplies:         provider.Replies(0),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, slack.got.MaxChannels)
		assert.Equal(t, 1, slack.got.MaxConcurrentChannels)
		assert.Equal(t, 10, slack.got.BatchSize)
		assert.Equal(t, 0, *slack.got.ThreadReplies)
	})

	t.Run("slack not configured", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeProvider("jira"))
		_, err := svc.ScanSlack(context.Background(), provider.ScanOptions{})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("provider without scanning", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeProvider("slack"))
		_, err := svc.ScanSlack(context.Background(), provider.ScanOptions{})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestAuditService_HistoryIsBounded(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	audit := NewAuditService(dispatcher, nil, 3)
	audit.RegisterHandlers()

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, dispatcher.Publish(context.Background(), events.New(events.EventTicketFetched, "jira", id, events.Actor{Type: "cli"}, nil)))
	}

	recent := audit.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "5", recent[0].TicketID)
	assert.Equal(t, "3", recent[2].TicketID)
	assert.Len(t, audit.Recent(2), 2)
}

func TestActorFrom_DefaultsToSystem(t *testing.T) {
	assert.Equal(t, "system", ActorFrom(context.Background()).Type)
}
