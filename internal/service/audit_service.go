package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/events"
)

// DefaultAuditHistory is the number of events kept for inspection.
const DefaultAuditHistory = 100

// AuditService logs fetch and cache events and keeps the most recent ones.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	history []events.Event
	limit   int
}

// NewAuditService creates the service. limit <= 0 uses DefaultAuditHistory.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, limit int) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultAuditHistory
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		limit:      limit,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketFetched, a.handleTicketFetched)
	a.dispatcher.Subscribe(events.EventTicketFetchFailed, a.handleTicketFetchFailed)
	a.dispatcher.Subscribe(events.EventCacheCleared, a.handleCacheChanged)
	a.dispatcher.Subscribe(events.EventCacheInvalidated, a.handleCacheChanged)
	a.dispatcher.Subscribe(events.EventSlackScanned, a.handleSlackScanned)
}

// Recent returns up to n of the latest events, newest first.
func (a *AuditService) Recent(n int) []events.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.history) {
		n = len(a.history)
	}
	out := make([]events.Event, 0, n)
	for i := len(a.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.history[i])
	}
	return out
}

func (a *AuditService) record(event events.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, event)
	if over := len(a.history) - a.limit; over > 0 {
		a.history = append(a.history[:0:0], a.history[over:]...)
	}
}

func (a *AuditService) fields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("provider", event.Provider),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor", event.Actor.Type),
		zap.String("subject", event.Actor.Subject),
	}
}

func (a *AuditService) handleTicketFetched(ctx context.Context, event events.Event) error {
	a.record(event)
	a.logger.Debug("TicketFetched", append(a.fields(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) handleTicketFetchFailed(ctx context.Context, event events.Event) error {
	a.record(event)
	a.logger.Info("TicketFetchFailed", append(a.fields(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) handleCacheChanged(ctx context.Context, event events.Event) error {
	a.record(event)
	a.logger.Info(string(event.Type), append(a.fields(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) handleSlackScanned(ctx context.Context, event events.Event) error {
	a.record(event)
	a.logger.Info("SlackScanCompleted", append(a.fields(event), zap.Any("payload", event.Payload))...)
	return nil
}
