package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketFetched     EventType = "ticket_fetched"
	EventTicketFetchFailed EventType = "ticket_fetch_failed"
	EventCacheCleared      EventType = "cache_cleared"
	EventCacheInvalidated  EventType = "cache_invalidated"
	EventSlackScanned      EventType = "slack_scan_completed"
)

// Actor describes who triggered an event.
type Actor struct {
	// Type is "http", "cli" or "worker".
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Provider  string      `json:"provider"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New builds an event with a fresh id and the current UTC time.
func New(eventType EventType, provider, ticketID string, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Provider:  provider,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketFetchedPayload payload.
type TicketFetchedPayload struct {
	Key      string        `json:"key"`
	Priority string        `json:"priority"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

// TicketFetchFailedPayload payload.
type TicketFetchFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CacheClearedPayload payload.
type CacheClearedPayload struct {
	EntriesDropped int `json:"entries_dropped"`
}

// CacheInvalidatedPayload payload.
type CacheInvalidatedPayload struct {
	Key string `json:"key"`
}

// SlackScannedPayload payload.
type SlackScannedPayload struct {
	Tickets         int               `json:"tickets"`
	ChannelsScanned int               `json:"channels_scanned"`
	MessagesScanned int               `json:"messages_scanned"`
	ChannelErrors   map[string]string `json:"channel_errors,omitempty"`
}
