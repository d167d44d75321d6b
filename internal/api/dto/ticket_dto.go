package dto

import (
	"time"

	"github.com/ticketlens/ticket-aggregator/internal/cache"
	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// TicketResponse is a normalized ticket plus its derived status flags.
type TicketResponse struct {
	*domain.RecentTicket
	Flags classify.StatusFlags `json:"flags"`
}

// NewTicketResponse attaches the classifier's status flags to t.
func NewTicketResponse(t *domain.RecentTicket, c *classify.Classifier) TicketResponse {
	return TicketResponse{RecentTicket: t, Flags: c.Flags(t.Status)}
}

// ErrorBody is the error envelope of failed requests and batch items.
type ErrorBody struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	UserMessage string         `json:"user_message,omitempty"`
}

// TicketRefRequest names one ticket of a batch.
type TicketRefRequest struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// BatchTicketsRequest payload.
type BatchTicketsRequest struct {
	Refs []TicketRefRequest `json:"refs"`
}

// BatchTicketItem is the outcome of one ref; exactly one of Ticket and Error is set.
type BatchTicketItem struct {
	Provider string          `json:"provider"`
	ID       string          `json:"id"`
	Ticket   *TicketResponse `json:"ticket,omitempty"`
	Error    *ErrorBody      `json:"error,omitempty"`
}

// ScanRequest narrows the configured scan bounds; zero values keep them and
// larger values are capped. thread_replies 0 skips threads.
type ScanRequest struct {
	Channels              []string   `json:"channels"`
	MaxChannels           int        `json:"max_channels"`
	MaxConcurrentChannels int        `json:"max_concurrent_channels"`
	BatchSize             int        `json:"batch_size"`
	ThreadReplies         *int       `json:"thread_replies"`
	MessagesPerChannel    int        `json:"messages_per_channel"`
	Oldest                *time.Time `json:"oldest"`
}

// ScanResponse payload.
type ScanResponse struct {
	Tickets         []TicketResponse  `json:"tickets"`
	ChannelsScanned int               `json:"channels_scanned"`
	MessagesScanned int               `json:"messages_scanned"`
	ChannelErrors   map[string]string `json:"channel_errors,omitempty"`
}

// ProviderInfo describes one registered provider.
type ProviderInfo struct {
	Name  string      `json:"name"`
	Cache cache.Stats `json:"cache"`
}

// NewErrorBody renders err with the user-facing message for errCtx.
func NewErrorBody(err error, errCtx string) *ErrorBody {
	domainErr := apperrors.ToDomainError(err)
	body := &ErrorBody{
		Code:        domainErr.Code,
		Message:     domainErr.Message,
		UserMessage: presenter.ForError(err, errCtx),
	}
	if len(domainErr.Details) > 0 {
		body.Details = domainErr.Details
	}
	return body
}
