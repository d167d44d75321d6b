package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketlens/ticket-aggregator/internal/api/dto"
	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	"github.com/ticketlens/ticket-aggregator/internal/provider"
	"github.com/ticketlens/ticket-aggregator/internal/service"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// ScanHandler runs Slack batch scans.
type ScanHandler struct {
	service    *service.TicketService
	classifier *classify.Classifier
}

// NewScanHandler constructs handler.
func NewScanHandler(ticketService *service.TicketService, classifier *classify.Classifier) *ScanHandler {
	if classifier == nil {
		classifier = classify.Default()
	}
	return &ScanHandler{service: ticketService, classifier: classifier}
}

// ScanSlack POST /slack/scan. An empty body scans with the configured bounds.
func (h *ScanHandler) ScanSlack(c *fiber.Ctx) error {
	SetErrorContext(c, presenter.ContextBuild)
	var req dto.ScanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.MaxChannels < 0 || req.MaxConcurrentChannels < 0 || req.BatchSize < 0 || (req.ThreadReplies != nil && *req.ThreadReplies < 0) || req.MessagesPerChannel < 0 {
		return apperrors.NewValidationError("scan bounds must not be negative", nil)
	}

	opts := provider.ScanOptions{
		Channels:              req.Channels,
		MaxChannels:           req.MaxChannels,
		MaxConcurrentChannels: req.MaxConcurrentChannels,
		BatchSize:             req.BatchSize,
		ThreadReplies:         req.ThreadReplies,
		MessagesPerChannel:    req.MessagesPerChannel,
	}
	if req.Oldest != nil {
		opts.Oldest = *req.Oldest
	}

	result, err := h.service.ScanSlack(actorContext(c), opts)
	if err != nil {
		return err
	}
	tickets := make([]dto.TicketResponse, 0, len(result.Tickets))
	for _, t := range result.Tickets {
		tickets = append(tickets, dto.NewTicketResponse(t, h.classifier))
	}
	return c.JSON(fiber.Map{"data": dto.ScanResponse{
		Tickets:         tickets,
		ChannelsScanned: result.ChannelsScanned,
		MessagesScanned: result.MessagesScanned,
		ChannelErrors:   result.ChannelErrors,
	}})
}
