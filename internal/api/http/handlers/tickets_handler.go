package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketlens/ticket-aggregator/internal/api/dto"
	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	"github.com/ticketlens/ticket-aggregator/internal/service"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// TicketsHandler serves normalized tickets.
type TicketsHandler struct {
	service    *service.TicketService
	classifier *classify.Classifier
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, classifier *classify.Classifier) *TicketsHandler {
	if classifier == nil {
		classifier = classify.Default()
	}
	return &TicketsHandler{service: ticketService, classifier: classifier}
}

// GetTicket GET /tickets/:provider?id=.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	SetErrorContext(c, presenter.ContextTicketFetch)
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		return apperrors.NewValidationError("id query parameter required", nil)
	}
	ticket, err := h.service.GetTicket(actorContext(c), c.Params("provider"), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, h.classifier)})
}

// MapTicket POST /tickets/:provider/map. The body is a raw provider payload.
func (h *TicketsHandler) MapTicket(c *fiber.Ctx) error {
	SetErrorContext(c, presenter.ContextBuild)
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return apperrors.NewValidationError("request body required", nil)
	}
	ticket, err := h.service.MapRaw(c.Params("provider"), json.RawMessage(body))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, h.classifier)})
}

// BatchTickets POST /tickets/batch. Per-ref failures are reported inline.
func (h *TicketsHandler) BatchTickets(c *fiber.Ctx) error {
	SetErrorContext(c, presenter.ContextTicketFetch)
	var req dto.BatchTicketsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	refs := make([]service.TicketRef, 0, len(req.Refs))
	for _, ref := range req.Refs {
		refs = append(refs, service.TicketRef{Provider: ref.Provider, ID: ref.ID})
	}
	results, err := h.service.BatchGet(actorContext(c), refs)
	if err != nil {
		return err
	}

	items := make([]dto.BatchTicketItem, 0, len(results))
	failed := 0
	for _, res := range results {
		item := dto.BatchTicketItem{Provider: res.Ref.Provider, ID: res.Ref.ID}
		if res.Err != nil {
			item.Error = dto.NewErrorBody(res.Err, presenter.ContextTicketFetch)
			failed++
		} else {
			resp := dto.NewTicketResponse(res.Ticket, h.classifier)
			item.Ticket = &resp
		}
		items = append(items, item)
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": fiber.Map{"total": len(items), "failed": failed},
	})
}
