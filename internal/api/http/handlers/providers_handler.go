package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketlens/ticket-aggregator/internal/api/dto"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	"github.com/ticketlens/ticket-aggregator/internal/service"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// ProvidersHandler exposes provider listing and cache administration.
type ProvidersHandler struct {
	service *service.TicketService
}

// NewProvidersHandler constructs handler.
func NewProvidersHandler(ticketService *service.TicketService) *ProvidersHandler {
	return &ProvidersHandler{service: ticketService}
}

// ListProviders GET /providers.
func (h *ProvidersHandler) ListProviders(c *fiber.Ctx) error {
	stats := h.service.AllCacheStats()
	items := make([]dto.ProviderInfo, 0, len(stats))
	for _, name := range h.service.ProviderNames() {
		items = append(items, dto.ProviderInfo{Name: name, Cache: stats[name]})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ValidateProviders POST /providers/validate.
func (h *ProvidersHandler) ValidateProviders(c *fiber.Ctx) error {
	SetErrorContext(c, presenter.ContextProviderConnection)
	return c.JSON(fiber.Map{"data": h.service.ValidateProviders(c.UserContext())})
}

// CacheStats GET /providers/:provider/cache.
func (h *ProvidersHandler) CacheStats(c *fiber.Ctx) error {
	stats, err := h.service.CacheStats(c.Params("provider"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// ClearCache DELETE /providers/:provider/cache.
func (h *ProvidersHandler) ClearCache(c *fiber.Ctx) error {
	dropped, err := h.service.ClearCache(actorContext(c), c.Params("provider"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"entries_dropped": dropped}})
}

// ClearAllCaches DELETE /providers/cache.
func (h *ProvidersHandler) ClearAllCaches(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.service.ClearAllCaches(actorContext(c))})
}

// InvalidateEntry DELETE /providers/:provider/cache/entry?key=.
func (h *ProvidersHandler) InvalidateEntry(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		return apperrors.NewValidationError("key query parameter required", nil)
	}
	if err := h.service.InvalidateCache(actorContext(c), c.Params("provider"), key); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
