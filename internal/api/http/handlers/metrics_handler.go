package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketlens/ticket-aggregator/internal/observability"
	"github.com/ticketlens/ticket-aggregator/internal/service"
)

// MetricsHandler exposes in-memory counters and the audit trail.
type MetricsHandler struct {
	metrics *observability.Metrics
	audit   *service.AuditService
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metrics *observability.Metrics, audit *service.AuditService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, audit: audit}
}

// Metrics GET /metrics.
func (h *MetricsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

// RecentEvents GET /events?limit=.
func (h *MetricsHandler) RecentEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if h.audit == nil {
		return c.JSON(fiber.Map{"data": []any{}})
	}
	return c.JSON(fiber.Map{"data": h.audit.Recent(limit)})
}
