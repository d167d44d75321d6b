package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketlens/ticket-aggregator/internal/api/http/handlers"
	"github.com/ticketlens/ticket-aggregator/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Providers      *handlers.ProvidersHandler
	Scan           *handlers.ScanHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Metrics)

	tickets := app.Group("/tickets")
	tickets.Post("/batch", cfg.Tickets.BatchTickets)
	tickets.Get("/:provider", cfg.Tickets.GetTicket)
	tickets.Post("/:provider/map", cfg.Tickets.MapTicket)

	app.Post("/slack/scan", cfg.Scan.ScanSlack)

	app.Get("/providers", cfg.Providers.ListProviders)

	admin := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleAdmin), h}
	}
	app.Get("/events", admin(cfg.Metrics.RecentEvents)...)
	app.Post("/providers/validate", admin(cfg.Providers.ValidateProviders)...)
	app.Delete("/providers/cache", admin(cfg.Providers.ClearAllCaches)...)
	app.Get("/providers/:provider/cache", admin(cfg.Providers.CacheStats)...)
	app.Delete("/providers/:provider/cache", admin(cfg.Providers.ClearCache)...)
	app.Delete("/providers/:provider/cache/entry", admin(cfg.Providers.InvalidateEntry)...)
}
