package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketlens/ticket-aggregator/internal/auth"
	"github.com/ticketlens/ticket-aggregator/internal/events"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	"github.com/ticketlens/ticket-aggregator/internal/service"
)

const errorContextKey = "error_context"

// SetErrorContext records which operation a handler performs so that a
// failure is phrased for it.
func SetErrorContext(c *fiber.Ctx, errCtx string) {
	c.Locals(errorContextKey, errCtx)
}

// ErrorContext returns the context set by SetErrorContext, defaulting to
// presenter.ContextTicketFetch.
func ErrorContext(c *fiber.Ctx) string {
	if v, ok := c.Locals(errorContextKey).(string); ok && v != "" {
		return v
	}
	return presenter.ContextTicketFetch
}

// actorContext returns the request context carrying the caller as event actor.
func actorContext(c *fiber.Ctx) context.Context {
	actor := events.Actor{Type: "http"}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		actor.Subject = principal.Subject
	}
	return service.WithActor(c.UserContext(), actor)
}
