package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// RequireRole ensures the principal has one of the allowed roles. With no
// roles given any authenticated principal passes.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewPermissionError("insufficient role", map[string]any{"role": principal.Role})
		}
		return c.Next()
	}
}
