package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loan-query-service/internal/domain"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// RequireTeam ensures the caller belongs to one of the allowed teams.
func RequireTeam(allowed ...domain.Team) fiber.Handler {
	allowedSet := make(map[domain.Team]struct{}, len(allowed))
	for _, team := range allowed {
		allowedSet[team] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[actor.Team]; !exists {
			return apperrors.NewForbidden("team not allowed")
		}
		return c.Next()
	}
}

// RequireAnyTeam ensures the caller is authenticated.
func RequireAnyTeam() fiber.Handler {
	return RequireTeam()
}
