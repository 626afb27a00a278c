package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/ticket-lifecycle/internal/observability"
	apperrors "github.com/supportdesk/ticket-lifecycle/pkg/errorutil"
)

// AnonymousActor is recorded on events when no token is presented and
// authentication is optional.
const AnonymousActor = "anonymous"

// AuthMiddleware validates bearer tokens and records the acting user.
type AuthMiddleware struct {
	tokens   *TokenManager
	required bool
}

// NewAuthMiddleware constructs middleware. When required is false, requests
// without an Authorization header proceed as AnonymousActor; a header that
// is present must still carry a valid token.
func NewAuthMiddleware(tokens *TokenManager, required bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, required: required}
}

// Handle resolves the actor for the request.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if m.required {
			return apperrors.NewUnauthorized("missing authorization header")
		}
		c.Locals(observability.ActorLocal, AnonymousActor)
		return c.Next()
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(observability.ActorLocal, claims.Subject)
	return c.Next()
}

// ActorFromContext returns the acting user's id.
func ActorFromContext(c *fiber.Ctx) string {
	if actor, ok := c.Locals(observability.ActorLocal).(string); ok && actor != "" {
		return actor
	}
	return AnonymousActor
}
