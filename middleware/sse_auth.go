// ad-reward-system/middleware/sse_auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"ad-reward-system/services"
)

// SSEAuthMiddleware validates a wallet session `token` from query params via
// the payment/identity provider. EventSource cannot set headers, so SSE
// routes authenticate from the query string instead of the gateway headers.
//
// Usage:
//
//	app.Get("/sse/transactions", middleware.SSEAuthMiddleware(provider), svc.StreamUserTransactionsSSE)
func SSEAuthMiddleware(provider *services.PaymentProviderClient) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		sessionToken := strings.TrimSpace(c.Query("token"))
		if sessionToken == "" {
			log.Printf("[SSEAuth] ❌ Missing token query param for %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}

		resp, err := provider.ValidateSession(sessionToken)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Session validation failed for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", strings.ToLower(resp.WalletAddress))
		return c.Next()
	}
}
