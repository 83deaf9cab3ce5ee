// middleware/sse_auth.go
package middleware

import (
	"log"
	"strings"

	"camly-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware validates `token` and `device_id` from query params via
// the account service. EventSource cannot set headers, so the reward stream
// authenticates here instead of through the gateway user context.
//
// Usage:
//
//	app.Get("/s/rewards/stream", middleware.SSEAuthMiddleware(accountClient), accrual.StreamRewardsSSE)
func SSEAuthMiddleware(accountClient *services.AccountServiceClient) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := accountClient.ValidateToken(accessToken, deviceID)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Validation failed for device %s: %v", deviceID, err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		// Same locals the gateway user context sets, but sourced from query.
		c.Locals("user_id", resp.UserID)
		c.Locals("user_roles", resp.Roles)
		c.Locals("device_id", resp.DeviceID)

		return c.Next()
	}
}
