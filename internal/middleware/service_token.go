package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/models"
)

// ServiceTokenHeader carries the shared secret of trusted internal callers
const ServiceTokenHeader = "X-Service-Token"

// RequireServiceToken guards endpoints only trusted services may call, such as
// purchase fulfillment credits. An empty configured token disables the endpoint.
func RequireServiceToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error:     "Service endpoint not configured",
				ErrorCode: "service_disabled",
			})
		}

		provided := c.Get(ServiceTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			log.Printf("🚫 [QUOTA] Rejected service call from %s on %s", c.IP(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error:     "Invalid service token",
				ErrorCode: "unauthorized",
			})
		}
		return c.Next()
	}
}
