// middleware/internal.go
package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

// InternalAuthMiddleware guards the game service callbacks under /internal.
// They carry X-Internal-Token, a secret the gateway never holds, so gateway
// traffic cannot report winners or cancel games.
func InternalAuthMiddleware(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Fatal("❌ INTERNAL_SERVICE_TOKEN is not set, internal routes cannot authenticate the game service")
	}

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Internal-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("🚫 [INTERNAL_AUTH] Rejected %s %s", c.Method(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid internal service token",
			})
		}
		return c.Next()
	}
}
