// middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecretMiddleware accepts only updates carrying the secret registered
// with setWebhook. An empty secret disables the check.
func WebhookSecretMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		got := c.Get(TelegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Printf("🚫 [WEBHOOK_AUTH] Rejected update from %s: bad secret token", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid webhook secret",
			})
		}
		return c.Next()
	}
}
