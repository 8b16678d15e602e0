package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/linguaverse/messaging-service/internal/auth"
)

func jwtAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ParseBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		claims, err := auth.ParseAndValidateToken(secret, token)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)
		return c.Next()
	}
}
