package middleware

import (
	"strings"

	"outreachly/config"
	"outreachly/models"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
)

// Protected resolves the bearer token to a user row and stores it in locals.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "invalid or expired token", nil)
		}

		var user models.User
		if err := config.DB.First(&user, claims.UserID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "user not found", nil)
		}
		if !user.IsActive {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "account is not active", nil)
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

// extractToken reads the bearer header, falling back to the access_token
// cookie for browser clients.
func extractToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Cookies("access_token")
}
