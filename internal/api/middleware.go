package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenString := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))

		if err != nil || !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals("userID", sub)
		return c.Next()
	}
}

// rateLimited guards brute-forceable endpoints with the shared limiter
func (s *Server) rateLimited(handler fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.loginLimiter.Allow() {
			return c.Status(429).JSON(fiber.Map{"error": "too many attempts, slow down"})
		}
		return handler(c)
	}
}

// currentUser reads the authenticated user ID set by authMiddleware
func currentUser(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
