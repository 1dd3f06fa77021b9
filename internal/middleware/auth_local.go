package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"heartline/pkg/auth"
)

// LocalsUserID holds the authenticated user id, absent for anonymous callers
const LocalsUserID = "user_id"

// OptionalLocalAuthMiddleware attaches the session user when a valid token is present.
// Supports both Authorization header and query parameter (for WebSocket).
// Missing or invalid tokens continue anonymously so guests can still chat.
func OptionalLocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	if jwtAuth == nil && os.Getenv("ENVIRONMENT") == "production" {
		// CRITICAL: registered identities cannot be verified without a secret
		log.Fatal("❌ CRITICAL SECURITY ERROR: JWT auth not configured in production environment")
	}

	return func(c *fiber.Ctx) error {
		var token string

		// 1. Try Authorization header first
		if authHeader := c.Get("Authorization"); authHeader != "" {
			if extractedToken, err := auth.ExtractToken(authHeader); err == nil {
				token = extractedToken
			}
		}

		// 2. Try query parameter (for WebSocket connections)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Next()
		}

		if jwtAuth == nil {
			log.Println("⚠️  JWT not configured, ignoring session token (dev mode)")
			return c.Next()
		}

		user, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("⚠️  Token validation failed: %v (continuing as anonymous)", err)
			return c.Next()
		}

		c.Locals(LocalsUserID, user.ID)
		return c.Next()
	}
}

// UserID returns the authenticated user id or ""
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalsUserID).(string)
	return id
}
