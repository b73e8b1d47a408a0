package api

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	domain "github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/modules/auth"
)

const (
	// UserContextKey is the key used to store user claims in the Fiber context.
	UserContextKey = "user"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// UserRegistrar records users on first sight.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, userID, handle, avatarURL string) (domain.Member, error)
}

// AuthMiddleware validates the bearer token and registers the caller.
func AuthMiddleware(tokens TokenValidator, users UserRegistrar) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Authorization header is required",
			})
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid authorization header format. Use: Bearer <token>",
			})
		}
		return authenticate(c, tokens, users, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

// QueryTokenMiddleware authenticates with the token query parameter. Browsers
// cannot set headers on WebSocket upgrades.
func QueryTokenMiddleware(tokens TokenValidator, users UserRegistrar) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authenticate(c, tokens, users, c.Query("token"))
	}
}

func authenticate(c *fiber.Ctx, tokens TokenValidator, users UserRegistrar, token string) error {
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Token is required",
		})
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid or expired token",
		})
	}

	handle := claims.Handle
	if handle == "" {
		handle = claims.Subject
	}
	if _, err := users.EnsureUser(c.UserContext(), claims.Subject, handle, claims.AvatarURL); err != nil {
		return writeError(c, err)
	}

	c.Locals(UserContextKey, claims)
	return c.Next()
}

// currentUser returns the authenticated user id.
func currentUser(c *fiber.Ctx) string {
	claims, ok := c.Locals(UserContextKey).(*auth.Claims)
	if !ok {
		return ""
	}
	return claims.Subject
}

// loggerMiddleware returns a Fiber middleware for request logging.
func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		err := c.Next()
		log.Printf("[api] %s %s %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}
