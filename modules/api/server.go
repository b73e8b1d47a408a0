package api

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/realtime-chatroom/modules/auth"
)

// NewApp builds the Fiber app with every route mounted.
func NewApp(svc ChatService, gateway *Gateway, tokens TokenValidator) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(loggerMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{
			Status: "healthy",
			Details: map[string]any{
				"connected_clients": gateway.ClientCount(),
				"relay_topics":      gateway.TopicCount(),
			},
		})
	})

	// WebSocket gateway
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", QueryTokenMiddleware(tokens, svc), websocket.New(func(conn *websocket.Conn) {
		claims, _ := conn.Locals(UserContextKey).(*auth.Claims)
		if claims == nil {
			_ = conn.Close()
			return
		}
		gateway.Serve(context.Background(), conn, claims.Subject)
	}))

	h := NewHandlers(svc)
	v1 := app.Group("/api/v1", AuthMiddleware(tokens, svc))

	v1.Get("/rooms", h.listRooms)
	v1.Post("/rooms", h.createRoom)
	v1.Get("/rooms/:id", h.getRoom)
	v1.Delete("/rooms/:id", h.deleteRoom)

	v1.Get("/rooms/:id/messages", h.listMessages)
	v1.Post("/rooms/:id/messages", h.sendMessage)
	v1.Delete("/rooms/:id/messages/:messageId", h.deleteMessage)

	v1.Get("/rooms/:id/members", h.listMembers)
	v1.Delete("/rooms/:id/members/me", h.leaveRoom)

	v1.Get("/rooms/:id/bans", h.listBans)
	v1.Post("/rooms/:id/bans", h.banMember)
	v1.Delete("/rooms/:id/bans/:userId", h.unbanMember)

	v1.Get("/rooms/:id/invites", h.listRoomInvites)
	v1.Post("/rooms/:id/invites", h.inviteUser)
	v1.Delete("/rooms/:id/invites/:userId", h.revokeInvite)

	v1.Get("/rooms/:id/invite-link", h.getInviteLink)
	v1.Post("/rooms/:id/invite-link", h.regenerateInviteLink)

	v1.Get("/invites", h.listMyInvites)
	v1.Post("/invites/:roomId/accept", h.acceptInvite)
	v1.Delete("/invites/:roomId", h.declineInvite)

	v1.Post("/join/:token", h.joinByLink)

	return app
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
