package api

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	domain "github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/modules/chat"
)

// ChatService is the chat service consumed by the handlers.
type ChatService interface {
	UserRegistrar
	CreateRoom(ctx context.Context, actor, name, description string) (domain.Room, error)
	DeleteRoom(ctx context.Context, actor, roomID string) error
	GetRoom(ctx context.Context, actor, roomID string) (domain.Room, error)
	ListRooms(ctx context.Context, actor string) ([]domain.Room, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	ListMessages(ctx context.Context, actor, roomID string, limit int) ([]domain.Message, error)
	SendMessage(ctx context.Context, actor, roomID, content, fakeID string) (domain.Message, error)
	DeleteMessage(ctx context.Context, actor, roomID, messageID string) error
	ListMembers(ctx context.Context, actor, roomID string) ([]domain.Member, error)
	LeaveRoom(ctx context.Context, actor, roomID string) error
	BanMember(ctx context.Context, actor, roomID, userID string) error
	UnbanMember(ctx context.Context, actor, roomID, userID string) error
	ListBans(ctx context.Context, actor, roomID string) ([]domain.Member, error)
	InviteUser(ctx context.Context, actor, roomID, inviteeID string) (domain.Invite, error)
	AcceptInvite(ctx context.Context, actor, roomID string) (domain.Room, error)
	DeclineInvite(ctx context.Context, actor, roomID string) error
	RevokeInvite(ctx context.Context, actor, roomID, inviteeID string) error
	ListRoomInvites(ctx context.Context, actor, roomID string) ([]domain.Invite, error)
	ListUserInvites(ctx context.Context, actor string) ([]domain.Invite, error)
	GetInviteLink(ctx context.Context, actor, roomID string) (domain.InviteLink, error)
	RegenerateInviteLink(ctx context.Context, actor, roomID string) (domain.InviteLink, error)
	JoinByLink(ctx context.Context, actor, token string) (domain.Room, error)
}

// Handlers contains the REST handlers.
type Handlers struct {
	chat ChatService
}

// NewHandlers creates a new handlers instance.
func NewHandlers(svc ChatService) *Handlers {
	return &Handlers{chat: svc}
}

// listRooms handles GET /api/v1/rooms.
func (h *Handlers) listRooms(c *fiber.Ctx) error {
	rooms, err := h.chat.ListRooms(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomListResponse{Rooms: rooms})
}

// createRoom handles POST /api/v1/rooms.
func (h *Handlers) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	room, err := h.chat.CreateRoom(c.UserContext(), currentUser(c), req.Name, req.Description)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// getRoom handles GET /api/v1/rooms/:id.
func (h *Handlers) getRoom(c *fiber.Ctx) error {
	room, err := h.chat.GetRoom(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(room)
}

// deleteRoom handles DELETE /api/v1/rooms/:id.
func (h *Handlers) deleteRoom(c *fiber.Ctx) error {
	if err := h.chat.DeleteRoom(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listMessages handles GET /api/v1/rooms/:id/messages.
func (h *Handlers) listMessages(c *fiber.Ctx) error {
	roomID := c.Params("id")
	msgs, err := h.chat.ListMessages(c.UserContext(), currentUser(c), roomID, c.QueryInt("limit", chat.DefaultHistoryLimit))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(MessageListResponse{RoomID: roomID, Messages: msgs})
}

// sendMessage handles POST /api/v1/rooms/:id/messages.
func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	msg, err := h.chat.SendMessage(c.UserContext(), currentUser(c), c.Params("id"), req.Content, req.FakeID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// deleteMessage handles DELETE /api/v1/rooms/:id/messages/:messageId.
func (h *Handlers) deleteMessage(c *fiber.Ctx) error {
	if err := h.chat.DeleteMessage(c.UserContext(), currentUser(c), c.Params("id"), c.Params("messageId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listMembers handles GET /api/v1/rooms/:id/members.
func (h *Handlers) listMembers(c *fiber.Ctx) error {
	roomID := c.Params("id")
	members, err := h.chat.ListMembers(c.UserContext(), currentUser(c), roomID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(MemberListResponse{RoomID: roomID, Members: members})
}

// leaveRoom handles DELETE /api/v1/rooms/:id/members/me.
func (h *Handlers) leaveRoom(c *fiber.Ctx) error {
	if err := h.chat.LeaveRoom(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listBans handles GET /api/v1/rooms/:id/bans.
func (h *Handlers) listBans(c *fiber.Ctx) error {
	roomID := c.Params("id")
	bans, err := h.chat.ListBans(c.UserContext(), currentUser(c), roomID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(MemberListResponse{RoomID: roomID, Members: bans})
}

// banMember handles POST /api/v1/rooms/:id/bans.
func (h *Handlers) banMember(c *fiber.Ctx) error {
	var req UserRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return badRequest(c)
	}
	if err := h.chat.BanMember(c.UserContext(), currentUser(c), c.Params("id"), req.UserID); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// unbanMember handles DELETE /api/v1/rooms/:id/bans/:userId.
func (h *Handlers) unbanMember(c *fiber.Ctx) error {
	if err := h.chat.UnbanMember(c.UserContext(), currentUser(c), c.Params("id"), c.Params("userId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listRoomInvites handles GET /api/v1/rooms/:id/invites.
func (h *Handlers) listRoomInvites(c *fiber.Ctx) error {
	invites, err := h.chat.ListRoomInvites(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(InviteListResponse{Invites: invites})
}

// inviteUser handles POST /api/v1/rooms/:id/invites.
func (h *Handlers) inviteUser(c *fiber.Ctx) error {
	var req UserRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return badRequest(c)
	}
	invite, err := h.chat.InviteUser(c.UserContext(), currentUser(c), c.Params("id"), req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(invite)
}

// revokeInvite handles DELETE /api/v1/rooms/:id/invites/:userId.
func (h *Handlers) revokeInvite(c *fiber.Ctx) error {
	if err := h.chat.RevokeInvite(c.UserContext(), currentUser(c), c.Params("id"), c.Params("userId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// listMyInvites handles GET /api/v1/invites.
func (h *Handlers) listMyInvites(c *fiber.Ctx) error {
	invites, err := h.chat.ListUserInvites(c.UserContext(), currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(InviteListResponse{Invites: invites})
}

// acceptInvite handles POST /api/v1/invites/:roomId/accept.
func (h *Handlers) acceptInvite(c *fiber.Ctx) error {
	room, err := h.chat.AcceptInvite(c.UserContext(), currentUser(c), c.Params("roomId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(room)
}

// declineInvite handles DELETE /api/v1/invites/:roomId.
func (h *Handlers) declineInvite(c *fiber.Ctx) error {
	if err := h.chat.DeclineInvite(c.UserContext(), currentUser(c), c.Params("roomId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// getInviteLink handles GET /api/v1/rooms/:id/invite-link.
func (h *Handlers) getInviteLink(c *fiber.Ctx) error {
	link, err := h.chat.GetInviteLink(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(link)
}

// regenerateInviteLink handles POST /api/v1/rooms/:id/invite-link.
func (h *Handlers) regenerateInviteLink(c *fiber.Ctx) error {
	link, err := h.chat.RegenerateInviteLink(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(link)
}

// joinByLink handles POST /api/v1/join/:token.
func (h *Handlers) joinByLink(c *fiber.Ctx) error {
	room, err := h.chat.JoinByLink(c.UserContext(), currentUser(c), c.Params("token"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(room)
}

func badRequest(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request body",
	})
}

// writeError maps service errors to status codes.
func writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_error"
	message := "Internal Server Error"

	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		status, code, message = fiber.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, chat.ErrForbidden):
		status, code, message = fiber.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, chat.ErrNotFound):
		status, code, message = fiber.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, chat.ErrConflict):
		status, code, message = fiber.StatusConflict, "conflict", err.Error()
	default:
		log.Printf("[api] %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(ErrorResponse{Error: code, Message: message})
}
