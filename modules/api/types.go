package api

import (
	domain "github.com/example/realtime-chatroom/domain/chat"
)

// CreateRoomRequest is the API request to create a room.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SendMessageRequest is the API request to send a message. FakeID is the
// client's correlation id, echoed back on the new-message event.
type SendMessageRequest struct {
	Content string `json:"content"`
	FakeID  string `json:"fake_id"`
}

// UserRequest names the target user of a ban or invite.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// MessageListResponse is the API response for message history.
type MessageListResponse struct {
	RoomID   string           `json:"room_id"`
	Messages []domain.Message `json:"messages"`
}

// MemberListResponse is the API response for member and ban lists.
type MemberListResponse struct {
	RoomID  string          `json:"room_id"`
	Members []domain.Member `json:"members"`
}

// InviteListResponse is the API response for invite lists.
type InviteListResponse struct {
	Invites []domain.Invite `json:"invites"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
