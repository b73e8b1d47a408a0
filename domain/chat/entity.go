package chat

import "time"

// Room represents a chat room.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member represents a user as seen from a room's member or ban list.
type Member struct {
	UserID    string `json:"user_id"`
	Handle    string `json:"handle"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Invite is a pending invitation of a user to a room.
type Invite struct {
	RoomID        string    `json:"room_id"`
	RoomName      string    `json:"room_name"`
	InviteeID     string    `json:"invitee_id"`
	InviteeHandle string    `json:"invitee_handle"`
	CreatedAt     time.Time `json:"created_at"`
}

// InviteLink is the single active join token of a room.
type InviteLink struct {
	RoomID string `json:"room_id"`
	Token  string `json:"token"`
}

// Message represents a chat message.
//
// A message created optimistically on the client carries only FakeID and
// Pending=true until the server confirms it with a durable ID.
type Message struct {
	ID           string    `json:"id,omitempty"`
	FakeID       string    `json:"fake_id,omitempty"`
	RoomID       string    `json:"room_id"`
	AuthorID     string    `json:"author_id"`
	AuthorHandle string    `json:"author_handle"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	Pending      bool      `json:"pending,omitempty"`
}

// Key returns the identifier the message is addressed by in a feed: the
// durable ID once known, the fake ID before that.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.FakeID
}
