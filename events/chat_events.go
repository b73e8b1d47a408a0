package events

import (
	"time"

	"github.com/example/realtime-chatroom/domain/chat"
)

// MessageCreated is published on new-message. FakeID inside Message echoes the
// sender's correlation id so the sender can replace its optimistic entry.
type MessageCreated struct {
	RoomID  string       `json:"room_id"`
	Message chat.Message `json:"message"`
}

func (e MessageCreated) Validate() error {
	return requireFields("room_id", e.RoomID, "message.id", e.Message.ID, "message.author_id", e.Message.AuthorID)
}

// MessageDeleted is published on delete-message.
type MessageDeleted struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

func (e MessageDeleted) Validate() error {
	return requireFields("room_id", e.RoomID, "message_id", e.MessageID)
}

// MemberJoined is published on new-member.
type MemberJoined struct {
	RoomID string      `json:"room_id"`
	Member chat.Member `json:"member"`
	At     time.Time   `json:"at"`
}

func (e MemberJoined) Validate() error {
	return requireFields("room_id", e.RoomID, "member.user_id", e.Member.UserID)
}

// MemberRemoved is published on remove-member when the owner bans a member.
type MemberRemoved struct {
	RoomID string    `json:"room_id"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (e MemberRemoved) Validate() error {
	return requireFields("room_id", e.RoomID, "user_id", e.UserID)
}

// MemberLeft is published on member-leave.
type MemberLeft struct {
	RoomID string    `json:"room_id"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (e MemberLeft) Validate() error {
	return requireFields("room_id", e.RoomID, "user_id", e.UserID)
}

// RoomDeleted is published on delete-room.
type RoomDeleted struct {
	RoomID string `json:"room_id"`
}

func (e RoomDeleted) Validate() error {
	return requireFields("room_id", e.RoomID)
}

// InviteCreated is published on new-invite (room topic) and chat-invite
// (invitee's user topic).
type InviteCreated struct {
	Invite chat.Invite `json:"invite"`
}

func (e InviteCreated) Validate() error {
	return requireFields("invite.room_id", e.Invite.RoomID, "invite.invitee_id", e.Invite.InviteeID)
}

// UserID returns the invitee, the user a chat-invite is addressed to.
func (e InviteCreated) UserID() string { return e.Invite.InviteeID }

// InviteDeclined is published on decline-invite.
type InviteDeclined struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

func (e InviteDeclined) Validate() error {
	return requireFields("room_id", e.RoomID, "user_id", e.UserID)
}

// InviteRevoked is published on revoke-invite to the invitee.
type InviteRevoked struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

func (e InviteRevoked) Validate() error {
	return requireFields("room_id", e.RoomID, "user_id", e.UserID)
}

// Banned is published on ban to the banned user.
type Banned struct {
	RoomID string    `json:"room_id"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (e Banned) Validate() error {
	return requireFields("room_id", e.RoomID, "user_id", e.UserID)
}
