package store

import "time"

// User is a chat participant. Rows are upserted on first authenticated request.
type User struct {
	ID        string    `gorm:"primarykey;size:64" json:"id"`
	Handle    string    `gorm:"size:64;not null;index" json:"handle"`
	AvatarURL string    `gorm:"size:500" json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for User model.
func (User) TableName() string {
	return "users"
}

// Room is a chatroom with exactly one owner.
type Room struct {
	ID          string    `gorm:"primarykey;size:36" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	OwnerID     string    `gorm:"size:64;not null;index" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for Room model.
func (Room) TableName() string {
	return "rooms"
}

// Membership connects a user to a room.
type Membership struct {
	RoomID    string `gorm:"primarykey;size:36"`
	UserID    string `gorm:"primarykey;size:64;index"`
	CreatedAt time.Time
}

// TableName returns the table name for Membership model.
func (Membership) TableName() string {
	return "memberships"
}

// Ban records a user banned from a room. Mutually exclusive with Membership.
type Ban struct {
	RoomID    string `gorm:"primarykey;size:36"`
	UserID    string `gorm:"primarykey;size:64"`
	CreatedAt time.Time
}

// TableName returns the table name for Ban model.
func (Ban) TableName() string {
	return "bans"
}

// Invite is a pending invitation of a user to a room.
type Invite struct {
	RoomID    string `gorm:"primarykey;size:36"`
	UserID    string `gorm:"primarykey;size:64;index"`
	CreatedAt time.Time
}

// TableName returns the table name for Invite model.
func (Invite) TableName() string {
	return "invites"
}

// InviteLink holds the single active join token of a room.
type InviteLink struct {
	RoomID    string `gorm:"primarykey;size:36"`
	Token     string `gorm:"size:64;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for InviteLink model.
func (InviteLink) TableName() string {
	return "invite_links"
}

// Message is a chat message.
type Message struct {
	ID        string    `gorm:"primarykey;size:36"`
	RoomID    string    `gorm:"size:36;not null;index:idx_messages_room_created"`
	AuthorID  string    `gorm:"size:64;not null"`
	Content   string    `gorm:"size:5000;not null"`
	CreatedAt time.Time `gorm:"index:idx_messages_room_created"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}

// MessageView is a message joined with its author's handle.
type MessageView struct {
	Message
	AuthorHandle string
}

// InviteView is an invite joined with the room name and invitee handle.
type InviteView struct {
	RoomID    string
	RoomName  string
	UserID    string
	Handle    string
	CreatedAt time.Time
}

// models lists every table managed by the store, in migration order.
func models() []any {
	return []any{&User{}, &Room{}, &Membership{}, &Ban{}, &Invite{}, &InviteLink{}, &Message{}}
}
