package cache

// Kind names an entity collection held in the store.
type Kind string

const (
	KindRooms       Kind = "rooms"
	KindRoom        Kind = "room"
	KindMessages    Kind = "messages"
	KindMembers     Kind = "members"
	KindBanned      Kind = "banned"
	KindRoomInvites Kind = "room-invites"
	KindInvites     Kind = "invites"
	KindInviteLink  Kind = "invite-link"
)

// Key addresses one cache entry: an entity kind plus the id of the entity or
// of its parent.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Rooms is the joined-rooms list of a user.
func Rooms(userID string) Key { return Key{Kind: KindRooms, ID: userID} }

// Room is the detail of one room.
func Room(roomID string) Key { return Key{Kind: KindRoom, ID: roomID} }

// Messages is the ordered message feed of a room.
func Messages(roomID string) Key { return Key{Kind: KindMessages, ID: roomID} }

// Members is the member set of a room.
func Members(roomID string) Key { return Key{Kind: KindMembers, ID: roomID} }

// Banned is the ban list of a room.
func Banned(roomID string) Key { return Key{Kind: KindBanned, ID: roomID} }

// RoomInvites is the pending invites sent from a room.
func RoomInvites(roomID string) Key { return Key{Kind: KindRoomInvites, ID: roomID} }

// Invites is the pending invites received by a user.
func Invites(userID string) Key { return Key{Kind: KindInvites, ID: userID} }

// InviteLink is the active invite link of a room.
func InviteLink(roomID string) Key { return Key{Kind: KindInviteLink, ID: roomID} }

// RoomKeys returns every key that depends on roomID.
func RoomKeys(roomID string) []Key {
	return []Key{
		Room(roomID),
		Messages(roomID),
		Members(roomID),
		Banned(roomID),
		RoomInvites(roomID),
		InviteLink(roomID),
	}
}
