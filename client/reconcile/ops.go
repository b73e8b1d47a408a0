// Package reconcile merges realtime events and optimistic mutations into the
// client cache. The list operations here are pure: they never modify their
// input and return it unchanged when there is nothing to do.
package reconcile

import (
	"github.com/example/realtime-chatroom/domain/chat"
)

// AppendMessage adds msg to a room feed. An entry with the same fake id is
// replaced in place, which turns an optimistic send into its confirmed form
// without duplicating it. An entry with the same durable id is replaced too,
// so redelivery is harmless. Otherwise msg is appended.
func AppendMessage(prev []chat.Message, msg chat.Message) []chat.Message {
	for i, m := range prev {
		if (msg.FakeID != "" && m.FakeID == msg.FakeID) || (msg.ID != "" && m.ID == msg.ID) {
			next := clone(prev)
			next[i] = msg
			return next
		}
	}
	next := make([]chat.Message, len(prev), len(prev)+1)
	copy(next, prev)
	return append(next, msg)
}

// RemoveMessage drops the message addressed by id, durable or fake.
func RemoveMessage(prev []chat.Message, id string) []chat.Message {
	return removeWhere(prev, func(m chat.Message) bool { return m.ID == id || m.FakeID == id })
}

// AddMember inserts or replaces m in a member set.
func AddMember(prev []chat.Member, m chat.Member) []chat.Member {
	return upsert(prev, m, func(x chat.Member) bool { return x.UserID == m.UserID })
}

// RemoveMember drops userID from a member set.
func RemoveMember(prev []chat.Member, userID string) []chat.Member {
	return removeWhere(prev, func(m chat.Member) bool { return m.UserID == userID })
}

// AddRoom inserts or replaces room in a room list.
func AddRoom(prev []chat.Room, room chat.Room) []chat.Room {
	return upsert(prev, room, func(x chat.Room) bool { return x.ID == room.ID })
}

// RemoveRoom drops roomID from a room list.
func RemoveRoom(prev []chat.Room, roomID string) []chat.Room {
	return removeWhere(prev, func(r chat.Room) bool { return r.ID == roomID })
}

// AddInvite inserts or replaces inv, identified by room and invitee.
func AddInvite(prev []chat.Invite, inv chat.Invite) []chat.Invite {
	return upsert(prev, inv, func(x chat.Invite) bool {
		return x.RoomID == inv.RoomID && x.InviteeID == inv.InviteeID
	})
}

// RemoveInvite drops the invite of inviteeID to roomID.
func RemoveInvite(prev []chat.Invite, roomID, inviteeID string) []chat.Invite {
	return removeWhere(prev, func(i chat.Invite) bool {
		return i.RoomID == roomID && i.InviteeID == inviteeID
	})
}

// RemoveInvitesForRoom drops every invite to roomID.
func RemoveInvitesForRoom(prev []chat.Invite, roomID string) []chat.Invite {
	return removeWhere(prev, func(i chat.Invite) bool { return i.RoomID == roomID })
}

// ReplaceInviteLink returns the new link. A link is a single value, so there
// is nothing to merge.
func ReplaceInviteLink(_ chat.InviteLink, link chat.InviteLink) chat.InviteLink {
	return link
}

func removeWhere[T any](prev []T, match func(T) bool) []T {
	idx := -1
	for i, v := range prev {
		if match(v) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return prev
	}
	next := make([]T, 0, len(prev)-1)
	for _, v := range prev {
		if !match(v) {
			next = append(next, v)
		}
	}
	return next
}

func upsert[T any](prev []T, v T, same func(T) bool) []T {
	for i, x := range prev {
		if same(x) {
			next := clone(prev)
			next[i] = v
			return next
		}
	}
	next := make([]T, len(prev), len(prev)+1)
	copy(next, prev)
	return append(next, v)
}

func clone[T any](s []T) []T {
	return append([]T(nil), s...)
}
