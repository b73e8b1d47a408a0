package dispatch

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/example/realtime-chatroom/client/cache"
	"github.com/example/realtime-chatroom/client/reconcile"
	"github.com/example/realtime-chatroom/domain/chat"
)

const apiPrefix = "/api/v1"

// NewFakeIDGenerator returns a generator of correlation ids for optimistic
// sends. 21 characters of the URL-safe alphabet make collisions within a
// session negligible.
func NewFakeIDGenerator() (func() string, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create fake id generator: %w", err)
	}
	return gen, nil
}

func apiPath(format string, segments ...string) string {
	args := make([]any, len(segments))
	for i, s := range segments {
		args[i] = url.PathEscape(s)
	}
	return apiPrefix + fmt.Sprintf(format, args...)
}

func apply[T any](fn func(prev T) T) cache.Updater {
	return func(prev any, _ bool) any {
		t, _ := prev.(T)
		return fn(t)
	}
}

func commitJSON[T any](fn func(store *cache.Store, v T)) func(*cache.Store, []byte) error {
	return func(store *cache.Store, body []byte) error {
		v, err := Decode[T](body)
		if err != nil {
			return err
		}
		fn(store, v)
		return nil
	}
}

// SendMessage appends a pending message carrying fakeID and confirms it in
// place with the stored message.
func SendMessage(author chat.Member, roomID, content, fakeID string) Action {
	optimistic := chat.Message{
		FakeID:       fakeID,
		RoomID:       roomID,
		AuthorID:     author.UserID,
		AuthorHandle: author.Handle,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
		Pending:      true,
	}
	key := cache.Messages(roomID)
	return Action{
		Name: "send-message",
		Patches: []Patch{{Key: key, Upsert: true, Apply: apply(func(prev []chat.Message) []chat.Message {
			return reconcile.AppendMessage(prev, optimistic)
		})}},
		Request: Request{
			Method: http.MethodPost,
			Path:   apiPath("/rooms/%s/messages", roomID),
			Body:   map[string]string{"content": content, "fake_id": fakeID},
		},
		Commit: commitJSON(func(store *cache.Store, msg chat.Message) {
			msg.FakeID, msg.Pending = fakeID, false
			cache.Update(store, key, func(prev []chat.Message, _ bool) []chat.Message {
				return reconcile.AppendMessage(prev, msg)
			})
		}),
	}
}

// DeleteMessage removes a message from the room feed.
func DeleteMessage(roomID, messageID string) Action {
	return Action{
		Name:   "delete-message",
		Target: "message:" + messageID,
		Patches: []Patch{{Key: cache.Messages(roomID), Apply: apply(func(prev []chat.Message) []chat.Message {
			return reconcile.RemoveMessage(prev, messageID)
		})}},
		Request: Request{Method: http.MethodDelete, Path: apiPath("/rooms/%s/messages/%s", roomID, messageID)},
	}
}

// DeclineInvite drops an invite from the user's inbox.
func DeclineInvite(userID, roomID string) Action {
	return Action{
		Name:   "decline-invite",
		Target: "invite:" + roomID + ":" + userID,
		Patches: []Patch{{Key: cache.Invites(userID), Apply: apply(func(prev []chat.Invite) []chat.Invite {
			return reconcile.RemoveInvitesForRoom(prev, roomID)
		})}},
		Request: Request{Method: http.MethodDelete, Path: apiPath("/invites/%s", roomID)},
	}
}

// RevokeInvite drops a pending invite from the room's list.
func RevokeInvite(roomID, inviteeID string) Action {
	return Action{
		Name:   "revoke-invite",
		Target: "invite:" + roomID + ":" + inviteeID,
		Patches: []Patch{{Key: cache.RoomInvites(roomID), Apply: apply(func(prev []chat.Invite) []chat.Invite {
			return reconcile.RemoveInvite(prev, roomID, inviteeID)
		})}},
		Request: Request{Method: http.MethodDelete, Path: apiPath("/rooms/%s/invites/%s", roomID, inviteeID)},
	}
}

// InviteUser invites a user and records the invite the server returns.
func InviteUser(roomID, inviteeID string) Action {
	key := cache.RoomInvites(roomID)
	return Action{
		Name:    "invite-user",
		Target:  "invite:" + roomID + ":" + inviteeID,
		Patches: []Patch{{Key: key}},
		Request: Request{
			Method: http.MethodPost,
			Path:   apiPath("/rooms/%s/invites", roomID),
			Body:   map[string]string{"user_id": inviteeID},
		},
		Commit: commitJSON(func(store *cache.Store, inv chat.Invite) {
			cache.UpdateExisting(store, key, func(prev []chat.Invite) []chat.Invite {
				return reconcile.AddInvite(prev, inv)
			})
		}),
	}
}

// AcceptInvite moves an invite from the inbox to the joined rooms.
func AcceptInvite(userID, roomID string) Action {
	rooms := cache.Rooms(userID)
	return Action{
		Name:   "accept-invite",
		Target: "invite:" + roomID + ":" + userID,
		Patches: []Patch{
			{Key: cache.Invites(userID), Apply: apply(func(prev []chat.Invite) []chat.Invite {
				return reconcile.RemoveInvitesForRoom(prev, roomID)
			})},
			{Key: rooms},
		},
		Request: Request{Method: http.MethodPost, Path: apiPath("/invites/%s/accept", roomID)},
		Commit:  commitRoom(rooms),
	}
}

// JoinByLink joins the room of an invite link token.
func JoinByLink(userID, token string) Action {
	rooms := cache.Rooms(userID)
	return Action{
		Name:    "join-by-link",
		Patches: []Patch{{Key: rooms}},
		Request: Request{Method: http.MethodPost, Path: apiPath("/join/%s", token)},
		Commit:  commitRoom(rooms),
	}
}

// CreateRoom creates a room owned by the user.
func CreateRoom(userID, name, description string) Action {
	rooms := cache.Rooms(userID)
	return Action{
		Name:    "create-room",
		Patches: []Patch{{Key: rooms}},
		Request: Request{
			Method: http.MethodPost,
			Path:   apiPrefix + "/rooms",
			Body:   map[string]string{"name": name, "description": description},
		},
		Commit: commitRoom(rooms),
	}
}

func commitRoom(rooms cache.Key) func(*cache.Store, []byte) error {
	return commitJSON(func(store *cache.Store, room chat.Room) {
		cache.UpdateExisting(store, rooms, func(prev []chat.Room) []chat.Room {
			return reconcile.AddRoom(prev, room)
		})
		store.Put(cache.Room(room.ID), room)
	})
}

// LeaveRoom removes the room from the joined rooms. On success the room's
// caches are dropped.
func LeaveRoom(userID, roomID string) Action {
	return roomExit("leave-room", userID, roomID,
		Request{Method: http.MethodDelete, Path: apiPath("/rooms/%s/members/me", roomID)})
}

// DeleteRoom deletes a room the user owns.
func DeleteRoom(userID, roomID string) Action {
	return roomExit("delete-room", userID, roomID,
		Request{Method: http.MethodDelete, Path: apiPath("/rooms/%s", roomID)})
}

func roomExit(name, userID, roomID string, req Request) Action {
	return Action{
		Name:   name,
		Target: "room:" + roomID,
		Patches: []Patch{{Key: cache.Rooms(userID), Apply: apply(func(prev []chat.Room) []chat.Room {
			return reconcile.RemoveRoom(prev, roomID)
		})}},
		Request: req,
		Commit: func(store *cache.Store, _ []byte) error {
			store.Invalidate(cache.RoomKeys(roomID)...)
			return nil
		},
	}
}

// BanMember removes a member; the ban list is refetched once the ban lands.
func BanMember(roomID, userID string) Action {
	return Action{
		Name:   "ban-member",
		Target: "member:" + roomID + ":" + userID,
		Patches: []Patch{
			{Key: cache.Members(roomID), Apply: apply(func(prev []chat.Member) []chat.Member {
				return reconcile.RemoveMember(prev, userID)
			})},
			{Key: cache.Banned(roomID)},
		},
		Request: Request{
			Method: http.MethodPost,
			Path:   apiPath("/rooms/%s/bans", roomID),
			Body:   map[string]string{"user_id": userID},
		},
		Commit: func(store *cache.Store, _ []byte) error {
			store.Invalidate(cache.Banned(roomID))
			return nil
		},
	}
}

// UnbanMember removes a user from the ban list.
func UnbanMember(roomID, userID string) Action {
	return Action{
		Name:   "unban-member",
		Target: "member:" + roomID + ":" + userID,
		Patches: []Patch{{Key: cache.Banned(roomID), Apply: apply(func(prev []chat.Member) []chat.Member {
			return reconcile.RemoveMember(prev, userID)
		})}},
		Request: Request{Method: http.MethodDelete, Path: apiPath("/rooms/%s/bans/%s", roomID, userID)},
	}
}

// RegenerateInviteLink replaces the room's invite link with a new token.
func RegenerateInviteLink(roomID string) Action {
	key := cache.InviteLink(roomID)
	return Action{
		Name:    "regenerate-invite-link",
		Target:  "invite-link:" + roomID,
		Patches: []Patch{{Key: key}},
		Request: Request{Method: http.MethodPost, Path: apiPath("/rooms/%s/invite-link", roomID)},
		Commit: commitJSON(func(store *cache.Store, link chat.InviteLink) {
			cache.Update(store, key, func(prev chat.InviteLink, _ bool) chat.InviteLink {
				return reconcile.ReplaceInviteLink(prev, link)
			})
		}),
	}
}
