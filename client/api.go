package client

import (
	"context"
	"net/url"

	"github.com/example/realtime-chatroom/client/cache"
	"github.com/example/realtime-chatroom/client/dispatch"
	"github.com/example/realtime-chatroom/domain/chat"
)

type roomList struct {
	Rooms []chat.Room `json:"rooms"`
}

type messageList struct {
	Messages []chat.Message `json:"messages"`
}

type memberList struct {
	Members []chat.Member `json:"members"`
}

type inviteList struct {
	Invites []chat.Invite `json:"invites"`
}

func roomPath(roomID, suffix string) string {
	return "/api/v1/rooms/" + url.PathEscape(roomID) + suffix
}

// Rooms fetches the joined rooms into the cache.
func (c *Client) Rooms(ctx context.Context) ([]chat.Room, error) {
	return cache.Fetch(ctx, c.store, cache.Rooms(c.self.UserID), func(ctx context.Context) ([]chat.Room, error) {
		resp, err := dispatch.Get[roomList](ctx, c.api, "/api/v1/rooms")
		return resp.Rooms, err
	})
}

// Invites fetches the invites addressed to the user.
func (c *Client) Invites(ctx context.Context) ([]chat.Invite, error) {
	return cache.Fetch(ctx, c.store, cache.Invites(c.self.UserID), func(ctx context.Context) ([]chat.Invite, error) {
		resp, err := dispatch.Get[inviteList](ctx, c.api, "/api/v1/invites")
		return resp.Invites, err
	})
}

// Room fetches one room.
func (c *Client) Room(ctx context.Context, roomID string) (chat.Room, error) {
	return cache.Fetch(ctx, c.store, cache.Room(roomID), func(ctx context.Context) (chat.Room, error) {
		return dispatch.Get[chat.Room](ctx, c.api, roomPath(roomID, ""))
	})
}

// Messages fetches the recent history of a room.
func (c *Client) Messages(ctx context.Context, roomID string) ([]chat.Message, error) {
	return cache.Fetch(ctx, c.store, cache.Messages(roomID), func(ctx context.Context) ([]chat.Message, error) {
		resp, err := dispatch.Get[messageList](ctx, c.api, roomPath(roomID, "/messages"))
		return resp.Messages, err
	})
}

// Members fetches the members of a room.
func (c *Client) Members(ctx context.Context, roomID string) ([]chat.Member, error) {
	return cache.Fetch(ctx, c.store, cache.Members(roomID), func(ctx context.Context) ([]chat.Member, error) {
		resp, err := dispatch.Get[memberList](ctx, c.api, roomPath(roomID, "/members"))
		return resp.Members, err
	})
}

// Bans fetches the ban list of a room the user owns.
func (c *Client) Bans(ctx context.Context, roomID string) ([]chat.Member, error) {
	return cache.Fetch(ctx, c.store, cache.Banned(roomID), func(ctx context.Context) ([]chat.Member, error) {
		resp, err := dispatch.Get[memberList](ctx, c.api, roomPath(roomID, "/bans"))
		return resp.Members, err
	})
}

// RoomInvites fetches the pending invites of a room the user owns.
func (c *Client) RoomInvites(ctx context.Context, roomID string) ([]chat.Invite, error) {
	return cache.Fetch(ctx, c.store, cache.RoomInvites(roomID), func(ctx context.Context) ([]chat.Invite, error) {
		resp, err := dispatch.Get[inviteList](ctx, c.api, roomPath(roomID, "/invites"))
		return resp.Invites, err
	})
}

// InviteLink fetches the invite link of a room the user owns.
func (c *Client) InviteLink(ctx context.Context, roomID string) (chat.InviteLink, error) {
	return cache.Fetch(ctx, c.store, cache.InviteLink(roomID), func(ctx context.Context) (chat.InviteLink, error) {
		return dispatch.Get[chat.InviteLink](ctx, c.api, roomPath(roomID, "/invite-link"))
	})
}
