package client

import (
	"context"

	"github.com/example/realtime-chatroom/client/dispatch"
	"github.com/example/realtime-chatroom/domain/chat"
)

// SendMessage posts a message. It shows up in the room feed immediately as
// pending and is confirmed in place.
func (c *Client) SendMessage(ctx context.Context, roomID, content string) (chat.Message, error) {
	body, err := c.dispatcher.Dispatch(ctx, dispatch.SendMessage(c.self, roomID, content, c.newFakeID()))
	if err != nil {
		return chat.Message{}, err
	}
	return dispatch.Decode[chat.Message](body)
}

// DeleteMessage deletes a message the user wrote, or any message of a room
// the user owns.
func (c *Client) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.DeleteMessage(roomID, messageID))
	return err
}

// CreateRoom creates a room owned by the user.
func (c *Client) CreateRoom(ctx context.Context, name, description string) (chat.Room, error) {
	return c.dispatchRoom(ctx, dispatch.CreateRoom(c.self.UserID, name, description))
}

// DeleteRoom deletes a room the user owns.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.DeleteRoom(c.self.UserID, roomID))
	return err
}

// LeaveRoom leaves a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.LeaveRoom(c.self.UserID, roomID))
	return err
}

// InviteUser invites a user to a room the user owns.
func (c *Client) InviteUser(ctx context.Context, roomID, inviteeID string) (chat.Invite, error) {
	body, err := c.dispatcher.Dispatch(ctx, dispatch.InviteUser(roomID, inviteeID))
	if err != nil {
		return chat.Invite{}, err
	}
	return dispatch.Decode[chat.Invite](body)
}

// RevokeInvite withdraws a pending invite.
func (c *Client) RevokeInvite(ctx context.Context, roomID, inviteeID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.RevokeInvite(roomID, inviteeID))
	return err
}

// AcceptInvite joins the room of a pending invite.
func (c *Client) AcceptInvite(ctx context.Context, roomID string) (chat.Room, error) {
	return c.dispatchRoom(ctx, dispatch.AcceptInvite(c.self.UserID, roomID))
}

// DeclineInvite declines a pending invite.
func (c *Client) DeclineInvite(ctx context.Context, roomID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.DeclineInvite(c.self.UserID, roomID))
	return err
}

// JoinByLink joins the room of an invite link token.
func (c *Client) JoinByLink(ctx context.Context, token string) (chat.Room, error) {
	return c.dispatchRoom(ctx, dispatch.JoinByLink(c.self.UserID, token))
}

// BanMember bans a member from a room the user owns.
func (c *Client) BanMember(ctx context.Context, roomID, userID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.BanMember(roomID, userID))
	return err
}

// UnbanMember lifts a ban.
func (c *Client) UnbanMember(ctx context.Context, roomID, userID string) error {
	_, err := c.dispatcher.Dispatch(ctx, dispatch.UnbanMember(roomID, userID))
	return err
}

// RegenerateInviteLink replaces the invite link of a room the user owns.
func (c *Client) RegenerateInviteLink(ctx context.Context, roomID string) (chat.InviteLink, error) {
	body, err := c.dispatcher.Dispatch(ctx, dispatch.RegenerateInviteLink(roomID))
	if err != nil {
		return chat.InviteLink{}, err
	}
	return dispatch.Decode[chat.InviteLink](body)
}

func (c *Client) dispatchRoom(ctx context.Context, a dispatch.Action) (chat.Room, error) {
	body, err := c.dispatcher.Dispatch(ctx, a)
	if err != nil {
		return chat.Room{}, err
	}
	return dispatch.Decode[chat.Room](body)
}
