package client

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/realtime-chatroom/client/cache"
	"github.com/example/realtime-chatroom/client/subscribe"
	"github.com/example/realtime-chatroom/domain/chat"
)

// RoomView is a mounted room: while open, the room's topics feed the cache.
type RoomView struct {
	c      *Client
	roomID string
	scope  *subscribe.Scope

	changes      chan struct{}
	removeListen func()
	lost         chan struct{}
	lostOnce     sync.Once
	closeOnce    sync.Once
	closeErr     error
}

func newRoomView(c *Client, roomID string, scope *subscribe.Scope) *RoomView {
	v := &RoomView{
		c:       c,
		roomID:  roomID,
		scope:   scope,
		changes: make(chan struct{}, 1),
		lost:    make(chan struct{}),
	}
	v.removeListen = c.store.OnChange(func(ch cache.Change) {
		if ch.Key.ID != roomID {
			return
		}
		select {
		case v.changes <- struct{}{}:
		default:
		}
	})
	return v
}

// RoomID returns the room shown.
func (v *RoomView) RoomID() string {
	return v.roomID
}

// Refresh refetches the room, its history and its members.
func (v *RoomView) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := v.c.Room(ctx, v.roomID)
		return err
	})
	g.Go(func() error {
		_, err := v.c.Messages(ctx, v.roomID)
		return err
	})
	g.Go(func() error {
		_, err := v.c.Members(ctx, v.roomID)
		return err
	})
	return g.Wait()
}

// Room returns the cached room.
func (v *RoomView) Room() (chat.Room, bool) {
	return cache.Value[chat.Room](v.c.store, cache.Room(v.roomID))
}

// Messages returns the cached feed, oldest first.
func (v *RoomView) Messages() []chat.Message {
	msgs, _ := cache.Value[[]chat.Message](v.c.store, cache.Messages(v.roomID))
	return msgs
}

// Members returns the cached member set.
func (v *RoomView) Members() []chat.Member {
	members, _ := cache.Value[[]chat.Member](v.c.store, cache.Members(v.roomID))
	return members
}

// Changes signals, coalesced, that a key of the room changed.
func (v *RoomView) Changes() <-chan struct{} {
	return v.changes
}

// Lost is closed when the user loses access to the room. The view is
// closed by then.
func (v *RoomView) Lost() <-chan struct{} {
	return v.lost
}

// Close unbinds the room's topics. It is safe to call more than once.
func (v *RoomView) Close() error {
	v.closeOnce.Do(func() {
		v.removeListen()
		v.closeErr = v.scope.Close()
		v.c.forget(v)
	})
	return v.closeErr
}

func (v *RoomView) markLost() {
	v.Close()
	v.lostOnce.Do(func() { close(v.lost) })
}
