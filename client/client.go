// Package client is the realtime chat session of one signed-in user. It keeps
// a local cache consistent with the server through optimistic mutations and
// the relay's topic events.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/example/realtime-chatroom/client/cache"
	"github.com/example/realtime-chatroom/client/dispatch"
	"github.com/example/realtime-chatroom/client/reconcile"
	"github.com/example/realtime-chatroom/client/subscribe"
	"github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/events"
)

// refreshTimeout bounds the refetch that follows a reconnect.
const refreshTimeout = 10 * time.Second

// ErrClosed is returned by a closed client.
var ErrClosed = errors.New("client: closed")

// Config configures a client session.
type Config struct {
	// BaseURL is the server's http(s) base URL.
	BaseURL string
	Token   string
	UserID  string
	Handle  string
	// Transport delivers topic events. When nil, Start dials the server's
	// /ws gateway.
	Transport  subscribe.Transport
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is one user's session.
type Client struct {
	config Config
	self   chat.Member
	logger *slog.Logger

	api        *dispatch.Client
	store      *cache.Store
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Dispatcher
	newFakeID  func() string

	mu        sync.Mutex
	subs      *subscribe.Manager
	gateway   *subscribe.Gateway
	userScope *subscribe.Scope
	views     map[*RoomView]struct{}
	started   bool
	closed    bool
}

// New creates a client. No network calls are made until Start.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" || config.UserID == "" {
		return nil, errors.New("client: base url and user id are required")
	}
	if config.Handle == "" {
		config.Handle = config.UserID
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newFakeID, err := dispatch.NewFakeIDGenerator()
	if err != nil {
		return nil, err
	}

	store := cache.New(logger)
	api := dispatch.NewClient(config.BaseURL, config.Token, config.HTTPClient)
	c := &Client{
		config:     config,
		self:       chat.Member{UserID: config.UserID, Handle: config.Handle},
		logger:     logger,
		api:        api,
		store:      store,
		reconciler: reconcile.New(store, config.UserID, logger),
		dispatcher: dispatch.New(store, api, logger),
		newFakeID:  newFakeID,
		views:      make(map[*RoomView]struct{}),
	}
	c.reconciler.OnRoomLost(c.roomLost)
	return c, nil
}

// Store returns the session cache.
func (c *Client) Store() *cache.Store {
	return c.store
}

// UserID returns the session user.
func (c *Client) UserID() string {
	return c.self.UserID
}

// Start connects the event transport, binds the user's own topics and loads
// the room list and invite inbox.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	transport := c.config.Transport
	var gateway *subscribe.Gateway
	if transport == nil {
		gw, err := subscribe.DialGateway(ctx, subscribe.GatewayConfig{
			BaseURL:     c.config.BaseURL,
			Token:       c.config.Token,
			OnReconnect: c.reconnected,
			Logger:      c.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to gateway: %w", err)
		}
		transport, gateway = gw, gw
	}

	subs := subscribe.NewManager(transport, c.logger)
	scope := subs.NewScope()
	if err := bindScope(ctx, scope, c.self.UserID, events.UserFamilies(), userBinders(c.reconciler)); err != nil {
		scope.Close()
		subs.Close()
		if gateway != nil {
			gateway.Close()
		}
		return fmt.Errorf("failed to subscribe to user topics: %w", err)
	}

	c.mu.Lock()
	c.subs, c.gateway, c.userScope = subs, gateway, scope
	c.mu.Unlock()

	if _, err := c.Rooms(ctx); err != nil {
		return err
	}
	_, err := c.Invites(ctx)
	return err
}

// OpenRoom mounts a view of a room: its topics are bound and its history
// and members refetched. The view must be closed when no longer shown.
func (c *Client) OpenRoom(ctx context.Context, roomID string) (*RoomView, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	subs := c.subs
	c.mu.Unlock()
	if subs == nil {
		return nil, errors.New("client: not started")
	}

	v := newRoomView(c, roomID, subs.NewScope())
	if err := bindScope(ctx, v.scope, roomID, events.RoomFamilies(), roomBinders(c.reconciler)); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	c.mu.Lock()
	c.views[v] = struct{}{}
	c.mu.Unlock()

	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// Close tears down every view and the event transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	views := make([]*RoomView, 0, len(c.views))
	for v := range c.views {
		views = append(views, v)
	}
	subs, gateway, scope := c.subs, c.gateway, c.userScope
	c.mu.Unlock()

	var errs []error
	for _, v := range views {
		errs = append(errs, v.Close())
	}
	if scope != nil {
		errs = append(errs, scope.Close())
	}
	if subs != nil {
		errs = append(errs, subs.Close())
	}
	if gateway != nil {
		errs = append(errs, gateway.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) forget(v *RoomView) {
	c.mu.Lock()
	delete(c.views, v)
	c.mu.Unlock()
}

// roomLost closes the views of a room the user can no longer read.
func (c *Client) roomLost(roomID string) {
	c.mu.Lock()
	var lost []*RoomView
	for v := range c.views {
		if v.roomID == roomID {
			lost = append(lost, v)
		}
	}
	c.mu.Unlock()

	for _, v := range lost {
		v.markLost()
	}
}

// reconnected refetches everything: events published while the transport
// was down are gone for good.
func (c *Client) reconnected() {
	c.logger.Info("Event transport reconnected, refetching")
	c.store.InvalidateWhere(func(cache.Key) bool { return true })

	c.mu.Lock()
	views := make([]*RoomView, 0, len(c.views))
	for v := range c.views {
		views = append(views, v)
	}
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := c.Rooms(ctx); err != nil {
			c.logger.Warn("Failed to refetch rooms", "error", err)
		}
		if _, err := c.Invites(ctx); err != nil {
			c.logger.Warn("Failed to refetch invites", "error", err)
		}
		for _, v := range views {
			if err := v.Refresh(ctx); err != nil {
				c.logger.Warn("Failed to refetch room", "roomID", v.roomID, "error", err)
			}
		}
	}()
}
