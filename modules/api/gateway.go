package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/internal/logging"
	"github.com/example/realtime-chatroom/modules/relay"
)

// clientQueueSize bounds the frames buffered per socket. Frames beyond it are
// dropped, in line with the relay's at-most-once delivery.
const clientQueueSize = 256

// ErrTopicForbidden is returned when a client asks for a topic it may not read.
var ErrTopicForbidden = errors.New("topic not allowed")

// Conn is the socket surface used by the gateway.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Subscriber opens relay subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, deliver relay.DeliverFunc) (relay.Subscription, error)
}

// MembershipChecker answers room membership questions.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// Gateway bridges relay topics to WebSocket clients. It holds one relay
// subscription per topic, shared by every socket subscribed to it.
type Gateway struct {
	relay   Subscriber
	members MembershipChecker
	logger  types.Logger

	mu      sync.Mutex
	topics  map[string]*gatewayTopic
	clients map[*gatewayClient]struct{}
	dropped atomic.Uint64
}

type gatewayTopic struct {
	sub     relay.Subscription
	clients map[*gatewayClient]struct{}
}

type gatewayClient struct {
	userID string
	conn   Conn
	send   chan []byte
	done   chan struct{}
	topics map[string]struct{}
}

// NewGateway creates a gateway over the relay.
func NewGateway(sub Subscriber, members MembershipChecker, logger types.Logger) *Gateway {
	logger = logging.OrDefault(logger)
	return &Gateway{
		relay:   sub,
		members: members,
		logger:  logger,
		topics:  make(map[string]*gatewayTopic),
		clients: make(map[*gatewayClient]struct{}),
	}
}

// Serve runs the read loop for one socket until it closes.
func (g *Gateway) Serve(ctx context.Context, conn Conn, userID string) {
	client := &gatewayClient{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, clientQueueSize),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}

	g.mu.Lock()
	g.clients[client] = struct{}{}
	g.mu.Unlock()

	go client.writeLoop(g.logger)
	defer func() {
		g.removeClient(client)
		close(client.done)
		_ = conn.Close()
	}()

	g.logger.Info("WebSocket connected", "userID", userID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("WebSocket error", "userID", userID, "error", err)
			}
			break
		}

		var frame events.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.reply(client, events.ServerFrame{Type: events.FrameError, Error: "Invalid message format"})
			continue
		}
		g.handleFrame(ctx, client, frame)
	}
	g.logger.Info("WebSocket disconnected", "userID", userID)
}

func (g *Gateway) handleFrame(ctx context.Context, client *gatewayClient, frame events.ClientFrame) {
	switch frame.Type {
	case events.FrameSubscribe:
		if err := g.subscribe(ctx, client, frame.Topic); err != nil {
			g.reply(client, events.ServerFrame{Type: events.FrameError, Topic: frame.Topic, Error: err.Error()})
			return
		}
		g.reply(client, events.ServerFrame{Type: events.FrameSubscribed, Topic: frame.Topic})
	case events.FrameUnsubscribe:
		g.unsubscribe(client, frame.Topic)
		g.reply(client, events.ServerFrame{Type: events.FrameUnsubscribed, Topic: frame.Topic})
	default:
		g.reply(client, events.ServerFrame{Type: events.FrameError, Error: "Unknown message type: " + frame.Type})
	}
}

// authorize lets users read their own user topics and the topics of rooms
// they belong to.
func (g *Gateway) authorize(ctx context.Context, userID, topic string) error {
	scope, scopeID, _, err := events.ParseTopic(topic)
	if err != nil {
		return err
	}
	switch scope {
	case events.ScopeUser:
		if scopeID != userID {
			return ErrTopicForbidden
		}
	case events.ScopeRoom:
		ok, err := g.members.IsMember(ctx, scopeID, userID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if !ok {
			return ErrTopicForbidden
		}
	}
	return nil
}

func (g *Gateway) subscribe(ctx context.Context, client *gatewayClient, topic string) error {
	if err := g.authorize(ctx, client.userID, topic); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := client.topics[topic]; ok {
		return nil
	}
	t, ok := g.topics[topic]
	if !ok {
		sub, err := g.relay.Subscribe(ctx, topic, func(env events.Envelope) { g.fanout(topic, env) })
		if err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		t = &gatewayTopic{sub: sub, clients: make(map[*gatewayClient]struct{})}
		g.topics[topic] = t
	}
	t.clients[client] = struct{}{}
	client.topics[topic] = struct{}{}
	return nil
}

func (g *Gateway) unsubscribe(client *gatewayClient, topic string) {
	g.mu.Lock()
	sub := g.detachLocked(client, topic)
	g.mu.Unlock()
	closeSub(g.logger, sub)
}

// detachLocked removes client from topic and returns the relay subscription
// when it was the last reader. Callers hold g.mu.
func (g *Gateway) detachLocked(client *gatewayClient, topic string) relay.Subscription {
	delete(client.topics, topic)
	t, ok := g.topics[topic]
	if !ok {
		return nil
	}
	delete(t.clients, client)
	if len(t.clients) > 0 {
		return nil
	}
	delete(g.topics, topic)
	return t.sub
}

func (g *Gateway) removeClient(client *gatewayClient) {
	g.mu.Lock()
	var subs []relay.Subscription
	for topic := range client.topics {
		if sub := g.detachLocked(client, topic); sub != nil {
			subs = append(subs, sub)
		}
	}
	delete(g.clients, client)
	g.mu.Unlock()

	for _, sub := range subs {
		closeSub(g.logger, sub)
	}
}

// fanout forwards one relay envelope to every socket on the topic. Users who
// lose access to a room through the event are detached from its topics.
func (g *Gateway) fanout(topic string, env events.Envelope) {
	data, err := json.Marshal(events.ServerFrame{Type: events.FrameEvent, Topic: topic, Envelope: &env})
	if err != nil {
		g.logger.Error("Failed to encode event frame", "topic", topic, "error", err)
		return
	}

	g.mu.Lock()
	if t, ok := g.topics[topic]; ok {
		for client := range t.clients {
			if !client.enqueue(data) {
				g.dropped.Add(1)
			}
		}
	}
	g.mu.Unlock()

	if roomID, userID, ok := revokedAccess(env); ok {
		g.evict(roomID, userID)
	}
}

// revokedAccess reports the room and user (empty for everyone) whose access
// ends with env.
func revokedAccess(env events.Envelope) (string, string, bool) {
	switch events.Family(env.Event) {
	case events.FamilyRemoveMember:
		p, err := events.Decode[events.MemberRemoved](env.Payload)
		return p.RoomID, p.UserID, err == nil
	case events.FamilyMemberLeave:
		p, err := events.Decode[events.MemberLeft](env.Payload)
		return p.RoomID, p.UserID, err == nil
	case events.FamilyDeleteRoom:
		p, err := events.Decode[events.RoomDeleted](env.Payload)
		return p.RoomID, "", err == nil
	}
	return "", "", false
}

// evict detaches userID (every user when empty) from the room's topics.
func (g *Gateway) evict(roomID, userID string) {
	prefix := string(events.ScopeRoom) + "__" + roomID + "__"

	g.mu.Lock()
	var subs []relay.Subscription
	for topic, t := range g.topics {
		if !strings.HasPrefix(topic, prefix) {
			continue
		}
		for client := range t.clients {
			if userID != "" && client.userID != userID {
				continue
			}
			if sub := g.detachLocked(client, topic); sub != nil {
				subs = append(subs, sub)
			}
		}
	}
	g.mu.Unlock()

	for _, sub := range subs {
		closeSub(g.logger, sub)
	}
}

func (g *Gateway) reply(client *gatewayClient, frame events.ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	client.enqueue(data)
}

// ClientCount returns the number of connected sockets.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// TopicCount returns the number of topics with live relay subscriptions.
func (g *Gateway) TopicCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.topics)
}

// Dropped returns the number of frames dropped on full client queues.
func (g *Gateway) Dropped() uint64 {
	return g.dropped.Load()
}

// Close disconnects every client.
func (g *Gateway) Close() {
	g.mu.Lock()
	clients := make([]*gatewayClient, 0, len(g.clients))
	for client := range g.clients {
		clients = append(clients, client)
	}
	g.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}

func (c *gatewayClient) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *gatewayClient) writeLoop(logger types.Logger) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("Failed to write to client", "userID", c.userID, "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

func closeSub(logger types.Logger, sub relay.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn("Failed to close relay subscription", "topic", sub.Topic(), "error", err)
	}
}
