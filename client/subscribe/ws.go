package subscribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/modules/relay"
)

// GatewayConfig configures the gateway transport.
type GatewayConfig struct {
	// BaseURL is the server's http(s) or ws(s) base URL.
	BaseURL            string
	Token              string
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	AckTimeout         time.Duration
	// OnReconnect runs after a dropped connection is re-established and every
	// topic resubscribed. Events published while disconnected are lost.
	OnReconnect func()
	Logger      *slog.Logger
}

func (c *GatewayConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway is a Transport over the server's /ws topic gateway. It reconnects
// with exponential backoff and resubscribes every open topic.
type Gateway struct {
	config GatewayConfig
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]map[*gatewaySub]struct{}
	waiters map[string][]chan error
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type gatewaySub struct {
	g       *Gateway
	topic   string
	deliver relay.DeliverFunc
	once    sync.Once
}

var _ Transport = (*Gateway)(nil)

// DialGateway connects to the gateway and starts the read loop.
func DialGateway(ctx context.Context, config GatewayConfig) (*Gateway, error) {
	config.defaults()
	u, err := gatewayURL(config.BaseURL, config.Token)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:  config,
		url:     u,
		logger:  config.Logger,
		subs:    make(map[string]map[*gatewaySub]struct{}),
		waiters: make(map[string][]chan error),
		done:    make(chan struct{}),
	}
	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	g.conn = conn
	g.ctx, g.cancel = context.WithCancel(context.Background())
	go g.run(conn)
	return g, nil
}

func gatewayURL(base, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid gateway url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid gateway url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func (g *Gateway) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// Subscribe registers deliver for topic. The first subscription of a topic
// waits for the gateway to accept it.
func (g *Gateway) Subscribe(ctx context.Context, topic string, deliver relay.DeliverFunc) (relay.Subscription, error) {
	sub := &gatewaySub{g: g, topic: topic, deliver: deliver}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := g.subs[topic]
	if !ok {
		subs = make(map[*gatewaySub]struct{})
		g.subs[topic] = subs
	}
	subs[sub] = struct{}{}
	if ok {
		g.mu.Unlock()
		return sub, nil
	}
	ack := make(chan error, 1)
	g.waiters[topic] = append(g.waiters[topic], ack)
	conn := g.conn
	g.mu.Unlock()

	if conn == nil {
		// sent on reconnect
		return sub, nil
	}
	if err := g.send(ctx, conn, events.ClientFrame{Type: events.FrameSubscribe, Topic: topic}); err != nil {
		g.logger.Warn("Subscribe deferred until reconnect", "topic", topic, "error", err)
		return sub, nil
	}

	timer := time.NewTimer(g.config.AckTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			g.drop(sub)
			return nil, err
		}
		return sub, nil
	case <-timer.C:
		g.drop(sub)
		return nil, fmt.Errorf("subscribe %s: no reply from gateway", topic)
	case <-ctx.Done():
		g.drop(sub)
		return nil, ctx.Err()
	}
}

// Close stops reconnecting and closes the socket.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()

	g.cancel()
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	<-g.done
	return err
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, frame events.ClientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// drop removes sub and, when it was the topic's last, tells the gateway.
func (g *Gateway) drop(sub *gatewaySub) {
	g.mu.Lock()
	subs := g.subs[sub.topic]
	delete(subs, sub)
	last := len(subs) == 0
	if last {
		delete(g.subs, sub.topic)
	}
	conn := g.conn
	g.mu.Unlock()

	if !last || conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.config.AckTimeout)
	defer cancel()
	if err := g.send(ctx, conn, events.ClientFrame{Type: events.FrameUnsubscribe, Topic: sub.topic}); err != nil {
		g.logger.Debug("Unsubscribe not sent", "topic", sub.topic, "error", err)
	}
}

func (g *Gateway) run(conn *websocket.Conn) {
	defer close(g.done)
	recon := newReconnector(g.config.ReconnectBaseDelay, g.config.ReconnectMaxDelay)

	for {
		err := g.readLoop(conn)
		if g.ctx.Err() != nil {
			return
		}
		g.logger.Warn("Gateway connection lost", "error", err)

		g.mu.Lock()
		g.conn = nil
		g.mu.Unlock()

		conn = g.reconnect(recon)
		if conn == nil {
			return
		}
		if g.config.OnReconnect != nil {
			g.config.OnReconnect()
		}
	}
}

// reconnect dials until it succeeds or the gateway is closed, then
// resubscribes every topic.
func (g *Gateway) reconnect(recon *reconnector) *websocket.Conn {
	for {
		delay := recon.nextDelay()
		g.logger.Info("Reconnecting to gateway", "attempt", recon.attempt, "delay", delay)
		select {
		case <-g.ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, err := g.dial(g.ctx)
		if err != nil {
			g.logger.Warn("Gateway reconnect failed", "error", err)
			continue
		}

		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
		g.conn = conn
		topics := make([]string, 0, len(g.subs))
		for topic := range g.subs {
			topics = append(topics, topic)
		}
		g.mu.Unlock()

		for _, topic := range topics {
			if err := g.send(g.ctx, conn, events.ClientFrame{Type: events.FrameSubscribe, Topic: topic}); err != nil {
				g.logger.Warn("Resubscribe failed", "topic", topic, "error", err)
			}
		}
		recon.markConnected()
		return conn
	}
}

func (g *Gateway) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(g.ctx)
		if err != nil {
			return err
		}

		var frame events.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.logger.Warn("Dropping malformed gateway frame", "error", err)
			continue
		}

		switch frame.Type {
		case events.FrameEvent:
			if frame.Envelope == nil {
				continue
			}
			g.dispatch(frame.Topic, *frame.Envelope)
		case events.FrameSubscribed:
			g.resolve(frame.Topic, nil)
		case events.FrameError:
			if frame.Topic == "" {
				g.logger.Warn("Gateway error", "error", frame.Error)
				continue
			}
			g.resolve(frame.Topic, errors.New(frame.Error))
		}
	}
}

func (g *Gateway) dispatch(topic string, env events.Envelope) {
	g.mu.Lock()
	subs := make([]*gatewaySub, 0, len(g.subs[topic]))
	for sub := range g.subs[topic] {
		subs = append(subs, sub)
	}
	g.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(env)
	}
}

func (g *Gateway) resolve(topic string, err error) {
	g.mu.Lock()
	waiters := g.waiters[topic]
	delete(g.waiters, topic)
	g.mu.Unlock()

	if err != nil && len(waiters) == 0 {
		// a resubscribe after reconnect was refused
		g.logger.Warn("Gateway refused topic", "topic", topic, "error", err)
	}
	for _, ch := range waiters {
		ch <- err
	}
}

func (s *gatewaySub) Topic() string {
	return s.topic
}

func (s *gatewaySub) Unsubscribe() error {
	s.once.Do(func() { s.g.drop(s) })
	return nil
}

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	attempt     int
	connectedAt time.Time
}

func newReconnector(base, maxDelay time.Duration) *reconnector {
	return &reconnector{baseDelay: base, maxDelay: maxDelay}
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > time.Minute {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}
