package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/internal/logging"
)

// NATS relays events over core NATS subjects. Topics are used as subjects
// unchanged; core NATS gives at-most-once, per-publisher ordered delivery.
type NATS struct {
	nc     *nats.Conn
	codec  Codec
	logger types.Logger
}

// ConnectNATS connects to the NATS server at url.
func ConnectNATS(url string, codec Codec, logger types.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("realtime-chatroom-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	n := NewNATS(nc, codec, logger)
	n.logger.Info("Connected to NATS", "url", url)
	return n, nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, codec Codec, logger types.Logger) *NATS {
	if codec == nil {
		codec = JSONCodec{}
	}
	logger = logging.OrDefault(logger)
	return &NATS{nc: nc, codec: codec, logger: logger}
}

// Publish encodes and publishes the event on the topic subject.
func (n *NATS) Publish(_ context.Context, topic, event string, payload any) error {
	if n.nc.IsClosed() {
		return ErrClosed
	}
	env, err := events.NewEnvelope(topic, event, payload)
	if err != nil {
		return err
	}
	data, err := n.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := n.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

// Subscribe registers deliver on the topic subject. NATS invokes the
// callback serially per subscription.
func (n *NATS) Subscribe(_ context.Context, topic string, deliver DeliverFunc) (Subscription, error) {
	if n.nc.IsClosed() {
		return nil, ErrClosed
	}
	sub, err := n.nc.Subscribe(topic, func(msg *nats.Msg) {
		var env events.Envelope
		if err := n.codec.Unmarshal(msg.Data, &env); err != nil {
			n.logger.Warn("Dropping undecodable relay message", "topic", topic, "error", err)
			return
		}
		deliver(env)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}
	return &natsSub{sub: sub}, nil
}

// IsConnected reports whether the connection is up.
func (n *NATS) IsConnected() bool {
	return n.nc != nil && n.nc.IsConnected()
}

// Close drains and closes the connection.
func (n *NATS) Close() error {
	if n.nc.IsClosed() {
		return nil
	}
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	n.logger.Info("NATS connection closed")
	return nil
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Topic() string { return s.sub.Subject }

func (s *natsSub) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}
