package relay

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/internal/logging"
)

// Redis relays events over Redis PUBLISH/SUBSCRIBE channels.
type Redis struct {
	client *redis.Client
	prefix string
	codec  Codec
	logger types.Logger
}

// NewRedis creates a Redis relay. Channels are named prefix+topic.
func NewRedis(client *redis.Client, prefix string, codec Codec, logger types.Logger) *Redis {
	if codec == nil {
		codec = JSONCodec{}
	}
	logger = logging.OrDefault(logger)
	return &Redis{client: client, prefix: prefix, codec: codec, logger: logger}
}

// ConnectRedis connects to Redis at addr and verifies the connection.
func ConnectRedis(ctx context.Context, addr, prefix string, codec Codec, logger types.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	r := NewRedis(client, prefix, codec, logger)
	r.logger.Info("Connected to Redis", "addr", addr)
	return r, nil
}

// Publish encodes and publishes the event on the topic channel.
func (r *Redis) Publish(ctx context.Context, topic, event string, payload any) error {
	env, err := events.NewEnvelope(topic, event, payload)
	if err != nil {
		return err
	}
	data, err := r.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription for topic and delivers messages from a
// single goroutine.
func (r *Redis) Subscribe(ctx context.Context, topic string, deliver DeliverFunc) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.prefix+topic)
	// Wait for the subscribe confirmation so no publish after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range ps.Channel() {
			var env events.Envelope
			if err := r.codec.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("Dropping undecodable relay message", "topic", topic, "error", err)
				continue
			}
			deliver(env)
		}
	}()
	return &redisSub{topic: topic, ps: ps}, nil
}

// Ping verifies the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	r.logger.Info("Redis connection closed")
	return nil
}

type redisSub struct {
	topic string
	ps    *redis.PubSub
}

func (s *redisSub) Topic() string { return s.topic }

func (s *redisSub) Unsubscribe() error {
	if err := s.ps.Close(); err != nil {
		return fmt.Errorf("failed to close subscription: %w", err)
	}
	return nil
}
