// Package relay provides topic-based pub/sub for realtime fan-out.
//
// Delivery is at-most-once: a subscriber that is not connected when an event
// is published never sees it, and backends may drop events under load.
// Within one topic a subscriber receives events in publish order.
package relay

import (
	"context"
	"errors"

	"github.com/example/realtime-chatroom/events"
)

// ErrClosed is returned when publishing to or subscribing on a closed relay.
var ErrClosed = errors.New("relay closed")

// DeliverFunc receives envelopes for a subscription. Calls for one
// subscription never overlap.
type DeliverFunc func(env events.Envelope)

// Publisher publishes a named event with a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// Relay is a Publisher that also accepts subscriptions.
type Relay interface {
	Publisher
	Subscribe(ctx context.Context, topic string, deliver DeliverFunc) (Subscription, error)
	Close() error
}

// Subscription is a live topic subscription.
type Subscription interface {
	Topic() string
	Unsubscribe() error
}
