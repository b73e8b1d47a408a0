package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload is returned when a payload cannot be decoded or lacks a
// required field.
var ErrMalformedPayload = errors.New("malformed payload")

// Envelope is the unit carried by the relay.
type Envelope struct {
	Topic       string          `json:"topic" msgpack:"topic"`
	Event       string          `json:"event" msgpack:"event"`
	Payload     json.RawMessage `json:"payload" msgpack:"payload"`
	PublishedAt time.Time       `json:"published_at" msgpack:"published_at"`
}

// Payload is implemented by every event payload.
type Payload interface {
	Validate() error
}

// NewEnvelope encodes payload as JSON and wraps it for the given topic.
func NewEnvelope(topic, event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return Envelope{
		Topic:       topic,
		Event:       event,
		Payload:     data,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals and validates the payload of raw.
func Decode[T Payload](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// requireFields takes name/value pairs and reports the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: missing %s", ErrMalformedPayload, pairs[i])
		}
	}
	return nil
}
