package subscribe

import (
	"sync"

	"github.com/example/realtime-chatroom/events"
)

// Handle is one holder's reference to a topic. Unsubscribe must be called
// once the holder is done; a Scope does that automatically.
type Handle struct {
	m  *Manager
	ts *topicState

	mu       sync.Mutex
	bindings map[Binding]struct{}
	done     bool
}

// Topic returns the subscribed topic.
func (h *Handle) Topic() string {
	return h.ts.topic
}

// Bind routes events named event on this topic to fn. Binding after
// Unsubscribe is a no-op.
func (h *Handle) Bind(event string, fn Handler) Binding {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return 0
	}
	id := h.m.bind(h.ts, event, fn)
	h.bindings[id] = struct{}{}
	return id
}

// Unbind removes a handler bound through this handle.
func (h *Handle) Unbind(id Binding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.bindings[id]; !ok {
		return
	}
	delete(h.bindings, id)
	h.m.unbind(h.ts, id)
}

// Unsubscribe unbinds every handler of the handle and releases its topic
// reference. It is safe to call more than once.
func (h *Handle) Unsubscribe() error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	for id := range h.bindings {
		h.m.unbind(h.ts, id)
	}
	h.bindings = nil
	h.mu.Unlock()

	return h.m.unref(h.ts)
}

// BindTyped decodes and validates the payload before calling fn. Malformed
// payloads are logged and dropped.
func BindTyped[T events.Payload](h *Handle, family events.Family, fn func(T)) Binding {
	logger := h.m.logger
	return h.Bind(string(family), func(env events.Envelope) {
		payload, err := events.Decode[T](env.Payload)
		if err != nil {
			logger.Warn("Dropping malformed event", "topic", env.Topic, "event", env.Event, "error", err)
			return
		}
		fn(payload)
	})
}
