// Package subscribe binds event handlers to relay topics for the lifetime of
// a view. Handlers of one topic run one at a time in arrival order; a handler
// that panics is logged and the topic keeps delivering.
package subscribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/modules/relay"
)

// DefaultQueueSize is the number of events buffered per topic.
const DefaultQueueSize = 256

// ErrClosed is returned by a closed manager or scope.
var ErrClosed = errors.New("subscribe: closed")

// Transport opens topic subscriptions. Every relay.Relay is a Transport, as
// is the gateway client in this package.
type Transport interface {
	Subscribe(ctx context.Context, topic string, deliver relay.DeliverFunc) (relay.Subscription, error)
}

// Handler receives one event.
type Handler func(env events.Envelope)

// Binding identifies a bound handler.
type Binding uint64

// Manager shares one transport subscription per topic between handles.
type Manager struct {
	transport Transport
	queueSize int
	logger    *slog.Logger

	mu     sync.Mutex
	topics map[string]*topicState
	nextID uint64
	closed bool
}

type topicState struct {
	topic    string
	sub      relay.Subscription
	refs     int
	handlers map[Binding]boundHandler
	queue    chan events.Envelope
	done     chan struct{}
}

type boundHandler struct {
	event string
	fn    Handler
}

// NewManager creates a manager over transport.
func NewManager(transport Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: transport,
		queueSize: DefaultQueueSize,
		logger:    logger,
		topics:    make(map[string]*topicState),
	}
}

// Subscribe returns a handle on topic, opening the transport subscription if
// this is the first handle for it.
func (m *Manager) Subscribe(ctx context.Context, topic string) (*Handle, error) {
	if _, _, _, err := events.ParseTopic(topic); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	ts, ok := m.topics[topic]
	if !ok {
		ts = &topicState{
			topic:    topic,
			handlers: make(map[Binding]boundHandler),
			queue:    make(chan events.Envelope, m.queueSize),
			done:     make(chan struct{}),
		}
		sub, err := m.transport.Subscribe(ctx, topic, func(env events.Envelope) { m.enqueue(ts, env) })
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		ts.sub = sub
		m.topics[topic] = ts
		go m.deliverLoop(ts)
	}
	ts.refs++
	return &Handle{m: m, ts: ts, bindings: make(map[Binding]struct{})}, nil
}

// Topics returns the topics with at least one open handle.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.topics))
	for topic := range m.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Close releases every topic. Open handles become inert.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	states := make([]*topicState, 0, len(m.topics))
	for _, ts := range m.topics {
		states = append(states, ts)
	}
	m.topics = make(map[string]*topicState)
	m.mu.Unlock()

	var errs []error
	for _, ts := range states {
		errs = append(errs, m.release(ts))
	}
	return errors.Join(errs...)
}

func (m *Manager) enqueue(ts *topicState, env events.Envelope) {
	select {
	case <-ts.done:
	case ts.queue <- env:
	default:
		m.logger.Warn("Subscription queue full, dropping event", "topic", ts.topic, "event", env.Event)
	}
}

func (m *Manager) deliverLoop(ts *topicState) {
	for {
		select {
		case <-ts.done:
			return
		case env := <-ts.queue:
			for _, h := range m.handlersFor(ts, env.Event) {
				select {
				case <-ts.done:
					return
				default:
				}
				m.invoke(ts.topic, env, h)
			}
		}
	}
}

func (m *Manager) handlersFor(ts *topicState, event string) []Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]Binding, 0, len(ts.handlers))
	for id, h := range ts.handlers {
		if h.event == event {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Handler, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, ts.handlers[id].fn)
	}
	return fns
}

// invoke runs one handler, containing any panic so the topic keeps
// delivering.
func (m *Manager) invoke(topic string, env events.Envelope, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event handler panicked", "topic", topic, "event", env.Event, "panic", r)
		}
	}()
	fn(env)
}

func (m *Manager) bind(ts *topicState, event string, fn Handler) Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := Binding(m.nextID)
	ts.handlers[id] = boundHandler{event: event, fn: fn}
	return id
}

func (m *Manager) unbind(ts *topicState, id Binding) {
	m.mu.Lock()
	delete(ts.handlers, id)
	m.mu.Unlock()
}

// unref drops one handle's reference and releases the topic on the last one.
func (m *Manager) unref(ts *topicState) error {
	m.mu.Lock()
	ts.refs--
	if ts.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	if m.topics[ts.topic] == ts {
		delete(m.topics, ts.topic)
	}
	m.mu.Unlock()
	return m.release(ts)
}

func (m *Manager) release(ts *topicState) error {
	m.mu.Lock()
	select {
	case <-ts.done:
		m.mu.Unlock()
		return nil
	default:
		close(ts.done)
	}
	m.mu.Unlock()

	if err := ts.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", ts.topic, err)
	}
	return nil
}
