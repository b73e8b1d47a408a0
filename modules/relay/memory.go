package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/internal/logging"
)

// DefaultQueueSize is the per-subscriber buffer of the in-memory relay.
const DefaultQueueSize = 256

// Memory is an in-process relay. Each subscriber owns a bounded queue drained
// by its own goroutine; when the queue is full new events are dropped.
type Memory struct {
	mu        sync.RWMutex
	topics    map[string]map[*memorySub]struct{}
	queueSize int
	closed    bool
	dropped   atomic.Uint64
	logger    types.Logger
}

// NewMemory creates an in-memory relay. A queueSize <= 0 uses DefaultQueueSize.
func NewMemory(queueSize int, logger types.Logger) *Memory {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	logger = logging.OrDefault(logger)
	return &Memory{
		topics:    make(map[string]map[*memorySub]struct{}),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Publish fans the event out to every current subscriber of topic.
func (m *Memory) Publish(_ context.Context, topic, event string, payload any) error {
	env, err := events.NewEnvelope(topic, event, payload)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for sub := range m.topics[topic] {
		if !sub.offer(env) {
			m.dropped.Add(1)
			m.logger.Warn("Relay queue full, dropping event", "topic", topic, "event", event)
		}
	}
	return nil
}

// Subscribe registers deliver for topic.
func (m *Memory) Subscribe(_ context.Context, topic string, deliver DeliverFunc) (Subscription, error) {
	sub := &memorySub{
		relay:   m,
		topic:   topic,
		queue:   make(chan events.Envelope, m.queueSize),
		done:    make(chan struct{}),
		deliver: deliver,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := m.topics[topic]
	if !ok {
		subs = make(map[*memorySub]struct{})
		m.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	m.mu.Unlock()

	go sub.run()
	return sub, nil
}

// Dropped returns the number of events dropped on full queues.
func (m *Memory) Dropped() uint64 {
	return m.dropped.Load()
}

// SubscriberCount returns the number of subscribers on topic.
func (m *Memory) SubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}

// Close stops every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []*memorySub
	for _, set := range m.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	m.topics = make(map[string]map[*memorySub]struct{})
	m.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(m.topics, sub.topic)
		}
	}
}

type memorySub struct {
	relay    *Memory
	topic    string
	queue    chan events.Envelope
	done     chan struct{}
	stopOnce sync.Once
	deliver  DeliverFunc
}

func (s *memorySub) Topic() string { return s.topic }

func (s *memorySub) Unsubscribe() error {
	s.relay.remove(s)
	s.stop()
	return nil
}

func (s *memorySub) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// offer enqueues without blocking. Called with the relay read lock held.
func (s *memorySub) offer(env events.Envelope) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.queue <- env:
		return true
	default:
		return false
	}
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.queue:
			s.safeDeliver(env)
		}
	}
}

func (s *memorySub) safeDeliver(env events.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.relay.logger.Error("Relay subscriber panic", "topic", s.topic, "panic", r)
		}
	}()
	s.deliver(env)
}
