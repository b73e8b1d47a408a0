package subscribe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/modules/relay"
)

const msgTopic = "room__r1__new-message"

func setupManager(t *testing.T) (*Manager, *relay.Memory) {
	t.Helper()
	mem := relay.NewMemory(0, nil)
	m := NewManager(mem, nil)
	t.Cleanup(func() {
		m.Close()
		mem.Close()
	})
	return m, mem
}

func publish(t *testing.T, mem *relay.Memory, topic string, family events.Family, payload any) {
	t.Helper()
	require.NoError(t, mem.Publish(context.Background(), topic, string(family), payload))
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func TestManager_SharedTopic(t *testing.T) {
	m, mem := setupManager(t)
	ctx := context.Background()

	h1, err := m.Subscribe(ctx, msgTopic)
	require.NoError(t, err)
	h2, err := m.Subscribe(ctx, msgTopic)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.SubscriberCount(msgTopic))
	assert.Equal(t, []string{msgTopic}, m.Topics())

	got1 := make(chan events.Envelope, 4)
	got2 := make(chan events.Envelope, 4)
	h1.Bind(string(events.FamilyNewMessage), func(env events.Envelope) { got1 <- env })
	h2.Bind(string(events.FamilyNewMessage), func(env events.Envelope) { got2 <- env })
	h2.Bind(string(events.FamilyDeleteMessage), func(events.Envelope) { t.Error("wrong event routed") })

	publish(t, mem, msgTopic, events.FamilyNewMessage, map[string]string{"room_id": "r1"})
	assert.Equal(t, msgTopic, waitFor(t, got1).Topic)
	assert.Equal(t, msgTopic, waitFor(t, got2).Topic)

	require.NoError(t, h1.Unsubscribe())
	require.NoError(t, h1.Unsubscribe())
	assert.Equal(t, 1, mem.SubscriberCount(msgTopic))

	publish(t, mem, msgTopic, events.FamilyNewMessage, map[string]string{"room_id": "r1"})
	waitFor(t, got2)
	select {
	case <-got1:
		t.Fatal("unsubscribed handle still receives events")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, h2.Unsubscribe())
	assert.Equal(t, 0, mem.SubscriberCount(msgTopic))
	assert.Empty(t, m.Topics())
}

func TestManager_Unbind(t *testing.T) {
	m, mem := setupManager(t)
	h, err := m.Subscribe(context.Background(), msgTopic)
	require.NoError(t, err)

	var calls atomic.Int32
	got := make(chan struct{}, 4)
	id := h.Bind(string(events.FamilyNewMessage), func(events.Envelope) { calls.Add(1) })
	h.Bind(string(events.FamilyNewMessage), func(events.Envelope) { got <- struct{}{} })

	h.Unbind(id)
	publish(t, mem, msgTopic, events.FamilyNewMessage, map[string]string{})
	waitFor(t, got)
	assert.Equal(t, int32(0), calls.Load())
}

func TestManager_PanickingHandler(t *testing.T) {
	m, mem := setupManager(t)
	h, err := m.Subscribe(context.Background(), msgTopic)
	require.NoError(t, err)

	got := make(chan string, 4)
	h.Bind(string(events.FamilyNewMessage), func(env events.Envelope) {
		if string(env.Payload) == `"boom"` {
			panic("handler failed")
		}
		got <- string(env.Payload)
	})

	publish(t, mem, msgTopic, events.FamilyNewMessage, "boom")
	publish(t, mem, msgTopic, events.FamilyNewMessage, "ok")
	assert.Equal(t, `"ok"`, waitFor(t, got))
}

func TestManager_SerialDelivery(t *testing.T) {
	m, mem := setupManager(t)
	h, err := m.Subscribe(context.Background(), msgTopic)
	require.NoError(t, err)

	var running, maxRunning atomic.Int32
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(20)
	h.Bind(string(events.FamilyNewMessage), func(env events.Envelope) {
		defer wg.Done()
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		order = append(order, string(env.Payload))
		mu.Unlock()
		running.Add(-1)
	})

	var want []string
	for i := 0; i < 20; i++ {
		payload := string(rune('a' + i))
		want = append(want, `"`+payload+`"`)
		publish(t, mem, msgTopic, events.FamilyNewMessage, payload)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, want, order)
}

func TestBindTyped_DropsMalformed(t *testing.T) {
	m, mem := setupManager(t)
	h, err := m.Subscribe(context.Background(), "room__r1__delete-message")
	require.NoError(t, err)

	got := make(chan events.MessageDeleted, 4)
	BindTyped(h, events.FamilyDeleteMessage, func(e events.MessageDeleted) { got <- e })

	publish(t, mem, "room__r1__delete-message", events.FamilyDeleteMessage, map[string]string{"room_id": "r1"})
	publish(t, mem, "room__r1__delete-message", events.FamilyDeleteMessage, events.MessageDeleted{RoomID: "r1", MessageID: "m1"})

	assert.Equal(t, "m1", waitFor(t, got).MessageID)
	select {
	case e := <-got:
		t.Fatalf("malformed event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScope_Close(t *testing.T) {
	m, mem := setupManager(t)
	ctx := context.Background()
	scope := m.NewScope()

	for _, family := range events.RoomFamilies() {
		topic, err := events.TopicFor("r1", family)
		require.NoError(t, err)
		_, err = scope.Subscribe(ctx, topic)
		require.NoError(t, err)
	}
	assert.Len(t, m.Topics(), len(events.RoomFamilies()))

	require.NoError(t, scope.Close())
	require.NoError(t, scope.Close())
	assert.Empty(t, m.Topics())
	assert.Equal(t, 0, mem.SubscriberCount(msgTopic))

	_, err := scope.Subscribe(ctx, msgTopic)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScope_CloseOnPanic(t *testing.T) {
	m, _ := setupManager(t)

	func() {
		defer func() { _ = recover() }()
		scope := m.NewScope()
		defer scope.Close()
		_, err := scope.Subscribe(context.Background(), msgTopic)
		require.NoError(t, err)
		panic("view failed")
	}()

	assert.Empty(t, m.Topics())
}

func TestManager_RejectsInvalidTopic(t *testing.T) {
	m, _ := setupManager(t)
	_, err := m.Subscribe(context.Background(), "not-a-topic")
	assert.ErrorIs(t, err, events.ErrInvalidTopic)
}

func TestManager_Close(t *testing.T) {
	m, mem := setupManager(t)
	h, err := m.Subscribe(context.Background(), msgTopic)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.Equal(t, 0, mem.SubscriberCount(msgTopic))
	assert.NoError(t, h.Unsubscribe())

	_, err = m.Subscribe(context.Background(), msgTopic)
	assert.ErrorIs(t, err, ErrClosed)
}
