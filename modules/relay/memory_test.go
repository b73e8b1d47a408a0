package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chatroom/events"
)

type recorder struct {
	ch chan events.Envelope
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan events.Envelope, 64)}
}

func (r *recorder) deliver(env events.Envelope) {
	r.ch <- env
}

func (r *recorder) next(t *testing.T) events.Envelope {
	t.Helper()
	select {
	case env := <-r.ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return events.Envelope{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case env := <-r.ch:
		t.Fatalf("unexpected envelope on %s", env.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_FanOutPreservesOrder(t *testing.T) {
	m := NewMemory(0, nil)
	defer m.Close()
	ctx := context.Background()

	a, b := newRecorder(), newRecorder()
	_, err := m.Subscribe(ctx, "room__r1__new-message", a.deliver)
	require.NoError(t, err)
	_, err = m.Subscribe(ctx, "room__r1__new-message", b.deliver)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Publish(ctx, "room__r1__new-message", "new-message", map[string]int{"n": i}))
	}

	for _, rec := range []*recorder{a, b} {
		for i := 0; i < 10; i++ {
			env := rec.next(t)
			assert.Equal(t, "new-message", env.Event)
			assert.JSONEq(t, `{"n":`+string(rune('0'+i))+`}`, string(env.Payload))
		}
	}
}

func TestMemory_TopicsAreIsolated(t *testing.T) {
	m := NewMemory(0, nil)
	defer m.Close()
	ctx := context.Background()

	rec := newRecorder()
	_, err := m.Subscribe(ctx, "room__r1__ban", rec.deliver)
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "room__r2__ban", "ban", struct{}{}))
	rec.none(t)
}

func TestMemory_Unsubscribe(t *testing.T) {
	m := NewMemory(0, nil)
	defer m.Close()
	ctx := context.Background()

	rec := newRecorder()
	sub, err := m.Subscribe(ctx, "user__u1__ban", rec.deliver)
	require.NoError(t, err)
	assert.Equal(t, 1, m.SubscriberCount("user__u1__ban"))

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, m.SubscriberCount("user__u1__ban"))

	require.NoError(t, m.Publish(ctx, "user__u1__ban", "ban", struct{}{}))
	rec.none(t)
}

func TestMemory_DropsWhenQueueFull(t *testing.T) {
	m := NewMemory(1, nil)
	defer m.Close()
	ctx := context.Background()

	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	_, err := m.Subscribe(ctx, "t", func(events.Envelope) {
		once.Do(func() { close(started) })
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "t", "e", 1))
	<-started
	require.NoError(t, m.Publish(ctx, "t", "e", 2))
	require.NoError(t, m.Publish(ctx, "t", "e", 3))
	close(release)

	assert.Equal(t, uint64(1), m.Dropped())
}

func TestMemory_SubscriberPanicDoesNotStopDelivery(t *testing.T) {
	m := NewMemory(0, nil)
	defer m.Close()
	ctx := context.Background()

	got := make(chan int, 2)
	_, err := m.Subscribe(ctx, "t", func(env events.Envelope) {
		if string(env.Payload) == "1" {
			panic("boom")
		}
		got <- 2
	})
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "t", "e", 1))
	require.NoError(t, m.Publish(ctx, "t", "e", 2))

	select {
	case v := <-got:
		assert.Equal(t, 2, v)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stopped after panic")
	}
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory(0, nil)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Publish(context.Background(), "t", "e", 1), ErrClosed)
	_, err := m.Subscribe(context.Background(), "t", func(events.Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}
