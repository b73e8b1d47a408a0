package subscribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/modules/relay"
)

// testGateway speaks the /ws frame protocol over an in-memory relay.
type testGateway struct {
	t          *testing.T
	mem        *relay.Memory
	refuse     string
	subscribes atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func (g *testGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/ws" || r.URL.Query().Get("token") != "secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conns = append(g.conns, conn)
	g.mu.Unlock()

	ctx := r.Context()
	write := func(frame events.ServerFrame) {
		data, _ := json.Marshal(frame)
		_ = conn.Write(ctx, websocket.MessageText, data)
	}

	var subs []relay.Subscription
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame events.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type != events.FrameSubscribe {
			continue
		}
		if frame.Topic == g.refuse {
			write(events.ServerFrame{Type: events.FrameError, Topic: frame.Topic, Error: "topic not allowed"})
			continue
		}
		topic := frame.Topic
		sub, err := g.mem.Subscribe(ctx, topic, func(env events.Envelope) {
			write(events.ServerFrame{Type: events.FrameEvent, Topic: topic, Envelope: &env})
		})
		require.NoError(g.t, err)
		subs = append(subs, sub)
		g.subscribes.Add(1)
		write(events.ServerFrame{Type: events.FrameSubscribed, Topic: topic})
	}
}

func (g *testGateway) dropConnections() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, conn := range g.conns {
		conn.Close(websocket.StatusGoingAway, "restart")
	}
	g.conns = nil
}

func setupGateway(t *testing.T, onReconnect func()) (*Gateway, *testGateway) {
	t.Helper()
	mem := relay.NewMemory(0, nil)
	t.Cleanup(func() { mem.Close() })
	tg := &testGateway{t: t, mem: mem, refuse: "user__bob__ban"}
	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)

	gw, err := DialGateway(context.Background(), GatewayConfig{
		BaseURL:            srv.URL,
		Token:              "secret",
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
		OnReconnect:        onReconnect,
	})
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw, tg
}

func TestGatewayURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:3000", "ws://localhost:3000/ws?token=t", false},
		{"https://chat.example.com/", "wss://chat.example.com/ws?token=t", false},
		{"ws://localhost:3000/base", "ws://localhost:3000/base/ws?token=t", false},
		{"ftp://localhost", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := gatewayURL(tt.base, "t")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateway_DeliversEvents(t *testing.T) {
	gw, tg := setupGateway(t, nil)
	m := NewManager(gw, nil)
	defer m.Close()

	h, err := m.Subscribe(context.Background(), msgTopic)
	require.NoError(t, err)
	got := make(chan events.MessageDeleted, 1)
	BindTyped(h, events.FamilyDeleteMessage, func(e events.MessageDeleted) { got <- e })

	require.NoError(t, tg.mem.Publish(context.Background(), msgTopic, string(events.FamilyDeleteMessage),
		events.MessageDeleted{RoomID: "r1", MessageID: "m1"}))
	assert.Equal(t, "m1", waitFor(t, got).MessageID)
}

func TestGateway_RefusedTopic(t *testing.T) {
	gw, _ := setupGateway(t, nil)

	_, err := gw.Subscribe(context.Background(), "user__bob__ban", func(events.Envelope) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic not allowed")
}

func TestGateway_Reconnects(t *testing.T) {
	reconnected := make(chan struct{}, 1)
	gw, tg := setupGateway(t, func() { reconnected <- struct{}{} })

	got := make(chan events.Envelope, 4)
	_, err := gw.Subscribe(context.Background(), msgTopic, func(env events.Envelope) { got <- env })
	require.NoError(t, err)
	require.Equal(t, int32(1), tg.subscribes.Load())

	tg.dropConnections()
	waitFor(t, reconnected)
	require.Eventually(t, func() bool { return tg.mem.SubscriberCount(msgTopic) == 1 && tg.subscribes.Load() == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, tg.mem.Publish(context.Background(), msgTopic, string(events.FamilyNewMessage), map[string]string{}))
	assert.Equal(t, msgTopic, waitFor(t, got).Topic)
}
