package relay

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chatroom/events"
)

func runTestNATS(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = server.RANDOM_PORT
	ns := natstest.RunServer(&opts)
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATS_PublishSubscribe(t *testing.T) {
	ns := runTestNATS(t)

	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			r, err := ConnectNATS(ns.ClientURL(), codec, nil)
			require.NoError(t, err)
			defer r.Close()
			ctx := context.Background()

			topic, err := events.TopicFor("r1", events.FamilyDeleteMessage)
			require.NoError(t, err)

			rec := newRecorder()
			sub, err := r.Subscribe(ctx, topic, rec.deliver)
			require.NoError(t, err)
			assert.Equal(t, topic, sub.Topic())

			for _, id := range []string{"m1", "m2", "m3"} {
				require.NoError(t, r.Publish(ctx, topic, string(events.FamilyDeleteMessage),
					events.MessageDeleted{RoomID: "r1", MessageID: id}))
			}

			for _, want := range []string{"m1", "m2", "m3"} {
				env := rec.next(t)
				p, err := events.Decode[events.MessageDeleted](env.Payload)
				require.NoError(t, err)
				assert.Equal(t, want, p.MessageID)
			}

			require.NoError(t, sub.Unsubscribe())
			require.NoError(t, r.Publish(ctx, topic, "delete-message", events.MessageDeleted{RoomID: "r1", MessageID: "m4"}))
			rec.none(t)
		})
	}
}

func TestModule_EmbeddedNATS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendNATSEmbedded
	m := NewModule(cfg, nil)

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	health := m.Health(ctx)
	assert.True(t, health.Healthy, health.Message)

	rec := newRecorder()
	_, err := m.Relay().Subscribe(ctx, "room__r1__delete-room", rec.deliver)
	require.NoError(t, err)

	m.Publisher().RoomDeleted(ctx, "r1")
	env := rec.next(t)
	assert.Equal(t, "delete-room", env.Event)
	assert.Equal(t, uint64(1), m.Publisher().Stats().Published)
}
