package relay

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chatroom/events"
)

// testRedisAddr requires Redis running on localhost:6379; tests skip otherwise.
const testRedisAddr = "localhost:6379"

func setupTestRedis(t *testing.T) *Redis {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	r := NewRedis(client, "test:relay:", MsgpackCodec{}, nil)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedis_PublishSubscribe(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	topic, err := events.TopicFor("u1", events.FamilyBan)
	require.NoError(t, err)

	rec := newRecorder()
	sub, err := r.Subscribe(ctx, topic, rec.deliver)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, r.Publish(ctx, topic, "ban", events.Banned{RoomID: "r1", UserID: "u1"}))

	env := rec.next(t)
	assert.Equal(t, topic, env.Topic)
	p, err := events.Decode[events.Banned](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "r1", p.RoomID)
}
