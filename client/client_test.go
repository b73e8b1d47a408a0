package client

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-chatroom/client/cache"
	"github.com/example/realtime-chatroom/client/dispatch"
	"github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/modules/api"
	"github.com/example/realtime-chatroom/modules/auth"
	chatsvc "github.com/example/realtime-chatroom/modules/chat"
	"github.com/example/realtime-chatroom/modules/relay"
	"github.com/example/realtime-chatroom/modules/store"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

type testEnv struct {
	baseURL string
	jwt     *auth.JWTManager
}

// startServer runs the whole server stack on a loopback port.
func startServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(":memory:", false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mem := relay.NewMemory(0, nil)
	svc, err := chatsvc.NewService(store.NewRepository(db), relay.NewEventPublisher(mem, nil), nil)
	require.NoError(t, err)

	jwt := auth.NewJWTManager(auth.DefaultJWTConfig())
	gw := api.NewGateway(mem, svc, nil)
	app := api.NewApp(svc, gw, jwt)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)

	t.Cleanup(func() {
		gw.Close()
		app.Shutdown()
		mem.Close()
		sqlDB.Close()
	})
	return &testEnv{baseURL: "http://" + ln.Addr().String(), jwt: jwt}
}

func (e *testEnv) login(t *testing.T, userID string) *Client {
	t.Helper()

	token, err := e.jwt.IssueToken(userID, userID, 0)
	require.NoError(t, err)
	c, err := New(Config{BaseURL: e.baseURL, Token: token, UserID: userID})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	return c
}

func hasMember(members []chat.Member, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func TestClient_RoomLifecycle(t *testing.T) {
	env := startServer(t)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	ctx := context.Background()

	room, err := alice.CreateRoom(ctx, "general", "")
	require.NoError(t, err)
	rooms, _ := cache.Value[[]chat.Room](alice.Store(), cache.Rooms("alice"))
	require.Len(t, rooms, 1)

	aliceView, err := alice.OpenRoom(ctx, room.ID)
	require.NoError(t, err)
	defer aliceView.Close()

	link, err := alice.RegenerateInviteLink(ctx, room.ID)
	require.NoError(t, err)
	_, err = bob.JoinByLink(ctx, link.Token)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return hasMember(aliceView.Members(), "bob")
	}, waitFor, tick)

	bobView, err := bob.OpenRoom(ctx, room.ID)
	require.NoError(t, err)

	msg, err := bob.SendMessage(ctx, room.ID, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	feed := bobView.Messages()
	require.Len(t, feed, 1)
	assert.Equal(t, msg.ID, feed[0].ID)
	assert.False(t, feed[0].Pending)

	assert.Eventually(t, func() bool {
		feed := aliceView.Messages()
		return len(feed) == 1 && feed[0].ID == msg.ID
	}, waitFor, tick)
	// The echo of bob's own message must not duplicate it.
	assert.Len(t, bobView.Messages(), 1)

	require.NoError(t, alice.BanMember(ctx, room.ID, "bob"))

	select {
	case <-bobView.Lost():
	case <-time.After(waitFor):
		t.Fatal("bob's view was not told the room is lost")
	}
	bobRooms, _ := cache.Value[[]chat.Room](bob.Store(), cache.Rooms("bob"))
	assert.Empty(t, bobRooms)
	_, ok := bob.Store().Get(cache.Messages(room.ID))
	assert.False(t, ok)

	assert.Eventually(t, func() bool {
		return !hasMember(aliceView.Members(), "bob")
	}, waitFor, tick)
}

func TestClient_InviteFlow(t *testing.T) {
	env := startServer(t)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	ctx := context.Background()

	room, err := alice.CreateRoom(ctx, "private", "")
	require.NoError(t, err)

	_, err = alice.InviteUser(ctx, room.ID, "bob")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		invites, _ := cache.Value[[]chat.Invite](bob.Store(), cache.Invites("bob"))
		return len(invites) == 1 && invites[0].RoomID == room.ID
	}, waitFor, tick)

	joined, err := bob.AcceptInvite(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)

	invites, _ := cache.Value[[]chat.Invite](bob.Store(), cache.Invites("bob"))
	assert.Empty(t, invites)
	rooms, _ := cache.Value[[]chat.Room](bob.Store(), cache.Rooms("bob"))
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)
}

func TestClient_FailedMutationRollsBack(t *testing.T) {
	env := startServer(t)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	ctx := context.Background()

	room, err := alice.CreateRoom(ctx, "general", "")
	require.NoError(t, err)
	link, err := alice.RegenerateInviteLink(ctx, room.ID)
	require.NoError(t, err)
	_, err = bob.JoinByLink(ctx, link.Token)
	require.NoError(t, err)

	view, err := bob.OpenRoom(ctx, room.ID)
	require.NoError(t, err)
	defer view.Close()

	msg, err := alice.SendMessage(ctx, room.ID, "mine")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return len(view.Messages()) == 1
	}, waitFor, tick)
	before := view.Messages()

	// Only the author or the owner may delete a message.
	err = bob.DeleteMessage(ctx, room.ID, msg.ID)
	var httpErr *dispatch.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Status)
	assert.Equal(t, before, view.Messages())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{UserID: "alice"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost", UserID: "alice"})
	require.NoError(t, err)
	_, err = c.OpenRoom(context.Background(), "r1")
	assert.Error(t, err)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
}
