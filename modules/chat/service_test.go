package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/modules/store"
)

// recordedEvent is one call on recordingEvents.
type recordedEvent struct {
	kind   string
	roomID string
	userID string
	msg    domain.Message
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) add(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEvents) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

func (r *recordingEvents) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingEvents) MessageCreated(_ context.Context, msg domain.Message) {
	r.add(recordedEvent{kind: "new-message", roomID: msg.RoomID, msg: msg})
}
func (r *recordingEvents) MessageDeleted(_ context.Context, roomID, messageID string) {
	r.add(recordedEvent{kind: "delete-message", roomID: roomID, msg: domain.Message{ID: messageID}})
}
func (r *recordingEvents) MemberJoined(_ context.Context, roomID string, m domain.Member, _ time.Time) {
	r.add(recordedEvent{kind: "new-member", roomID: roomID, userID: m.UserID})
}
func (r *recordingEvents) MemberLeft(_ context.Context, roomID, userID string, _ time.Time) {
	r.add(recordedEvent{kind: "member-leave", roomID: roomID, userID: userID})
}
func (r *recordingEvents) MemberBanned(_ context.Context, roomID, userID string, _ time.Time) {
	r.add(recordedEvent{kind: "ban", roomID: roomID, userID: userID})
}
func (r *recordingEvents) RoomDeleted(_ context.Context, roomID string) {
	r.add(recordedEvent{kind: "delete-room", roomID: roomID})
}
func (r *recordingEvents) InviteCreated(_ context.Context, inv domain.Invite) {
	r.add(recordedEvent{kind: "new-invite", roomID: inv.RoomID, userID: inv.InviteeID})
}
func (r *recordingEvents) InviteDeclined(_ context.Context, roomID, userID string) {
	r.add(recordedEvent{kind: "decline-invite", roomID: roomID, userID: userID})
}
func (r *recordingEvents) InviteRevoked(_ context.Context, roomID, userID string) {
	r.add(recordedEvent{kind: "revoke-invite", roomID: roomID, userID: userID})
}

func setupTestService(t *testing.T) (*Service, *recordingEvents) {
	t.Helper()

	db, err := store.Open(":memory:", false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	ev := &recordingEvents{}
	svc, err := NewService(store.NewRepository(db), ev, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"owner", "bob", "carol"} {
		_, err := svc.EnsureUser(ctx, id, id, "")
		require.NoError(t, err)
	}
	return svc, ev
}

func TestService_CreateRoom(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "owner", "general", "all things")
	require.NoError(t, err)
	assert.Equal(t, "owner", room.OwnerID)
	assert.NotEmpty(t, room.ID)

	rooms, err := svc.ListRooms(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	members, err := svc.ListMembers(ctx, "owner", room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "owner", members[0].UserID)

	_, err = svc.CreateRoom(ctx, "owner", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, ev.kinds())
}

func TestService_SendMessageEchoesFakeID(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, "owner", room.ID, "hi", "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", msg.FakeID)
	assert.Equal(t, "owner", msg.AuthorHandle)

	last := ev.last()
	assert.Equal(t, "new-message", last.kind)
	assert.Equal(t, "f1", last.msg.FakeID)
	assert.Equal(t, msg.ID, last.msg.ID)

	history, err := svc.ListMessages(ctx, "owner", room.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].FakeID)

	_, err = svc.SendMessage(ctx, "bob", room.ID, "hi", "f2")
	assert.ErrorIs(t, err, ErrNotMember)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_DeleteMessageAuthorization(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)
	link, err := svc.GetInviteLink(ctx, "owner", room.ID)
	require.NoError(t, err)
	for _, u := range []string{"bob", "carol"} {
		_, err := svc.JoinByLink(ctx, u, link.Token)
		require.NoError(t, err)
	}

	msg, err := svc.SendMessage(ctx, "bob", room.ID, "from bob", "")
	require.NoError(t, err)

	err = svc.DeleteMessage(ctx, "carol", room.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotAuthor)

	require.NoError(t, svc.DeleteMessage(ctx, "owner", room.ID, msg.ID))
	assert.Equal(t, "delete-message", ev.last().kind)

	err = svc.DeleteMessage(ctx, "owner", room.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_InviteLifecycle(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)

	_, err = svc.InviteUser(ctx, "bob", room.ID, "carol")
	assert.ErrorIs(t, err, ErrNotOwner)

	inv, err := svc.InviteUser(ctx, "owner", room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "general", inv.RoomName)
	assert.Equal(t, "new-invite", ev.last().kind)

	mine, err := svc.ListUserInvites(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = svc.AcceptInvite(ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-member", ev.last().kind)

	_, err = svc.InviteUser(ctx, "owner", room.ID, "carol")
	require.NoError(t, err)
	require.NoError(t, svc.DeclineInvite(ctx, "carol", room.ID))
	assert.Equal(t, "decline-invite", ev.last().kind)

	_, err = svc.InviteUser(ctx, "owner", room.ID, "carol")
	require.NoError(t, err)
	require.NoError(t, svc.RevokeInvite(ctx, "owner", room.ID, "carol"))
	last := ev.last()
	assert.Equal(t, "revoke-invite", last.kind)
	assert.Equal(t, "carol", last.userID)

	err = svc.DeclineInvite(ctx, "carol", room.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_BanMember(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)
	link, err := svc.GetInviteLink(ctx, "owner", room.ID)
	require.NoError(t, err)
	_, err = svc.JoinByLink(ctx, "bob", link.Token)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.BanMember(ctx, "owner", room.ID, "owner"), ErrCannotBanOwner)
	assert.ErrorIs(t, svc.BanMember(ctx, "bob", room.ID, "owner"), ErrNotOwner)

	require.NoError(t, svc.BanMember(ctx, "owner", room.ID, "bob"))
	last := ev.last()
	assert.Equal(t, "ban", last.kind)
	assert.Equal(t, "bob", last.userID)

	ok, err := svc.IsMember(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.JoinByLink(ctx, "bob", link.Token)
	assert.ErrorIs(t, err, ErrConflict)

	bans, err := svc.ListBans(ctx, "owner", room.ID)
	require.NoError(t, err)
	require.Len(t, bans, 1)

	require.NoError(t, svc.UnbanMember(ctx, "owner", room.ID, "bob"))
	_, err = svc.JoinByLink(ctx, "bob", link.Token)
	require.NoError(t, err)
}

func TestService_LeaveRoom(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)
	link, err := svc.GetInviteLink(ctx, "owner", room.ID)
	require.NoError(t, err)
	_, err = svc.JoinByLink(ctx, "bob", link.Token)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.LeaveRoom(ctx, "owner", room.ID), ErrOwnerCannotLeave)
	require.NoError(t, svc.LeaveRoom(ctx, "bob", room.ID))
	assert.Equal(t, "member-leave", ev.last().kind)
	assert.ErrorIs(t, svc.LeaveRoom(ctx, "bob", room.ID), ErrNotMember)
}

func TestService_RegenerateInviteLink(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)

	old, err := svc.GetInviteLink(ctx, "owner", room.ID)
	require.NoError(t, err)
	fresh, err := svc.RegenerateInviteLink(ctx, "owner", room.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.Token, fresh.Token)

	_, err = svc.JoinByLink(ctx, "bob", old.Token)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.JoinByLink(ctx, "bob", fresh.Token)
	require.NoError(t, err)
}

func TestService_DeleteRoom(t *testing.T) {
	svc, ev := setupTestService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "owner", "general", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteRoom(ctx, "bob", room.ID), ErrNotOwner)
	require.NoError(t, svc.DeleteRoom(ctx, "owner", room.ID))
	assert.Equal(t, "delete-room", ev.last().kind)

	_, err = svc.GetRoom(ctx, "owner", room.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
