package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// setupTestRepo creates a repository over an in-memory SQLite database.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := Open(":memory:", false)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return NewRepository(db)
}

func seedUsers(t *testing.T, repo *Repository, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := repo.UpsertUser(context.Background(), &User{ID: id, Handle: id}); err != nil {
			t.Fatalf("UpsertUser(%q) error = %v", id, err)
		}
	}
}

func seedRoom(t *testing.T, repo *Repository, owner string) *Room {
	t.Helper()
	room := &Room{ID: uuid.New().String(), Name: "general", OwnerID: owner}
	if err := repo.CreateRoom(context.Background(), room, &InviteLink{Token: uuid.New().String()}); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	return room
}

func TestRepository_UpsertUser(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertUser(ctx, &User{ID: "u1", Handle: "alice"}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if err := repo.UpsertUser(ctx, &User{ID: "u1", Handle: "alice2"}); err != nil {
		t.Fatalf("UpsertUser() second call error = %v", err)
	}

	user, err := repo.FindUser(ctx, "u1")
	if err != nil {
		t.Fatalf("FindUser() error = %v", err)
	}
	if user.Handle != "alice2" {
		t.Errorf("FindUser().Handle = %q, want %q", user.Handle, "alice2")
	}

	if _, err := repo.FindUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindUser(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRepository_CreateRoomAddsOwner(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedUsers(t, repo, "owner")
	room := seedRoom(t, repo, "owner")

	member, err := repo.IsMember(ctx, room.ID, "owner")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if !member {
		t.Error("owner should be a member of the new room")
	}

	link, err := repo.FindInviteLink(ctx, room.ID)
	if err != nil {
		t.Fatalf("FindInviteLink() error = %v", err)
	}
	if link.Token == "" {
		t.Error("expected an invite link token")
	}

	rooms, err := repo.ListRoomsForUser(ctx, "owner")
	if err != nil {
		t.Fatalf("ListRoomsForUser() error = %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != room.ID {
		t.Errorf("ListRoomsForUser() = %v, want [%s]", rooms, room.ID)
	}
}

func TestRepository_BanRemovesMembershipAndInvite(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedUsers(t, repo, "owner", "bob", "carol")
	room := seedRoom(t, repo, "owner")

	if err := repo.AddMember(ctx, room.ID, "bob"); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := repo.CreateInvite(ctx, room.ID, "carol"); err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}

	for _, user := range []string{"bob", "carol"} {
		if err := repo.BanMember(ctx, room.ID, user); err != nil {
			t.Fatalf("BanMember(%q) error = %v", user, err)
		}
	}

	if member, _ := repo.IsMember(ctx, room.ID, "bob"); member {
		t.Error("banned user should not be a member")
	}
	if invited, _ := repo.HasInvite(ctx, room.ID, "carol"); invited {
		t.Error("banned user should not hold an invite")
	}

	bans, err := repo.ListBans(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListBans() error = %v", err)
	}
	if len(bans) != 2 {
		t.Errorf("ListBans() returned %d users, want 2", len(bans))
	}

	if err := repo.BanMember(ctx, room.ID, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("BanMember() twice error = %v, want ErrConflict", err)
	}
	if err := repo.CreateInvite(ctx, room.ID, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateInvite(banned) error = %v, want ErrConflict", err)
	}
	if err := repo.AddMember(ctx, room.ID, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("AddMember(banned) error = %v, want ErrConflict", err)
	}

	if err := repo.RemoveBan(ctx, room.ID, "bob"); err != nil {
		t.Fatalf("RemoveBan() error = %v", err)
	}
	if err := repo.RemoveBan(ctx, room.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveBan() twice error = %v, want ErrNotFound", err)
	}
}

func TestRepository_AcceptInvite(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedUsers(t, repo, "owner", "bob")
	room := seedRoom(t, repo, "owner")

	if err := repo.AcceptInvite(ctx, room.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AcceptInvite() without invite error = %v, want ErrNotFound", err)
	}

	if err := repo.CreateInvite(ctx, room.ID, "bob"); err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	if err := repo.CreateInvite(ctx, room.ID, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateInvite() twice error = %v, want ErrConflict", err)
	}

	invites, err := repo.ListUserInvites(ctx, "bob")
	if err != nil {
		t.Fatalf("ListUserInvites() error = %v", err)
	}
	if len(invites) != 1 || invites[0].RoomName != "general" {
		t.Errorf("ListUserInvites() = %+v, want one invite to general", invites)
	}

	if err := repo.AcceptInvite(ctx, room.ID, "bob"); err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}
	if invited, _ := repo.HasInvite(ctx, room.ID, "bob"); invited {
		t.Error("accepted invite should be consumed")
	}
	if member, _ := repo.IsMember(ctx, room.ID, "bob"); !member {
		t.Error("accepting should add membership")
	}
	if err := repo.CreateInvite(ctx, room.ID, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateInvite(member) error = %v, want ErrConflict", err)
	}
}

func TestRepository_ListMessages(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedUsers(t, repo, "owner")
	room := seedRoom(t, repo, "owner")

	base := time.Now().Add(-time.Hour)
	for i, content := range []string{"one", "two", "three"} {
		msg := &Message{
			ID:        uuid.New().String(),
			RoomID:    room.ID,
			AuthorID:  "owner",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage() error = %v", err)
		}
	}

	msgs, err := repo.ListMessages(ctx, room.ID, 2)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ListMessages() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("ListMessages() = [%q %q], want [two three]", msgs[0].Content, msgs[1].Content)
	}
	if msgs[0].AuthorHandle != "owner" {
		t.Errorf("AuthorHandle = %q, want %q", msgs[0].AuthorHandle, "owner")
	}

	if err := repo.DeleteMessage(ctx, msgs[0].ID); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if err := repo.DeleteMessage(ctx, msgs[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteMessage() twice error = %v, want ErrNotFound", err)
	}
}

func TestRepository_DeleteRoomCascades(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedUsers(t, repo, "owner", "bob")
	room := seedRoom(t, repo, "owner")

	if err := repo.CreateMessage(ctx, &Message{ID: uuid.New().String(), RoomID: room.ID, AuthorID: "owner", Content: "hi"}); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if err := repo.CreateInvite(ctx, room.ID, "bob"); err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}

	if err := repo.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeleteRoom() error = %v", err)
	}

	if _, err := repo.FindRoom(ctx, room.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindRoom() after delete error = %v, want ErrNotFound", err)
	}
	msgs, _ := repo.ListMessages(ctx, room.ID, 10)
	if len(msgs) != 0 {
		t.Errorf("messages should be deleted with the room, got %d", len(msgs))
	}
	if invites, _ := repo.ListUserInvites(ctx, "bob"); len(invites) != 0 {
		t.Errorf("invites should be deleted with the room, got %d", len(invites))
	}
	if _, err := repo.FindInviteLink(ctx, room.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindInviteLink() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteRoom(ctx, room.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteRoom() twice error = %v, want ErrNotFound", err)
	}
}

func TestRepository_SaveInviteLinkRotatesToken(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedUsers(t, repo, "owner")
	room := seedRoom(t, repo, "owner")

	old, err := repo.FindInviteLink(ctx, room.ID)
	if err != nil {
		t.Fatalf("FindInviteLink() error = %v", err)
	}

	if err := repo.SaveInviteLink(ctx, &InviteLink{RoomID: room.ID, Token: "fresh"}); err != nil {
		t.Fatalf("SaveInviteLink() error = %v", err)
	}

	if _, err := repo.FindInviteLinkByToken(ctx, old.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("old token should no longer resolve, error = %v", err)
	}
	link, err := repo.FindInviteLinkByToken(ctx, "fresh")
	if err != nil {
		t.Fatalf("FindInviteLinkByToken() error = %v", err)
	}
	if link.RoomID != room.ID {
		t.Errorf("FindInviteLinkByToken().RoomID = %q, want %q", link.RoomID, room.ID)
	}
}
