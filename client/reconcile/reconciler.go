package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/realtime-chatroom/client/cache"
	"github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/events"
)

// Reconciler applies realtime events to the cache of one signed-in user.
//
// Incremental edits are used where redelivery is harmless. Losing access to a
// room invalidates every key of that room instead, which converges whatever
// order the events of different topics arrive in. Membership changes of one
// user in one room are ordered by their event time, last writer wins.
type Reconciler struct {
	store  *cache.Store
	userID string
	logger *slog.Logger

	mu      sync.Mutex
	clocks  map[membership]membershipClock
	deleted map[string]*tombstones
	lostFns []func(roomID string)
}

type membership struct {
	roomID string
	userID string
}

type membershipClock struct {
	at      time.Time
	present bool
}

// New creates a reconciler writing to store on behalf of userID.
func New(store *cache.Store, userID string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   store,
		userID:  userID,
		logger:  logger.With("userID", userID),
		clocks:  make(map[membership]membershipClock),
		deleted: make(map[string]*tombstones),
	}
}

// UserID returns the session user.
func (r *Reconciler) UserID() string {
	return r.userID
}

// OnRoomLost registers fn to run after the session user loses access to a
// room and its keys have been invalidated.
func (r *Reconciler) OnRoomLost(fn func(roomID string)) {
	r.mu.Lock()
	r.lostFns = append(r.lostFns, fn)
	r.mu.Unlock()
}

// MessageCreated appends the message, or confirms the optimistic entry
// carrying the same fake id. A message already seen deleted is not applied,
// and its optimistic entry is dropped.
func (r *Reconciler) MessageCreated(e events.MessageCreated) {
	msg := e.Message
	if r.wasDeleted(e.RoomID, msg.ID) {
		r.logger.Debug("Ignoring creation of deleted message", "roomID", e.RoomID, "messageID", msg.ID)
		if msg.FakeID != "" {
			cache.UpdateExisting(r.store, cache.Messages(e.RoomID), func(prev []chat.Message) []chat.Message {
				return RemoveMessage(prev, msg.FakeID)
			})
		}
		return
	}
	msg.Pending = false
	cache.Update(r.store, cache.Messages(e.RoomID), func(prev []chat.Message, _ bool) []chat.Message {
		return AppendMessage(prev, msg)
	})
}

// MessageDeleted removes the message. Unknown ids are ignored, but still
// remembered in case their creation arrives later.
func (r *Reconciler) MessageDeleted(e events.MessageDeleted) {
	r.mu.Lock()
	t, ok := r.deleted[e.RoomID]
	if !ok {
		t = newTombstones(maxTombstones)
		r.deleted[e.RoomID] = t
	}
	t.add(e.MessageID)
	r.mu.Unlock()

	cache.UpdateExisting(r.store, cache.Messages(e.RoomID), func(prev []chat.Message) []chat.Message {
		return RemoveMessage(prev, e.MessageID)
	})
}

// MemberJoined adds the member unless a later removal was already seen.
func (r *Reconciler) MemberJoined(e events.MemberJoined) {
	if !r.observe(e.RoomID, e.Member.UserID, e.At, true) {
		r.logger.Debug("Ignoring stale join", "roomID", e.RoomID, "member", e.Member.UserID)
		return
	}
	cache.UpdateExisting(r.store, cache.Members(e.RoomID), func(prev []chat.Member) []chat.Member {
		return AddMember(prev, e.Member)
	})
	cache.UpdateExisting(r.store, cache.RoomInvites(e.RoomID), func(prev []chat.Invite) []chat.Invite {
		return RemoveInvite(prev, e.RoomID, e.Member.UserID)
	})
	if e.Member.UserID == r.userID {
		// joined from another session; the room list needs the room's details
		r.store.Invalidate(cache.Rooms(r.userID))
	}
}

// MemberRemoved handles a ban observed on the room topic.
func (r *Reconciler) MemberRemoved(e events.MemberRemoved) {
	if !r.observe(e.RoomID, e.UserID, e.At, false) {
		r.logger.Debug("Ignoring stale removal", "roomID", e.RoomID, "member", e.UserID)
		return
	}
	if e.UserID == r.userID {
		r.loseRoom(e.RoomID, events.FamilyRemoveMember)
		return
	}
	cache.UpdateExisting(r.store, cache.Members(e.RoomID), func(prev []chat.Member) []chat.Member {
		return RemoveMember(prev, e.UserID)
	})
	r.store.Invalidate(cache.Banned(e.RoomID), cache.RoomInvites(e.RoomID))
}

// MemberLeft removes a member who left.
func (r *Reconciler) MemberLeft(e events.MemberLeft) {
	if !r.observe(e.RoomID, e.UserID, e.At, false) {
		r.logger.Debug("Ignoring stale leave", "roomID", e.RoomID, "member", e.UserID)
		return
	}
	if e.UserID == r.userID {
		r.loseRoom(e.RoomID, events.FamilyMemberLeave)
		return
	}
	cache.UpdateExisting(r.store, cache.Members(e.RoomID), func(prev []chat.Member) []chat.Member {
		return RemoveMember(prev, e.UserID)
	})
}

// RoomDeleted drops the room for every member, the owner included.
func (r *Reconciler) RoomDeleted(e events.RoomDeleted) {
	r.loseRoom(e.RoomID, events.FamilyDeleteRoom)

	r.mu.Lock()
	for k := range r.clocks {
		if k.roomID == e.RoomID {
			delete(r.clocks, k)
		}
	}
	delete(r.deleted, e.RoomID)
	r.mu.Unlock()
}

func (r *Reconciler) wasDeleted(roomID, messageID string) bool {
	if messageID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.deleted[roomID]
	return ok && t.has(messageID)
}

// RoomInviteCreated records an invite sent from a room.
func (r *Reconciler) RoomInviteCreated(e events.InviteCreated) {
	cache.UpdateExisting(r.store, cache.RoomInvites(e.Invite.RoomID), func(prev []chat.Invite) []chat.Invite {
		return AddInvite(prev, e.Invite)
	})
}

// InviteDeclined drops a declined invite from the room's list.
func (r *Reconciler) InviteDeclined(e events.InviteDeclined) {
	cache.UpdateExisting(r.store, cache.RoomInvites(e.RoomID), func(prev []chat.Invite) []chat.Invite {
		return RemoveInvite(prev, e.RoomID, e.UserID)
	})
}

// InviteReceived records an invite addressed to the session user.
func (r *Reconciler) InviteReceived(e events.InviteCreated) {
	if !r.isSelf(e.UserID(), events.FamilyChatInvite) {
		return
	}
	cache.UpdateExisting(r.store, cache.Invites(r.userID), func(prev []chat.Invite) []chat.Invite {
		return AddInvite(prev, e.Invite)
	})
}

// InviteRevoked drops a revoked invite of the session user.
func (r *Reconciler) InviteRevoked(e events.InviteRevoked) {
	if !r.isSelf(e.UserID, events.FamilyRevokeInvite) {
		return
	}
	cache.UpdateExisting(r.store, cache.Invites(r.userID), func(prev []chat.Invite) []chat.Invite {
		return RemoveInvite(prev, e.RoomID, e.UserID)
	})
}

// Banned handles the ban notice on the session user's own topic.
func (r *Reconciler) Banned(e events.Banned) {
	if !r.isSelf(e.UserID, events.FamilyBan) {
		return
	}
	r.observe(e.RoomID, e.UserID, e.At, false)
	r.loseRoom(e.RoomID, events.FamilyBan)
}

// isSelf guards handlers of user-scoped topics.
func (r *Reconciler) isSelf(userID string, family events.Family) bool {
	if userID == r.userID {
		return true
	}
	r.logger.Warn("Ignoring event addressed to another user", "event", family, "target", userID)
	return false
}

// observe records a membership change and reports whether it is the latest
// seen for the pair. Removal wins a tie.
func (r *Reconciler) observe(roomID, userID string, at time.Time, present bool) bool {
	if at.IsZero() {
		at = time.Now()
	}
	key := membership{roomID: roomID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.clocks[key]; ok {
		if at.Before(last.at) || (at.Equal(last.at) && present && !last.present) {
			return false
		}
	}
	r.clocks[key] = membershipClock{at: at, present: present}
	return true
}

// loseRoom removes the room from the session user's lists and invalidates
// every key that depends on it.
func (r *Reconciler) loseRoom(roomID string, cause events.Family) {
	r.logger.Info("Lost access to room", "roomID", roomID, "cause", cause)

	cache.UpdateExisting(r.store, cache.Rooms(r.userID), func(prev []chat.Room) []chat.Room {
		return RemoveRoom(prev, roomID)
	})
	cache.UpdateExisting(r.store, cache.Invites(r.userID), func(prev []chat.Invite) []chat.Invite {
		return RemoveInvitesForRoom(prev, roomID)
	})
	r.store.Invalidate(cache.RoomKeys(roomID)...)

	r.mu.Lock()
	fns := append([]func(string){}, r.lostFns...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(roomID)
	}
}
