package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/events"
	"github.com/example/realtime-chatroom/internal/logging"
)

// DefaultPublishTimeout bounds a single relay publish.
const DefaultPublishTimeout = 2 * time.Second

// PublisherStats counts publish outcomes.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// EventPublisher maps committed chat mutations to topic events.
//
// Every method must be called only after the mutation is durably stored.
// Publish failures are logged and counted but never returned: the mutation
// already happened and the caller's response must reflect it. Subscribers
// that miss the event recover by refetching.
type EventPublisher struct {
	pub       Publisher
	timeout   time.Duration
	logger    types.Logger
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewEventPublisher creates an EventPublisher over pub.
func NewEventPublisher(pub Publisher, logger types.Logger) *EventPublisher {
	logger = logging.OrDefault(logger)
	return &EventPublisher{pub: pub, timeout: DefaultPublishTimeout, logger: logger}
}

// MessageCreated publishes new-message. The message carries the sender's
// fake id so the sender can correlate its optimistic entry.
func (p *EventPublisher) MessageCreated(ctx context.Context, msg chat.Message) {
	p.emit(ctx, msg.RoomID, events.FamilyNewMessage, events.MessageCreated{RoomID: msg.RoomID, Message: msg})
}

// MessageDeleted publishes delete-message.
func (p *EventPublisher) MessageDeleted(ctx context.Context, roomID, messageID string) {
	p.emit(ctx, roomID, events.FamilyDeleteMessage, events.MessageDeleted{RoomID: roomID, MessageID: messageID})
}

// MemberJoined publishes new-member.
func (p *EventPublisher) MemberJoined(ctx context.Context, roomID string, member chat.Member, at time.Time) {
	p.emit(ctx, roomID, events.FamilyNewMember, events.MemberJoined{RoomID: roomID, Member: member, At: at})
}

// MemberLeft publishes member-leave.
func (p *EventPublisher) MemberLeft(ctx context.Context, roomID, userID string, at time.Time) {
	p.emit(ctx, roomID, events.FamilyMemberLeave, events.MemberLeft{RoomID: roomID, UserID: userID, At: at})
}

// MemberBanned publishes remove-member to the room and ban to the banned user.
func (p *EventPublisher) MemberBanned(ctx context.Context, roomID, userID string, at time.Time) {
	p.emit(ctx, roomID, events.FamilyRemoveMember, events.MemberRemoved{RoomID: roomID, UserID: userID, At: at})
	p.emit(ctx, userID, events.FamilyBan, events.Banned{RoomID: roomID, UserID: userID, At: at})
}

// RoomDeleted publishes delete-room.
func (p *EventPublisher) RoomDeleted(ctx context.Context, roomID string) {
	p.emit(ctx, roomID, events.FamilyDeleteRoom, events.RoomDeleted{RoomID: roomID})
}

// InviteCreated publishes new-invite to the room and chat-invite to the invitee.
func (p *EventPublisher) InviteCreated(ctx context.Context, invite chat.Invite) {
	payload := events.InviteCreated{Invite: invite}
	p.emit(ctx, invite.RoomID, events.FamilyNewInvite, payload)
	p.emit(ctx, invite.InviteeID, events.FamilyChatInvite, payload)
}

// InviteDeclined publishes decline-invite to the room.
func (p *EventPublisher) InviteDeclined(ctx context.Context, roomID, userID string) {
	p.emit(ctx, roomID, events.FamilyDeclineInvite, events.InviteDeclined{RoomID: roomID, UserID: userID})
}

// InviteRevoked publishes revoke-invite to the invitee.
func (p *EventPublisher) InviteRevoked(ctx context.Context, roomID, userID string) {
	p.emit(ctx, userID, events.FamilyRevokeInvite, events.InviteRevoked{RoomID: roomID, UserID: userID})
}

// Stats returns a snapshot of the publish counters.
func (p *EventPublisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *EventPublisher) emit(ctx context.Context, scopeID string, family events.Family, payload any) {
	topic, err := events.TopicFor(scopeID, family)
	if err != nil {
		p.failed.Add(1)
		p.logger.Error("Failed to name topic", "scope", scopeID, "event", family, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.pub.Publish(ctx, topic, string(family), payload); err != nil {
		p.failed.Add(1)
		p.logger.Error("Failed to publish event", "topic", topic, "event", family, "error", err)
		return
	}
	p.published.Add(1)
	p.logger.Debug("Published event", "topic", topic, "event", family)
}
