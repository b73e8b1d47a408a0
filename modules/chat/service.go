package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"

	domain "github.com/example/realtime-chatroom/domain/chat"
	"github.com/example/realtime-chatroom/internal/logging"
	"github.com/example/realtime-chatroom/modules/store"
)

// Message history page limits.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Store is the backing store used by the service.
type Store interface {
	UpsertUser(ctx context.Context, user *store.User) error
	FindUser(ctx context.Context, id string) (*store.User, error)
	CreateRoom(ctx context.Context, room *store.Room, link *store.InviteLink) error
	FindRoom(ctx context.Context, id string) (*store.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error)
	DeleteRoom(ctx context.Context, id string) error
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]store.User, error)
	ListBans(ctx context.Context, roomID string) ([]store.User, error)
	AddMember(ctx context.Context, roomID, userID string) error
	AcceptInvite(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	BanMember(ctx context.Context, roomID, userID string) error
	RemoveBan(ctx context.Context, roomID, userID string) error
	CreateInvite(ctx context.Context, roomID, userID string) error
	DeleteInvite(ctx context.Context, roomID, userID string) error
	ListRoomInvites(ctx context.Context, roomID string) ([]store.InviteView, error)
	ListUserInvites(ctx context.Context, userID string) ([]store.InviteView, error)
	FindInviteLink(ctx context.Context, roomID string) (*store.InviteLink, error)
	FindInviteLinkByToken(ctx context.Context, token string) (*store.InviteLink, error)
	SaveInviteLink(ctx context.Context, link *store.InviteLink) error
	CreateMessage(ctx context.Context, msg *store.Message) error
	FindMessage(ctx context.Context, id string) (*store.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]store.MessageView, error)
}

// Events receives committed mutations for realtime fan-out. Implementations
// must not fail the caller.
type Events interface {
	MessageCreated(ctx context.Context, msg domain.Message)
	MessageDeleted(ctx context.Context, roomID, messageID string)
	MemberJoined(ctx context.Context, roomID string, member domain.Member, at time.Time)
	MemberLeft(ctx context.Context, roomID, userID string, at time.Time)
	MemberBanned(ctx context.Context, roomID, userID string, at time.Time)
	RoomDeleted(ctx context.Context, roomID string)
	InviteCreated(ctx context.Context, invite domain.Invite)
	InviteDeclined(ctx context.Context, roomID, userID string)
	InviteRevoked(ctx context.Context, roomID, userID string)
}

// Service implements the chat operations. Each mutation validates its input,
// checks authorization, performs one store write and then notifies Events.
type Service struct {
	store    Store
	events   Events
	logger   types.Logger
	newToken func() string
	now      func() time.Time
}

// NewService creates a new chat service.
func NewService(st Store, ev Events, logger types.Logger) (*Service, error) {
	logger = logging.OrDefault(logger)
	newToken, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create token generator: %w", err)
	}
	return &Service{
		store:    st,
		events:   ev,
		logger:   logger,
		newToken: newToken,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureUser creates the user on first sight and refreshes the handle.
func (s *Service) EnsureUser(ctx context.Context, userID, handle, avatarURL string) (domain.Member, error) {
	if err := ValidateUserID(userID); err != nil {
		return domain.Member{}, err
	}
	if err := ValidateHandle(handle); err != nil {
		return domain.Member{}, err
	}
	user := &store.User{ID: userID, Handle: handle, AvatarURL: avatarURL}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return domain.Member{}, err
	}
	return toMember(*user), nil
}

// CreateRoom creates a room owned by actor.
func (s *Service) CreateRoom(ctx context.Context, actor, name, description string) (domain.Room, error) {
	if err := ValidateRoomName(name); err != nil {
		return domain.Room{}, err
	}
	if err := ValidateDescription(description); err != nil {
		return domain.Room{}, err
	}

	room := &store.Room{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		OwnerID:     actor,
	}
	if err := s.store.CreateRoom(ctx, room, &store.InviteLink{Token: s.newToken()}); err != nil {
		return domain.Room{}, err
	}

	s.logger.Info("Room created", "roomID", room.ID, "ownerID", actor)
	return toRoom(*room), nil
}

// DeleteRoom deletes a room and everything in it. Owner only.
func (s *Service) DeleteRoom(ctx context.Context, actor, roomID string) error {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	s.events.RoomDeleted(ctx, roomID)
	s.logger.Info("Room deleted", "roomID", roomID)
	return nil
}

// GetRoom returns a room the actor belongs to.
func (s *Service) GetRoom(ctx context.Context, actor, roomID string) (domain.Room, error) {
	room, err := s.requireMember(ctx, actor, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(*room), nil
}

// ListRooms returns the rooms the actor belongs to.
func (s *Service) ListRooms(ctx context.Context, actor string) ([]domain.Room, error) {
	rooms, err := s.store.ListRoomsForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		result = append(result, toRoom(r))
	}
	return result, nil
}

// IsMember reports whether the user belongs to the room.
func (s *Service) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.store.IsMember(ctx, roomID, userID)
}

// ListMessages returns up to limit of the newest messages in creation order.
func (s *Service) ListMessages(ctx context.Context, actor, roomID string, limit int) ([]domain.Message, error) {
	if _, err := s.requireMember(ctx, actor, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	rows, err := s.store.ListMessages(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		result = append(result, toMessage(row.Message, row.AuthorHandle))
	}
	return result, nil
}

// SendMessage stores a message and publishes it with the caller's fakeID.
func (s *Service) SendMessage(ctx context.Context, actor, roomID, content, fakeID string) (domain.Message, error) {
	if err := ValidateMessage(content); err != nil {
		return domain.Message{}, err
	}
	if len(fakeID) > MaxFakeIDLength {
		return domain.Message{}, ErrFakeIDTooLong
	}
	if _, err := s.requireMember(ctx, actor, roomID); err != nil {
		return domain.Message{}, err
	}
	author, err := s.store.FindUser(ctx, actor)
	if err != nil {
		return domain.Message{}, err
	}

	row := &store.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		AuthorID:  actor,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateMessage(ctx, row); err != nil {
		return domain.Message{}, err
	}

	msg := toMessage(*row, author.Handle)
	msg.FakeID = fakeID
	s.events.MessageCreated(ctx, msg)
	return msg, nil
}

// DeleteMessage deletes a message. Allowed for its author and the room owner.
func (s *Service) DeleteMessage(ctx context.Context, actor, roomID, messageID string) error {
	room, err := s.requireMember(ctx, actor, roomID)
	if err != nil {
		return err
	}
	msg, err := s.store.FindMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.RoomID != roomID {
		return fmt.Errorf("message %w", ErrNotFound)
	}
	if msg.AuthorID != actor && room.OwnerID != actor {
		return ErrNotAuthor
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.events.MessageDeleted(ctx, roomID, messageID)
	return nil
}

// ListMembers returns the members of a room the actor belongs to.
func (s *Service) ListMembers(ctx context.Context, actor, roomID string) ([]domain.Member, error) {
	if _, err := s.requireMember(ctx, actor, roomID); err != nil {
		return nil, err
	}
	users, err := s.store.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return toMembers(users), nil
}

// LeaveRoom removes the actor from a room. The owner cannot leave.
func (s *Service) LeaveRoom(ctx context.Context, actor, roomID string) error {
	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID == actor {
		return ErrOwnerCannotLeave
	}
	if err := s.store.RemoveMember(ctx, roomID, actor); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}

	s.events.MemberLeft(ctx, roomID, actor, s.now())
	return nil
}

// BanMember bans a user from a room, removing their membership and any
// pending invite. Owner only.
func (s *Service) BanMember(ctx context.Context, actor, roomID, userID string) error {
	room, err := s.requireOwner(ctx, actor, roomID)
	if err != nil {
		return err
	}
	if userID == room.OwnerID {
		return ErrCannotBanOwner
	}
	if _, err := s.store.FindUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.BanMember(ctx, roomID, userID); err != nil {
		return err
	}

	s.events.MemberBanned(ctx, roomID, userID, s.now())
	s.logger.Info("Member banned", "roomID", roomID, "userID", userID)
	return nil
}

// UnbanMember lifts a ban. Owner only.
func (s *Service) UnbanMember(ctx context.Context, actor, roomID, userID string) error {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return err
	}
	return s.store.RemoveBan(ctx, roomID, userID)
}

// ListBans returns the users banned from a room. Owner only.
func (s *Service) ListBans(ctx context.Context, actor, roomID string) ([]domain.Member, error) {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return nil, err
	}
	users, err := s.store.ListBans(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return toMembers(users), nil
}

// InviteUser invites a user to a room. Owner only.
func (s *Service) InviteUser(ctx context.Context, actor, roomID, inviteeID string) (domain.Invite, error) {
	room, err := s.requireOwner(ctx, actor, roomID)
	if err != nil {
		return domain.Invite{}, err
	}
	invitee, err := s.store.FindUser(ctx, inviteeID)
	if err != nil {
		return domain.Invite{}, err
	}
	if err := s.store.CreateInvite(ctx, roomID, inviteeID); err != nil {
		return domain.Invite{}, err
	}

	invite := domain.Invite{
		RoomID:        roomID,
		RoomName:      room.Name,
		InviteeID:     inviteeID,
		InviteeHandle: invitee.Handle,
		CreatedAt:     s.now(),
	}
	s.events.InviteCreated(ctx, invite)
	return invite, nil
}

// AcceptInvite turns the actor's pending invite into membership.
func (s *Service) AcceptInvite(ctx context.Context, actor, roomID string) (domain.Room, error) {
	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.store.AcceptInvite(ctx, roomID, actor); err != nil {
		return domain.Room{}, err
	}
	s.memberJoined(ctx, roomID, actor)
	return toRoom(*room), nil
}

// DeclineInvite drops the actor's pending invite.
func (s *Service) DeclineInvite(ctx context.Context, actor, roomID string) error {
	if err := s.store.DeleteInvite(ctx, roomID, actor); err != nil {
		return err
	}
	s.events.InviteDeclined(ctx, roomID, actor)
	return nil
}

// RevokeInvite withdraws a pending invite. Owner only.
func (s *Service) RevokeInvite(ctx context.Context, actor, roomID, inviteeID string) error {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return err
	}
	if err := s.store.DeleteInvite(ctx, roomID, inviteeID); err != nil {
		return err
	}
	s.events.InviteRevoked(ctx, roomID, inviteeID)
	return nil
}

// ListRoomInvites returns the pending invites of a room. Owner only.
func (s *Service) ListRoomInvites(ctx context.Context, actor, roomID string) ([]domain.Invite, error) {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRoomInvites(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return toInvites(rows), nil
}

// ListUserInvites returns the invites addressed to the actor.
func (s *Service) ListUserInvites(ctx context.Context, actor string) ([]domain.Invite, error) {
	rows, err := s.store.ListUserInvites(ctx, actor)
	if err != nil {
		return nil, err
	}
	return toInvites(rows), nil
}

// GetInviteLink returns the room's active invite link. Owner only.
func (s *Service) GetInviteLink(ctx context.Context, actor, roomID string) (domain.InviteLink, error) {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return domain.InviteLink{}, err
	}
	link, err := s.store.FindInviteLink(ctx, roomID)
	if err != nil {
		return domain.InviteLink{}, err
	}
	return domain.InviteLink{RoomID: link.RoomID, Token: link.Token}, nil
}

// RegenerateInviteLink replaces the room's invite token. Owner only.
func (s *Service) RegenerateInviteLink(ctx context.Context, actor, roomID string) (domain.InviteLink, error) {
	if _, err := s.requireOwner(ctx, actor, roomID); err != nil {
		return domain.InviteLink{}, err
	}
	link := &store.InviteLink{RoomID: roomID, Token: s.newToken()}
	if err := s.store.SaveInviteLink(ctx, link); err != nil {
		return domain.InviteLink{}, err
	}
	return domain.InviteLink{RoomID: link.RoomID, Token: link.Token}, nil
}

// JoinByLink adds the actor to the room the token belongs to.
func (s *Service) JoinByLink(ctx context.Context, actor, token string) (domain.Room, error) {
	link, err := s.store.FindInviteLinkByToken(ctx, token)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := s.store.FindRoom(ctx, link.RoomID)
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.store.AddMember(ctx, room.ID, actor); err != nil {
		return domain.Room{}, err
	}
	s.memberJoined(ctx, room.ID, actor)
	return toRoom(*room), nil
}

func (s *Service) memberJoined(ctx context.Context, roomID, userID string) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		s.logger.Warn("Joined user not found, skipping event", "roomID", roomID, "userID", userID, "error", err)
		return
	}
	s.events.MemberJoined(ctx, roomID, toMember(*user), s.now())
}

func (s *Service) requireMember(ctx context.Context, actor, roomID string) (*store.Room, error) {
	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.IsMember(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	return room, nil
}

func (s *Service) requireOwner(ctx context.Context, actor, roomID string) (*store.Room, error) {
	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerID != actor {
		return nil, ErrNotOwner
	}
	return room, nil
}

func toRoom(r store.Room) domain.Room {
	return domain.Room{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		OwnerID:     r.OwnerID,
		CreatedAt:   r.CreatedAt,
	}
}

func toMember(u store.User) domain.Member {
	return domain.Member{UserID: u.ID, Handle: u.Handle, AvatarURL: u.AvatarURL}
}

func toMembers(users []store.User) []domain.Member {
	result := make([]domain.Member, 0, len(users))
	for _, u := range users {
		result = append(result, toMember(u))
	}
	return result
}

func toMessage(m store.Message, authorHandle string) domain.Message {
	return domain.Message{
		ID:           m.ID,
		RoomID:       m.RoomID,
		AuthorID:     m.AuthorID,
		AuthorHandle: authorHandle,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
}

func toInvites(rows []store.InviteView) []domain.Invite {
	result := make([]domain.Invite, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.Invite{
			RoomID:        row.RoomID,
			RoomName:      row.RoomName,
			InviteeID:     row.UserID,
			InviteeHandle: row.Handle,
			CreatedAt:     row.CreatedAt,
		})
	}
	return result
}
