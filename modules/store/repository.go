package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a relationship rule,
	// such as inviting a banned user or joining a room twice.
	ErrConflict = errors.New("conflict")
)

// Repository provides access to chat storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new chat repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertUser creates the user or refreshes its handle and avatar.
func (r *Repository) UpsertUser(ctx context.Context, user *User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"handle", "avatar_url", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// FindUser retrieves a user by ID.
func (r *Repository) FindUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// CreateRoom saves the room, makes its owner a member and stores the first
// invite link, all in one transaction.
func (r *Repository) CreateRoom(ctx context.Context, room *Room, link *InviteLink) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if err := tx.Create(&Membership{RoomID: room.ID, UserID: room.OwnerID}).Error; err != nil {
			return err
		}
		link.RoomID = room.ID
		return tx.Create(link).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// FindRoom retrieves a room by ID.
func (r *Repository) FindRoom(ctx context.Context, id string) (*Room, error) {
	var room Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, notFound("room", err)
	}
	return &room, nil
}

// ListRoomsForUser returns the rooms the user is a member of, oldest first.
func (r *Repository) ListRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	var rooms []Room
	err := r.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.room_id = rooms.id").
		Where("memberships.user_id = ?", userID).
		Order("rooms.created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// DeleteRoom removes the room and every row that depends on it.
func (r *Repository) DeleteRoom(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dep := range []any{&Message{}, &Membership{}, &Ban{}, &Invite{}, &InviteLink{}} {
			if err := tx.Where("room_id = ?", id).Delete(dep).Error; err != nil {
				return fmt.Errorf("failed to delete room rows: %w", err)
			}
		}
		result := tx.Delete(&Room{}, "id = ?", id)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("room %w", ErrNotFound)
		}
		return nil
	})
}

// IsMember reports whether the user belongs to the room.
func (r *Repository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return r.exists(ctx, &Membership{}, roomID, userID)
}

// IsBanned reports whether the user is banned from the room.
func (r *Repository) IsBanned(ctx context.Context, roomID, userID string) (bool, error) {
	return r.exists(ctx, &Ban{}, roomID, userID)
}

// HasInvite reports whether the user holds a pending invite to the room.
func (r *Repository) HasInvite(ctx context.Context, roomID, userID string) (bool, error) {
	return r.exists(ctx, &Invite{}, roomID, userID)
}

// ListMembers returns the members of the room in join order.
func (r *Repository) ListMembers(ctx context.Context, roomID string) ([]User, error) {
	return r.usersVia(ctx, "memberships", roomID)
}

// ListBans returns the users banned from the room.
func (r *Repository) ListBans(ctx context.Context, roomID string) ([]User, error) {
	return r.usersVia(ctx, "bans", roomID)
}

// AddMember connects a user to a room, consuming any pending invite.
func (r *Repository) AddMember(ctx context.Context, roomID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkJoinable(tx, roomID, userID); err != nil {
			return err
		}
		if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&Invite{}).Error; err != nil {
			return fmt.Errorf("failed to clear invite: %w", err)
		}
		if err := tx.Create(&Membership{RoomID: roomID, UserID: userID}).Error; err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		return nil
	})
}

// AcceptInvite turns a pending invite into a membership.
func (r *Repository) AcceptInvite(ctx context.Context, roomID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&Invite{})
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to consume invite: %w", err)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("invite %w", ErrNotFound)
		}
		if err := checkJoinable(tx, roomID, userID); err != nil {
			return err
		}
		if err := tx.Create(&Membership{RoomID: roomID, UserID: userID}).Error; err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		return nil
	})
}

// RemoveMember disconnects a user from a room.
func (r *Repository) RemoveMember(ctx context.Context, roomID, userID string) error {
	return r.deletePair(ctx, &Membership{}, "membership", roomID, userID)
}

// BanMember bans the user, dropping their membership and pending invite.
func (r *Repository) BanMember(ctx context.Context, roomID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Ban{}).Where("room_id = ? AND user_id = ?", roomID, userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check ban: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: user already banned", ErrConflict)
		}
		for _, dep := range []any{&Membership{}, &Invite{}} {
			if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(dep).Error; err != nil {
				return fmt.Errorf("failed to clear relationship: %w", err)
			}
		}
		if err := tx.Create(&Ban{RoomID: roomID, UserID: userID}).Error; err != nil {
			return fmt.Errorf("failed to ban member: %w", err)
		}
		return nil
	})
}

// RemoveBan lifts a ban.
func (r *Repository) RemoveBan(ctx context.Context, roomID, userID string) error {
	return r.deletePair(ctx, &Ban{}, "ban", roomID, userID)
}

// CreateInvite stores a pending invite. Members and banned users cannot be invited.
func (r *Repository) CreateInvite(ctx context.Context, roomID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkJoinable(tx, roomID, userID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Invite{}).Where("room_id = ? AND user_id = ?", roomID, userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check invite: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: user already invited", ErrConflict)
		}
		if err := tx.Create(&Invite{RoomID: roomID, UserID: userID}).Error; err != nil {
			return fmt.Errorf("failed to create invite: %w", err)
		}
		return nil
	})
}

// DeleteInvite removes a pending invite.
func (r *Repository) DeleteInvite(ctx context.Context, roomID, userID string) error {
	return r.deletePair(ctx, &Invite{}, "invite", roomID, userID)
}

// ListRoomInvites returns the pending invites of a room.
func (r *Repository) ListRoomInvites(ctx context.Context, roomID string) ([]InviteView, error) {
	return r.invites(ctx, "invites.room_id = ?", roomID)
}

// ListUserInvites returns the pending invites addressed to a user.
func (r *Repository) ListUserInvites(ctx context.Context, userID string) ([]InviteView, error) {
	return r.invites(ctx, "invites.user_id = ?", userID)
}

// FindInviteLink returns the active invite link of a room.
func (r *Repository) FindInviteLink(ctx context.Context, roomID string) (*InviteLink, error) {
	var link InviteLink
	if err := r.db.WithContext(ctx).First(&link, "room_id = ?", roomID).Error; err != nil {
		return nil, notFound("invite link", err)
	}
	return &link, nil
}

// FindInviteLinkByToken resolves a join token.
func (r *Repository) FindInviteLinkByToken(ctx context.Context, token string) (*InviteLink, error) {
	var link InviteLink
	if err := r.db.WithContext(ctx).First(&link, "token = ?", token).Error; err != nil {
		return nil, notFound("invite link", err)
	}
	return &link, nil
}

// SaveInviteLink replaces the room's token, invalidating the previous one.
func (r *Repository) SaveInviteLink(ctx context.Context, link *InviteLink) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return fmt.Errorf("failed to save invite link: %w", err)
	}
	return nil
}

// CreateMessage saves a new message.
func (r *Repository) CreateMessage(ctx context.Context, msg *Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// FindMessage retrieves a message by ID.
func (r *Repository) FindMessage(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, notFound("message", err)
	}
	return &msg, nil
}

// DeleteMessage removes a message by ID.
func (r *Repository) DeleteMessage(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&Message{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %w", ErrNotFound)
	}
	return nil
}

// ListMessages returns the newest limit messages of a room in creation order.
func (r *Repository) ListMessages(ctx context.Context, roomID string, limit int) ([]MessageView, error) {
	var rows []MessageView
	err := r.db.WithContext(ctx).
		Table("messages").
		Select("messages.*, users.handle AS author_handle").
		Joins("LEFT JOIN users ON users.id = messages.author_id").
		Where("messages.room_id = ?", roomID).
		Order("messages.created_at DESC, messages.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	slices.Reverse(rows)
	return rows, nil
}

// Ping verifies the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) exists(ctx context.Context, model any, roomID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(model).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) deletePair(ctx context.Context, model any, what, roomID, userID string) error {
	result := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).Delete(model)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

func (r *Repository) usersVia(ctx context.Context, table, roomID string) ([]User, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Joins(fmt.Sprintf("JOIN %s ON %s.user_id = users.id", table, table)).
		Where(table+".room_id = ?", roomID).
		Order(table + ".created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return users, nil
}

func (r *Repository) invites(ctx context.Context, where string, arg string) ([]InviteView, error) {
	var rows []InviteView
	err := r.db.WithContext(ctx).
		Table("invites").
		Select("invites.room_id, rooms.name AS room_name, invites.user_id, users.handle, invites.created_at").
		Joins("JOIN rooms ON rooms.id = invites.room_id").
		Joins("LEFT JOIN users ON users.id = invites.user_id").
		Where(where, arg).
		Order("invites.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return rows, nil
}

// checkJoinable rejects banned users and existing members.
func checkJoinable(tx *gorm.DB, roomID, userID string) error {
	var count int64
	if err := tx.Model(&Ban{}).Where("room_id = ? AND user_id = ?", roomID, userID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check ban: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: user is banned", ErrConflict)
	}
	if err := tx.Model(&Membership{}).Where("room_id = ? AND user_id = ?", roomID, userID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: user is already a member", ErrConflict)
	}
	return nil
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to find %s: %w", what, err)
}
