package chat

import (
	"errors"
	"fmt"

	"github.com/example/realtime-chatroom/modules/store"
)

// Error classes. Every error returned by the service matches one of these
// with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = store.ErrNotFound
	ErrConflict     = store.ErrConflict
)

// Validation errors.
var (
	ErrUserIDInvalid   = fmt.Errorf("%w: user id is not usable", ErrInvalidInput)
	ErrHandleEmpty     = fmt.Errorf("%w: handle cannot be empty", ErrInvalidInput)
	ErrHandleTooLong   = fmt.Errorf("%w: handle exceeds maximum length", ErrInvalidInput)
	ErrHandleInvalid   = fmt.Errorf("%w: handle contains invalid characters", ErrInvalidInput)
	ErrRoomNameEmpty   = fmt.Errorf("%w: room name cannot be empty", ErrInvalidInput)
	ErrRoomNameTooLong = fmt.Errorf("%w: room name exceeds maximum length", ErrInvalidInput)
	ErrRoomNameInvalid = fmt.Errorf("%w: room name contains invalid characters", ErrInvalidInput)
	ErrDescTooLong     = fmt.Errorf("%w: description exceeds maximum length", ErrInvalidInput)
	ErrMessageEmpty    = fmt.Errorf("%w: message content cannot be empty", ErrInvalidInput)
	ErrMessageTooLong  = fmt.Errorf("%w: message exceeds maximum length", ErrInvalidInput)
	ErrMessageInvalid  = fmt.Errorf("%w: message contains invalid characters", ErrInvalidInput)
	ErrFakeIDTooLong   = fmt.Errorf("%w: fake id exceeds maximum length", ErrInvalidInput)
)

// Authorization errors.
var (
	ErrNotMember        = fmt.Errorf("%w: not a member of this room", ErrForbidden)
	ErrNotOwner         = fmt.Errorf("%w: only the room owner can do this", ErrForbidden)
	ErrNotAuthor        = fmt.Errorf("%w: only the author or the room owner can delete this message", ErrForbidden)
	ErrOwnerCannotLeave = fmt.Errorf("%w: the owner cannot leave the room", ErrForbidden)
	ErrCannotBanOwner   = fmt.Errorf("%w: the owner cannot be banned", ErrForbidden)
)
