package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/example/realtime-chatroom/events"
)

// Validation limits.
const (
	MaxHandleLength      = 50
	MaxRoomNameLength    = 100
	MaxDescriptionLength = 500
	MaxMessageLength     = 5000
	MaxFakeIDLength      = 64
	MaxUserIDLength      = 64
)

// ValidateUserID checks that id can scope a user topic.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDLength {
		return ErrUserIDInvalid
	}
	if _, err := events.TopicFor(id, events.FamilyBan); err != nil {
		return ErrUserIDInvalid
	}
	return nil
}

// ValidateHandle validates a display handle.
func ValidateHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return ErrHandleEmpty
	}
	if len(handle) > MaxHandleLength {
		return ErrHandleTooLong
	}
	if !utf8.ValidString(handle) {
		return ErrHandleInvalid
	}
	return nil
}

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrRoomNameInvalid
	}
	return nil
}

// ValidateDescription validates an optional room description.
func ValidateDescription(desc string) error {
	if len(desc) > MaxDescriptionLength {
		return ErrDescTooLong
	}
	if !utf8.ValidString(desc) {
		return ErrRoomNameInvalid
	}
	return nil
}

// ValidateMessage validates message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}
