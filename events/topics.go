// Package events defines the realtime event catalogue: event families, the
// topic naming scheme, the relay envelope and one payload type per family.
package events

import (
	"errors"
	"fmt"
	"strings"
)

// Scope is the kind of entity a topic is scoped to.
type Scope string

const (
	ScopeRoom Scope = "room"
	ScopeUser Scope = "user"
)

// Family is an event family. The family name doubles as the event name bound
// on the topic.
type Family string

const (
	FamilyNewMessage    Family = "new-message"
	FamilyDeleteMessage Family = "delete-message"
	FamilyNewMember     Family = "new-member"
	FamilyRemoveMember  Family = "remove-member"
	FamilyMemberLeave   Family = "member-leave"
	FamilyDeleteRoom    Family = "delete-room"
	FamilyNewInvite     Family = "new-invite"
	FamilyChatInvite    Family = "chat-invite"
	FamilyDeclineInvite Family = "decline-invite"
	FamilyRevokeInvite  Family = "revoke-invite"
	FamilyBan           Family = "ban"
)

const topicSeparator = "__"

// Topic naming errors.
var (
	ErrInvalidScope  = errors.New("invalid scope id")
	ErrUnknownFamily = errors.New("unknown event family")
	ErrInvalidTopic  = errors.New("invalid topic")
)

var familyScopes = map[Family]Scope{
	FamilyNewMessage:    ScopeRoom,
	FamilyDeleteMessage: ScopeRoom,
	FamilyNewMember:     ScopeRoom,
	FamilyRemoveMember:  ScopeRoom,
	FamilyMemberLeave:   ScopeRoom,
	FamilyDeleteRoom:    ScopeRoom,
	FamilyNewInvite:     ScopeRoom,
	FamilyDeclineInvite: ScopeRoom,
	FamilyChatInvite:    ScopeUser,
	FamilyRevokeInvite:  ScopeUser,
	FamilyBan:           ScopeUser,
}

// Scope returns the scope prefix of the family.
func (f Family) Scope() (Scope, bool) {
	s, ok := familyScopes[f]
	return s, ok
}

// RoomFamilies lists the families published on room topics, in a stable order.
func RoomFamilies() []Family {
	return []Family{
		FamilyNewMessage,
		FamilyDeleteMessage,
		FamilyNewMember,
		FamilyRemoveMember,
		FamilyMemberLeave,
		FamilyDeleteRoom,
		FamilyNewInvite,
		FamilyDeclineInvite,
	}
}

// UserFamilies lists the families published on user topics.
func UserFamilies() []Family {
	return []Family{FamilyChatInvite, FamilyRevokeInvite, FamilyBan}
}

// TopicFor returns the topic for a scope id and event family:
// "<scope>__<scopeID>__<family>".
func TopicFor(scopeID string, family Family) (string, error) {
	scope, ok := family.Scope()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	if err := validateScopeID(scopeID); err != nil {
		return "", err
	}
	return string(scope) + topicSeparator + scopeID + topicSeparator + string(family), nil
}

// ParseTopic splits a topic produced by TopicFor back into its parts.
func ParseTopic(topic string) (Scope, string, Family, error) {
	parts := strings.Split(topic, topicSeparator)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	family := Family(parts[2])
	scope, ok := family.Scope()
	if !ok || string(scope) != parts[0] {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if err := validateScopeID(parts[1]); err != nil {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return scope, parts[1], family, nil
}

// validateScopeID rejects ids that would make topics ambiguous or unusable as
// NATS subjects.
func validateScopeID(scopeID string) error {
	if scopeID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidScope)
	}
	if strings.Contains(scopeID, topicSeparator) || strings.ContainsAny(scopeID, ".*> \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidScope, scopeID)
	}
	return nil
}
