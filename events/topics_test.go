package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicFor(t *testing.T) {
	tests := []struct {
		name    string
		scopeID string
		family  Family
		want    string
		wantErr error
	}{
		{name: "room family", scopeID: "r1", family: FamilyNewMessage, want: "room__r1__new-message"},
		{name: "user family", scopeID: "alice", family: FamilyBan, want: "user__alice__ban"},
		{name: "uuid scope", scopeID: "0b8f7d3e-1c2a-4a8e-9f11-5d2c7e0a6b44", family: FamilyDeleteRoom,
			want: "room__0b8f7d3e-1c2a-4a8e-9f11-5d2c7e0a6b44__delete-room"},
		{name: "empty scope", scopeID: "", family: FamilyNewMessage, wantErr: ErrInvalidScope},
		{name: "separator in scope", scopeID: "a__b", family: FamilyNewMessage, wantErr: ErrInvalidScope},
		{name: "subject wildcard in scope", scopeID: "a.>", family: FamilyNewMessage, wantErr: ErrInvalidScope},
		{name: "unknown family", scopeID: "r1", family: "typing", wantErr: ErrUnknownFamily},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TopicFor(tt.scopeID, tt.family)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopicFor_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, scopeID := range []string{"r1", "r2", "alice"} {
		for _, family := range append(RoomFamilies(), UserFamilies()...) {
			topic, err := TopicFor(scopeID, family)
			require.NoError(t, err)
			assert.False(t, seen[topic], "duplicate topic %s", topic)
			seen[topic] = true
		}
	}
}

func TestParseTopic(t *testing.T) {
	for _, family := range append(RoomFamilies(), UserFamilies()...) {
		topic, err := TopicFor("x1", family)
		require.NoError(t, err)

		scope, scopeID, got, err := ParseTopic(topic)
		require.NoError(t, err)
		wantScope, _ := family.Scope()
		assert.Equal(t, wantScope, scope)
		assert.Equal(t, "x1", scopeID)
		assert.Equal(t, family, got)
	}

	for _, bad := range []string{"", "room__r1", "user__r1__new-message", "room____new-message", "room__r1__typing", "a__b__c__d"} {
		_, _, _, err := ParseTopic(bad)
		assert.ErrorIs(t, err, ErrInvalidTopic, bad)
	}
}

func TestFamilies_CoverEveryScope(t *testing.T) {
	for _, f := range RoomFamilies() {
		s, ok := f.Scope()
		assert.True(t, ok)
		assert.Equal(t, ScopeRoom, s, f)
	}
	for _, f := range UserFamilies() {
		s, ok := f.Scope()
		assert.True(t, ok)
		assert.Equal(t, ScopeUser, s, f)
	}
	assert.Len(t, append(RoomFamilies(), UserFamilies()...), len(familyScopes))
}
