package auth

import (
	"testing"
	"time"
)

func TestJWTManager_IssueAndValidate(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig())

	token, err := m.IssueToken("u1", "alice", 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID() != "u1" {
		t.Errorf("UserID() = %q, want %q", claims.UserID(), "u1")
	}
	if claims.Handle != "alice" {
		t.Errorf("Handle = %q, want %q", claims.Handle, "alice")
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager(DefaultJWTConfig())

	other := DefaultJWTConfig()
	other.SecretKey = "another-secret"
	forged, err := NewJWTManager(other).IssueToken("u1", "alice", 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	foreign := DefaultJWTConfig()
	foreign.Issuer = "someone-else"
	wrongIssuer, err := NewJWTManager(foreign).IssueToken("u1", "alice", 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	expired, err := m.IssueToken("u1", "alice", time.Nanosecond)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	time.Sleep(time.Second)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateToken(tt.token); err != tt.wantErr {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
