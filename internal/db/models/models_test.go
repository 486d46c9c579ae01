package models

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Session.IsExpired
// ---------------------------------------------------------------------------

func TestSession_IsExpired_FutureExpiry(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Hour)}
	if s.IsExpired(now) {
		t.Error("IsExpired() should be false for a future expiry")
	}
}

func TestSession_IsExpired_PastExpiry(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(-time.Second)}
	if !s.IsExpired(now) {
		t.Error("IsExpired() should be true for a past expiry")
	}
}

func TestSession_IsExpired_ExactBoundary(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now}
	if !s.IsExpired(now) {
		t.Error("IsExpired() should be true when expiry equals now")
	}
}

// ---------------------------------------------------------------------------
// Permission.String
// ---------------------------------------------------------------------------

func TestPermission_String(t *testing.T) {
	tests := []struct {
		p    Permission
		want string
	}{
		{Permission{Module: "accounting", Action: "read", Resource: "invoices"}, "accounting:read:invoices"},
		{Permission{Module: "settings", Action: "update", Resource: "organization"}, "settings:update:organization"},
		{Permission{}, "::"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
