// Package models - session.go defines the Session model (one authenticated login)
// and SessionWithUser, the aggregate returned by a token lookup.
package models

import "time"

// Session represents an authenticated login. Token is the opaque bearer credential;
// OrgID must always equal the owning user's OrgID.
type Session struct {
	ID        string    `db:"id" json:"id"`
	Token     string    `db:"token" json:"-"`
	UserID    string    `db:"user_id" json:"userId"`
	OrgID     string    `db:"org_id" json:"orgId"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	IPAddress *string   `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent *string   `db:"user_agent" json:"userAgent,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// IsExpired reports whether the session is expired at the given instant.
// A session whose expiry equals now is already expired.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionWithUser is a session hydrated with its user, the user's roles and each
// role's permissions, all read at one logical instant.
type SessionWithUser struct {
	Session
	User  User
	Roles []RoleWithPermissions
}
