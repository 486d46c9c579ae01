// Package models - user.go defines the User model (one identity inside one organization)
// and the hydrated UserWithRoles view loaded at login.
package models

import "time"

// User represents a user account. Email is unique per organization, not globally.
type User struct {
	ID           string     `db:"id" json:"id"`
	OrgID        string     `db:"org_id" json:"orgId"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"firstName"`
	LastName     string     `db:"last_name" json:"lastName"`
	IsActive     bool       `db:"is_active" json:"isActive"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// UserWithRoles is a user together with every role it holds and each role's permissions,
// read in one statement.
type UserWithRoles struct {
	User
	OrgSlug string
	Roles   []RoleWithPermissions
}
