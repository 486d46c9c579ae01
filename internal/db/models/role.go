// Package models - role.go defines roles, permissions and the role→permission aggregate
// used by the permission resolver.
package models

import "time"

// Role is a named permission bundle scoped to one organization. System roles are
// seeded and must not be edited.
type Role struct {
	ID          string    `db:"id" json:"id"`
	OrgID       string    `db:"org_id" json:"orgId"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsSystem    bool      `db:"is_system" json:"isSystem"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Permission is the atomic authorization unit, identified by (module, action, resource).
type Permission struct {
	ID          string  `db:"id" json:"id"`
	Module      string  `db:"module" json:"module"`
	Action      string  `db:"action" json:"action"`
	Resource    string  `db:"resource" json:"resource"`
	Description *string `db:"description" json:"description,omitempty"`
}

// String returns the colon-delimited permission string "module:action:resource".
func (p Permission) String() string {
	return p.Module + ":" + p.Action + ":" + p.Resource
}

// RoleWithPermissions is a role with its already-loaded permission set.
type RoleWithPermissions struct {
	Role
	Permissions []Permission
}
