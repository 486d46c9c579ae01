// Package models - audit_log.go defines the AuditLog model for recording security-relevant
// events such as logins, logouts and authenticated mutations.
package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"userId"` // Nullable for anonymous events (failed logins)
	OrgID        *string                `json:"orgId"`
	Action       string                 `json:"action"`       // "auth.login", "auth.login_failed", "auth.logout", "PUT /api/v1/organization"
	ResourceType *string                `json:"resourceType"` // "session", "organization", "role"
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    *string                `json:"ipAddress"`
	CreatedAt    time.Time              `json:"createdAt"`
}
