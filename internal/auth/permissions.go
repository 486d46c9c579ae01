// Package auth - permissions.go defines the permission catalogue, resolves a user's roles into
// role codes and permission strings, and provides HasPermission, HasAnyPermission and
// HasAllPermissions for authorization checks.
package auth

import (
	"fmt"
	"strings"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// SuperAdminRole is the role code that passes every permission check regardless
// of the permissions attached to it.
const SuperAdminRole = "SUPER_ADMIN"

// Permission is a "module:action:resource" string
type Permission string

const (
	// Accounting
	PermAccountsRead        Permission = "accounting:read:accounts"
	PermAccountsCreate      Permission = "accounting:create:accounts"
	PermJournalEntriesRead  Permission = "accounting:read:journal_entries"
	PermJournalEntriesWrite Permission = "accounting:create:journal_entries"
	PermInvoicesRead        Permission = "accounting:read:invoices"
	PermInvoicesCreate      Permission = "accounting:create:invoices"
	PermPaymentsRead        Permission = "accounting:read:payments"
	PermPaymentsCreate      Permission = "accounting:create:payments"
	PermReportsRead         Permission = "accounting:read:reports"

	// Inventory
	PermProductsRead    Permission = "inventory:read:products"
	PermProductsCreate  Permission = "inventory:create:products"
	PermWarehousesRead  Permission = "inventory:read:warehouses"
	PermStockLevelsRead Permission = "inventory:read:stock_levels"

	// CRM
	PermCustomersRead   Permission = "crm:read:customers"
	PermCustomersCreate Permission = "crm:create:customers"
	PermVendorsRead     Permission = "crm:read:vendors"
	PermEmployeesRead   Permission = "hr:read:employees"
	PermEmployeesCreate Permission = "hr:create:employees"

	// Settings
	PermOrganizationRead   Permission = "settings:read:organization"
	PermOrganizationUpdate Permission = "settings:update:organization"
	PermRolesRead          Permission = "settings:read:roles"
	PermAuditRead          Permission = "settings:read:audit"
)

// AllPermissions returns the full permission catalogue
func AllPermissions() []Permission {
	return []Permission{
		PermAccountsRead,
		PermAccountsCreate,
		PermJournalEntriesRead,
		PermJournalEntriesWrite,
		PermInvoicesRead,
		PermInvoicesCreate,
		PermPaymentsRead,
		PermPaymentsCreate,
		PermReportsRead,
		PermProductsRead,
		PermProductsCreate,
		PermWarehousesRead,
		PermStockLevelsRead,
		PermCustomersRead,
		PermCustomersCreate,
		PermVendorsRead,
		PermEmployeesRead,
		PermEmployeesCreate,
		PermOrganizationRead,
		PermOrganizationUpdate,
		PermRolesRead,
		PermAuditRead,
	}
}

// PermissionString joins the three parts with ':'
func PermissionString(module, action, resource string) string {
	return module + ":" + action + ":" + resource
}

// Parts splits the permission into module, action and resource.
func (p Permission) Parts() (module, action, resource string, err error) {
	parts := strings.Split(string(p), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid permission: %q", string(p))
	}
	return parts[0], parts[1], parts[2], nil
}

// UserSession is the authenticated principal attached to a request.
type UserSession struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"orgId"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// ResolvePermissions flattens already-loaded roles into role codes and a
// deduplicated permission list. Output order follows first occurrence.
func ResolvePermissions(roles []models.RoleWithPermissions) (codes []string, permissions []string) {
	codes = make([]string, 0, len(roles))
	permissions = make([]string, 0)
	seenCodes := make(map[string]struct{}, len(roles))
	seenPerms := make(map[string]struct{})

	for _, role := range roles {
		if _, ok := seenCodes[role.Code]; !ok {
			seenCodes[role.Code] = struct{}{}
			codes = append(codes, role.Code)
		}
		for _, p := range role.Permissions {
			s := p.String()
			if _, ok := seenPerms[s]; ok {
				continue
			}
			seenPerms[s] = struct{}{}
			permissions = append(permissions, s)
		}
	}

	return codes, permissions
}

// NewUserSession builds the principal for a user from its loaded roles.
func NewUserSession(user *models.User, roles []models.RoleWithPermissions) *UserSession {
	codes, perms := ResolvePermissions(roles)
	return &UserSession{
		ID:          user.ID,
		OrgID:       user.OrgID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Roles:       codes,
		Permissions: perms,
	}
}

// HasRole reports whether the session holds the role code.
func (s *UserSession) HasRole(code string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the session holds SuperAdminRole.
func (s *UserSession) IsSuperAdmin() bool {
	return s.HasRole(SuperAdminRole)
}

// HasPermission checks the session for an exact module:action:resource match.
// SUPER_ADMIN is an intentional bypass and passes every check.
func HasPermission(s *UserSession, module, action, resource string) bool {
	if s == nil {
		return false
	}
	if s.IsSuperAdmin() {
		return true
	}
	required := PermissionString(module, action, resource)
	for _, p := range s.Permissions {
		if p == required {
			return true
		}
	}
	return false
}

// Has checks a catalogue permission. Malformed permissions never match.
func (s *UserSession) Has(p Permission) bool {
	module, action, resource, err := p.Parts()
	if err != nil {
		return false
	}
	return HasPermission(s, module, action, resource)
}

// HasAnyPermission checks if the session has at least one of the required permissions
func HasAnyPermission(s *UserSession, required []Permission) bool {
	for _, p := range required {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if the session has all of the required permissions
func HasAllPermissions(s *UserSession, required []Permission) bool {
	for _, p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}
