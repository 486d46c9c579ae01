// Package seed populates an empty database with the demo "acme" tenant: one
// organization, the seven system roles with their permission grants, and one
// user per role family. Every step looks before it writes, so running the seed
// twice leaves the database unchanged.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/auth"
	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/db/repositories"
)

// DefaultPassword is the password of every seeded user
const DefaultPassword = "Admin123!"

// OrganizationStore is the organization subset the seed needs.
type OrganizationStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	Create(ctx context.Context, org *models.Organization) error
}

// RoleStore is the role and permission subset the seed needs.
type RoleStore interface {
	GetByCode(ctx context.Context, orgID, code string) (*models.Role, error)
	Create(ctx context.Context, role *models.Role) error
	EnsurePermission(ctx context.Context, module, action, resource string) (string, error)
	GrantPermission(ctx context.Context, roleID, permissionID string) error
	AssignToUser(ctx context.Context, userID, roleID string) error
}

// UserStore is the user subset the seed needs.
type UserStore interface {
	GetByEmail(ctx context.Context, orgID, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// RoleSpec describes one system role and its grants.
type RoleSpec struct {
	Code        string
	Name        string
	Description string
	Permissions []auth.Permission
}

// UserSpec describes one seeded user.
type UserSpec struct {
	Email     string
	FirstName string
	LastName  string
	Role      string
}

// Result counts what a run created. Zero everywhere means the data already existed.
type Result struct {
	OrganizationID      string
	OrganizationCreated bool
	RolesCreated        int
	UsersCreated        int
}

// Seeder writes the demo tenant through the repositories
type Seeder struct {
	orgs     OrganizationStore
	roles    RoleStore
	users    UserStore
	hasher   *auth.PasswordHasher
	password string
}

// New creates a Seeder over the SQL repositories
func New(db *sqlx.DB, hasher *auth.PasswordHasher) *Seeder {
	return NewWithStores(
		repositories.NewOrganizationRepository(db),
		repositories.NewRoleRepository(db),
		repositories.NewUserRepository(db),
		hasher,
	)
}

// NewWithStores creates a Seeder over arbitrary stores
func NewWithStores(orgs OrganizationStore, roles RoleStore, users UserStore, hasher *auth.PasswordHasher) *Seeder {
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}
	return &Seeder{orgs: orgs, roles: roles, users: users, hasher: hasher, password: DefaultPassword}
}

// Organization returns the seeded organization record
func Organization() *models.Organization {
	return &models.Organization{
		Name:       "Acme Corporation",
		Slug:       "acme",
		Email:      strPtr("info@acme.com"),
		Phone:      strPtr("+1-555-0100"),
		Address:    strPtr("123 Business Avenue, Suite 100, San Francisco"),
		TaxID:      strPtr("US-123456789"),
		Currency:   "USD",
		FiscalYear: 2024,
		IsActive:   true,
	}
}

// SystemRoles returns the seven system roles in creation order
func SystemRoles() []RoleSpec {
	all := auth.AllPermissions()

	var reads []auth.Permission
	for _, p := range all {
		if _, action, _, err := p.Parts(); err == nil && action == "read" {
			reads = append(reads, p)
		}
	}

	return []RoleSpec{
		{Code: auth.SuperAdminRole, Name: "Super Admin", Description: "Unrestricted access", Permissions: all},
		{Code: "ADMIN", Name: "Administrator", Description: "Manages the organization", Permissions: all},
		{Code: "ACCOUNTANT", Name: "Accountant", Description: "General ledger, invoicing and payments", Permissions: []auth.Permission{
			auth.PermAccountsRead, auth.PermAccountsCreate,
			auth.PermJournalEntriesRead, auth.PermJournalEntriesWrite,
			auth.PermInvoicesRead, auth.PermInvoicesCreate,
			auth.PermPaymentsRead, auth.PermPaymentsCreate,
			auth.PermReportsRead, auth.PermVendorsRead,
			auth.PermOrganizationRead,
		}},
		{Code: "SALES_MANAGER", Name: "Sales Manager", Description: "Customers and sales invoices", Permissions: []auth.Permission{
			auth.PermCustomersRead, auth.PermCustomersCreate,
			auth.PermInvoicesRead, auth.PermInvoicesCreate,
			auth.PermPaymentsRead, auth.PermProductsRead,
			auth.PermStockLevelsRead, auth.PermReportsRead,
			auth.PermOrganizationRead,
		}},
		{Code: "INVENTORY_MANAGER", Name: "Inventory Manager", Description: "Products, warehouses and stock", Permissions: []auth.Permission{
			auth.PermProductsRead, auth.PermProductsCreate,
			auth.PermWarehousesRead, auth.PermStockLevelsRead,
			auth.PermVendorsRead, auth.PermOrganizationRead,
		}},
		{Code: "HR_MANAGER", Name: "HR Manager", Description: "Employee records", Permissions: []auth.Permission{
			auth.PermEmployeesRead, auth.PermEmployeesCreate,
			auth.PermOrganizationRead,
		}},
		{Code: "VIEWER", Name: "Viewer", Description: "Read-only access", Permissions: reads},
	}
}

// Users returns the seeded users
func Users() []UserSpec {
	return []UserSpec{
		{Email: "admin@acme.com", FirstName: "John", LastName: "Admin", Role: auth.SuperAdminRole},
		{Email: "accountant@acme.com", FirstName: "Sarah", LastName: "Accountant", Role: "ACCOUNTANT"},
		{Email: "sales@acme.com", FirstName: "Mike", LastName: "Sales", Role: "SALES_MANAGER"},
		{Email: "inventory@acme.com", FirstName: "Lisa", LastName: "Inventory", Role: "INVENTORY_MANAGER"},
		{Email: "hr@acme.com", FirstName: "David", LastName: "HR", Role: "HR_MANAGER"},
	}
}

// Run seeds the demo tenant
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	want := Organization()
	org, err := s.orgs.GetBySlug(ctx, want.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to look up organization %q: %w", want.Slug, err)
	}
	if org == nil {
		if err := s.orgs.Create(ctx, want); err != nil {
			return nil, fmt.Errorf("failed to create organization %q: %w", want.Slug, err)
		}
		org = want
		res.OrganizationCreated = true
		slog.Info("seed: created organization", "slug", org.Slug, "id", org.ID)
	}
	res.OrganizationID = org.ID

	roleIDs := make(map[string]string)
	for _, spec := range SystemRoles() {
		id, created, err := s.ensureRole(ctx, org.ID, spec)
		if err != nil {
			return nil, err
		}
		roleIDs[spec.Code] = id
		if created {
			res.RolesCreated++
		}
	}

	for _, spec := range Users() {
		created, err := s.ensureUser(ctx, org.ID, spec, roleIDs[spec.Role])
		if err != nil {
			return nil, err
		}
		if created {
			res.UsersCreated++
		}
	}

	slog.Info("seed: complete",
		"organization_created", res.OrganizationCreated,
		"roles_created", res.RolesCreated,
		"users_created", res.UsersCreated)
	return res, nil
}

func (s *Seeder) ensureRole(ctx context.Context, orgID string, spec RoleSpec) (string, bool, error) {
	role, err := s.roles.GetByCode(ctx, orgID, spec.Code)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up role %s: %w", spec.Code, err)
	}

	created := false
	if role == nil {
		role = &models.Role{
			OrgID:       orgID,
			Name:        spec.Name,
			Code:        spec.Code,
			Description: strPtr(spec.Description),
			IsSystem:    true,
		}
		if err := s.roles.Create(ctx, role); err != nil {
			return "", false, fmt.Errorf("failed to create role %s: %w", spec.Code, err)
		}
		created = true
	}

	// Grants are upserts, so existing roles pick up catalogue additions.
	for _, p := range spec.Permissions {
		module, action, resource, err := p.Parts()
		if err != nil {
			return "", false, err
		}
		permID, err := s.roles.EnsurePermission(ctx, module, action, resource)
		if err != nil {
			return "", false, fmt.Errorf("failed to ensure permission %s: %w", p, err)
		}
		if err := s.roles.GrantPermission(ctx, role.ID, permID); err != nil {
			return "", false, fmt.Errorf("failed to grant %s to %s: %w", p, spec.Code, err)
		}
	}
	return role.ID, created, nil
}

func (s *Seeder) ensureUser(ctx context.Context, orgID string, spec UserSpec, roleID string) (bool, error) {
	email := strings.ToLower(spec.Email)
	user, err := s.users.GetByEmail(ctx, orgID, email)
	if err != nil {
		return false, fmt.Errorf("failed to look up user %s: %w", email, err)
	}

	created := false
	if user == nil {
		hash, err := s.hasher.Hash(s.password)
		if err != nil {
			return false, fmt.Errorf("failed to hash password for %s: %w", email, err)
		}
		user = &models.User{
			OrgID:        orgID,
			Email:        email,
			PasswordHash: hash,
			FirstName:    spec.FirstName,
			LastName:     spec.LastName,
			IsActive:     true,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return false, fmt.Errorf("failed to create user %s: %w", email, err)
		}
		created = true
	}

	if roleID != "" {
		if err := s.roles.AssignToUser(ctx, user.ID, roleID); err != nil {
			return false, fmt.Errorf("failed to assign %s to %s: %w", spec.Role, email, err)
		}
	}
	return created, nil
}

func strPtr(s string) *string { return &s }
