// rbac_repository.go implements RoleRepository, providing database queries for roles, the
// permission catalogue and the role→permission join, plus the row folding shared by every
// query that hydrates roles with their permissions.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// RoleRepository handles role and permission database operations
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new RoleRepository
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// ============================================================================
// Roles
// ============================================================================

// Create inserts a role. ID and timestamps are assigned here.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	role.ID = uuid.New().String()
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt

	query := r.db.Rebind(`
		INSERT INTO roles (id, org_id, name, code, description, is_system, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		role.ID, role.OrgID, role.Name, role.Code, role.Description, role.IsSystem, role.CreatedAt, role.UpdatedAt,
	)
	return err
}

// GetByCode retrieves a role by its code within an organization
func (r *RoleRepository) GetByCode(ctx context.Context, orgID, code string) (*models.Role, error) {
	query := r.db.Rebind(`
		SELECT id, org_id, name, code, description, is_system, created_at, updated_at
		FROM roles
		WHERE org_id = ? AND code = ?
	`)

	var role models.Role
	err := r.db.GetContext(ctx, &role, query, orgID, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListWithPermissions returns every role of an organization with its permissions,
// read in one statement and ordered by role code.
func (r *RoleRepository) ListWithPermissions(ctx context.Context, orgID string) ([]models.RoleWithPermissions, error) {
	query := r.db.Rebind(`
		SELECT r.id, r.org_id, r.name, r.code, r.description, r.is_system, r.created_at, r.updated_at,
		       p.id, p.module, p.action, p.resource
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE r.org_id = ?
		ORDER BY r.code, p.module, p.action, p.resource
	`)

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folder roleFolder
	for rows.Next() {
		var role models.Role
		var perm permissionColumns
		if err := rows.Scan(
			&role.ID, &role.OrgID, &role.Name, &role.Code, &role.Description, &role.IsSystem,
			&role.CreatedAt, &role.UpdatedAt,
			&perm.ID, &perm.Module, &perm.Action, &perm.Resource,
		); err != nil {
			return nil, err
		}
		folder.add(roleColumns{
			ID: sql.NullString{String: role.ID, Valid: true}, Code: sql.NullString{String: role.Code, Valid: true},
			Name: sql.NullString{String: role.Name, Valid: true},
		}, perm, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return folder.roles, nil
}

// AssignToUser grants a role to a user. Granting twice is a no-op.
func (r *RoleRepository) AssignToUser(ctx context.Context, userID, roleID string) error {
	query := r.db.Rebind(`
		INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`)
	_, err := r.db.ExecContext(ctx, query, userID, roleID)
	return err
}

// ============================================================================
// Permissions
// ============================================================================

// EnsurePermission returns the id of the (module, action, resource) permission,
// creating it when absent.
func (r *RoleRepository) EnsurePermission(ctx context.Context, module, action, resource string) (string, error) {
	insert := r.db.Rebind(`
		INSERT INTO permissions (id, module, action, resource) VALUES (?, ?, ?, ?)
		ON CONFLICT (module, action, resource) DO NOTHING
	`)
	if _, err := r.db.ExecContext(ctx, insert, uuid.New().String(), module, action, resource); err != nil {
		return "", err
	}

	var id string
	sel := r.db.Rebind(`SELECT id FROM permissions WHERE module = ? AND action = ? AND resource = ?`)
	if err := r.db.QueryRowContext(ctx, sel, module, action, resource).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// GrantPermission attaches a permission to a role. Granting twice is a no-op.
func (r *RoleRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	query := r.db.Rebind(`
		INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`)
	_, err := r.db.ExecContext(ctx, query, roleID, permissionID)
	return err
}

// ============================================================================
// Row folding
// ============================================================================

// roleColumns and permissionColumns hold the nullable LEFT JOIN side of a
// user→roles→permissions row.
type roleColumns struct {
	ID   sql.NullString
	Code sql.NullString
	Name sql.NullString
}

type permissionColumns struct {
	ID       sql.NullString
	Module   sql.NullString
	Action   sql.NullString
	Resource sql.NullString
}

// roleFolder collapses joined rows into roles with permission lists, keeping
// first-seen order.
type roleFolder struct {
	roles []models.RoleWithPermissions
	index map[string]int
}

// add folds one row. full, when non-nil, supplies every role column.
func (f *roleFolder) add(rc roleColumns, pc permissionColumns, full *models.Role) {
	if !rc.ID.Valid {
		return
	}
	if f.index == nil {
		f.index = make(map[string]int)
	}

	i, ok := f.index[rc.ID.String]
	if !ok {
		role := models.Role{ID: rc.ID.String, Code: rc.Code.String, Name: rc.Name.String}
		if full != nil {
			role = *full
		}
		f.roles = append(f.roles, models.RoleWithPermissions{Role: role})
		i = len(f.roles) - 1
		f.index[rc.ID.String] = i
	}

	if pc.ID.Valid {
		f.roles[i].Permissions = append(f.roles[i].Permissions, models.Permission{
			ID:       pc.ID.String,
			Module:   pc.Module.String,
			Action:   pc.Action.String,
			Resource: pc.Resource.String,
		})
	}
}
