// Package repositories implements the data access layer (repository pattern) for the ERP.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly. Queries are written with '?' placeholders and rebound
// for the active driver, so the same repository serves PostgreSQL and SQLite.
package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, org_id, email, password_hash, first_name, last_name, is_active, last_login_at, created_at, updated_at`

// Create creates a new user. The email is stored trimmed and lower-cased.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	query := r.db.Rebind(`
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.OrgID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// GetByID retrieves a user by ID within an organization
func (r *UserRepository) GetByID(ctx context.Context, orgID, userID string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE org_id = ? AND id = ?`)

	var user models.User
	err := r.db.GetContext(ctx, &user, query, orgID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by email within an organization, active or not
func (r *UserRepository) GetByEmail(ctx context.Context, orgID, email string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE org_id = ? AND LOWER(email) = LOWER(?)`)

	var user models.User
	err := r.db.GetContext(ctx, &user, query, orgID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindActiveByEmail returns every active user with the email whose organization is
// active, each hydrated with roles and permissions. A non-empty orgSlug limits the
// search to that organization.
func (r *UserRepository) FindActiveByEmail(ctx context.Context, email, orgSlug string) ([]*models.UserWithRoles, error) {
	query := `
		SELECT u.id, u.org_id, u.email, u.password_hash, u.first_name, u.last_name, u.is_active,
		       u.last_login_at, u.created_at, u.updated_at, o.slug,
		       r.id, r.code, r.name,
		       p.id, p.module, p.action, p.resource
		FROM users u
		JOIN organizations o ON o.id = u.org_id
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id AND r.org_id = u.org_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE LOWER(u.email) = LOWER(?) AND u.is_active = TRUE AND o.is_active = TRUE`
	args := []interface{}{email}
	if orgSlug != "" {
		query += ` AND o.slug = ?`
		args = append(args, orgSlug)
	}
	query += ` ORDER BY u.org_id, r.code, p.module, p.action, p.resource`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.UserWithRoles
	folders := make(map[string]*roleFolder)
	for rows.Next() {
		var u models.User
		var slug string
		var rc roleColumns
		var pc permissionColumns
		if err := rows.Scan(
			&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive,
			&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &slug,
			&rc.ID, &rc.Code, &rc.Name,
			&pc.ID, &pc.Module, &pc.Action, &pc.Resource,
		); err != nil {
			return nil, err
		}

		f, ok := folders[u.ID]
		if !ok {
			f = &roleFolder{}
			folders[u.ID] = f
			users = append(users, &models.UserWithRoles{User: u, OrgSlug: slug})
		}
		f.add(rc, pc, nil)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, u := range users {
		u.Roles = folders[u.ID].roles
	}
	return users, nil
}

// UpdateLastLogin records the time of a successful login
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	query := r.db.Rebind(`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, query, at.UTC(), time.Now().UTC(), userID)
	return err
}
