// session_repository.go implements SessionRepository, the persistent session store. A token
// lookup returns the session hydrated with its user, roles and permissions from one statement.
package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// SessionRepository handles session database operations
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session. The caller supplies ID, token and expiry.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	query := r.db.Rebind(`
		INSERT INTO sessions (id, token, user_id, org_id, expires_at, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Token,
		session.UserID,
		session.OrgID,
		session.ExpiresAt.UTC(),
		session.IPAddress,
		session.UserAgent,
		session.CreatedAt.UTC(),
	)
	return err
}

// FindByToken returns the session for token with its user, roles and permissions,
// or nil when no session exists. The user join also requires the session's
// organization to match the user's, so a session pointing across tenants reads
// as absent. Expiry is not checked here.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.SessionWithUser, error) {
	query := r.db.Rebind(`
		SELECT s.id, s.token, s.user_id, s.org_id, s.expires_at, s.ip_address, s.user_agent, s.created_at,
		       u.id, u.org_id, u.email, u.password_hash, u.first_name, u.last_name, u.is_active,
		       u.last_login_at, u.created_at, u.updated_at,
		       r.id, r.code, r.name,
		       p.id, p.module, p.action, p.resource
		FROM sessions s
		JOIN users u ON u.id = s.user_id AND u.org_id = s.org_id
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id AND r.org_id = u.org_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE s.token = ?
		ORDER BY r.code, p.module, p.action, p.resource
	`)

	rows, err := r.db.QueryContext(ctx, query, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result *models.SessionWithUser
	var folder roleFolder
	for rows.Next() {
		var s models.Session
		var u models.User
		var rc roleColumns
		var pc permissionColumns
		if err := rows.Scan(
			&s.ID, &s.Token, &s.UserID, &s.OrgID, &s.ExpiresAt, &s.IPAddress, &s.UserAgent, &s.CreatedAt,
			&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive,
			&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
			&rc.ID, &rc.Code, &rc.Name,
			&pc.ID, &pc.Module, &pc.Action, &pc.Resource,
		); err != nil {
			return nil, err
		}
		if result == nil {
			result = &models.SessionWithUser{Session: s, User: u}
		}
		folder.add(rc, pc, nil)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if result != nil {
		result.Roles = folder.roles
	}
	return result, nil
}

// Delete removes the session with token. Deleting an unknown token is not an error.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	query := r.db.Rebind(`DELETE FROM sessions WHERE token = ?`)
	_, err := r.db.ExecContext(ctx, query, token)
	return err
}

// DeleteByUser removes every session of a user and returns how many were deleted.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	query := r.db.Rebind(`DELETE FROM sessions WHERE user_id = ?`)
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`)
	res, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
