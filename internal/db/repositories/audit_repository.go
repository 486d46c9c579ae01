// audit_repository.go implements AuditRepository, providing database queries for writing
// and listing audit log entries scoped to one organization.
package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	UserID    *string
	Action    *string
	StartDate *time.Time
	EndDate   *time.Time
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now().UTC()

	var metadata *string
	if log.Metadata != nil {
		b, err := json.Marshal(log.Metadata)
		if err != nil {
			return err
		}
		s := string(b)
		metadata = &s
	}

	query := r.db.Rebind(`
		INSERT INTO audit_logs (id, user_id, org_id, action, resource_type, metadata, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.OrgID,
		log.Action,
		log.ResourceType,
		metadata,
		log.IPAddress,
		log.CreatedAt,
	)
	return err
}

// ListAuditLogs retrieves an organization's audit logs, newest first, with optional filters
func (r *AuditRepository) ListAuditLogs(ctx context.Context, orgID string, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where := ` WHERE org_id = ?`
	args := []interface{}{orgID}

	if filters.UserID != nil {
		where += ` AND user_id = ?`
		args = append(args, *filters.UserID)
	}
	if filters.Action != nil {
		where += ` AND action = ?`
		args = append(args, *filters.Action)
	}
	if filters.StartDate != nil {
		where += ` AND created_at >= ?`
		args = append(args, filters.StartDate.UTC())
	}
	if filters.EndDate != nil {
		where += ` AND created_at <= ?`
		args = append(args, filters.EndDate.UTC())
	}

	var total int
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM audit_logs`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, org_id, action, resource_type, metadata, ip_address, created_at FROM audit_logs` +
		where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log := &models.AuditLog{}
		var metadata *string

		if err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.OrgID,
			&log.Action,
			&log.ResourceType,
			&metadata,
			&log.IPAddress,
			&log.CreatedAt,
		); err != nil {
			return nil, 0, err
		}

		if metadata != nil && *metadata != "" {
			if err := json.Unmarshal([]byte(*metadata), &log.Metadata); err != nil {
				return nil, 0, err
			}
		}

		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}
