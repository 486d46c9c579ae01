// organization_repository.go implements OrganizationRepository, providing tenant lookups
// and the settings update exposed by the organization endpoint.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// OrganizationRepository handles organization database operations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, slug, email, phone, address, tax_id, currency, fiscal_year, is_active, created_at, updated_at`

// Create creates a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now().UTC()
	org.UpdatedAt = org.CreatedAt

	query := r.db.Rebind(`
		INSERT INTO organizations (` + organizationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		org.ID, org.Name, org.Slug, org.Email, org.Phone, org.Address, org.TaxID,
		org.Currency, org.FiscalYear, org.IsActive, org.CreatedAt, org.UpdatedAt,
	)
	return err
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id)
}

// GetBySlug retrieves an organization by slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug = ?`, slug)
}

func (r *OrganizationRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Organization, error) {
	var org models.Organization
	err := r.db.GetContext(ctx, &org, r.db.Rebind(query), arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Update writes the editable settings of an organization. Slug, fiscal year and
// the active flag are not changed here.
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		UPDATE organizations
		SET name = ?, email = ?, phone = ?, address = ?, tax_id = ?, currency = ?, updated_at = ?
		WHERE id = ?
	`)

	_, err := r.db.ExecContext(ctx, query,
		org.Name, org.Email, org.Phone, org.Address, org.TaxID, org.Currency, org.UpdatedAt, org.ID,
	)
	return err
}
