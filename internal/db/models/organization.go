// Package models - organization.go defines the Organization model, the tenant boundary
// every other ERP entity and every session belongs to.
package models

import "time"

// Organization represents a tenant. Slug is the URL-safe, globally unique handle
// used at login to pick a tenant when an email exists in several organizations.
type Organization struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Slug       string    `db:"slug" json:"slug"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	Address    *string   `db:"address" json:"address,omitempty"`
	TaxID      *string   `db:"tax_id" json:"taxId,omitempty"`
	Currency   string    `db:"currency" json:"currency"`
	FiscalYear int       `db:"fiscal_year" json:"fiscalYear"`
	IsActive   bool      `db:"is_active" json:"isActive"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}
