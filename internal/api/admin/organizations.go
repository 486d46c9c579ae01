// organizations.go implements handlers for reading and updating the caller's organization settings.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/db/repositories"
	"github.com/YASSERRMD/nexusERP/internal/middleware"
)

// OrganizationHandlers handles organization settings endpoints
type OrganizationHandlers struct {
	orgRepo *repositories.OrganizationRepository
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(db *sqlx.DB) *OrganizationHandlers {
	return &OrganizationHandlers{orgRepo: repositories.NewOrganizationRepository(db)}
}

// OrganizationResponse is the public shape of an organization. Optional
// contact fields are rendered as null rather than omitted.
type OrganizationResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Slug       string  `json:"slug"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Address    *string `json:"address"`
	TaxID      *string `json:"taxId"`
	Currency   string  `json:"currency"`
	FiscalYear int     `json:"fiscalYear"`
	IsActive   bool    `json:"isActive"`
}

func newOrganizationResponse(org *models.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:         org.ID,
		Name:       org.Name,
		Slug:       org.Slug,
		Email:      org.Email,
		Phone:      org.Phone,
		Address:    org.Address,
		TaxID:      org.TaxID,
		Currency:   org.Currency,
		FiscalYear: org.FiscalYear,
		IsActive:   org.IsActive,
	}
}

// UpdateOrganizationRequest is the body of PUT /api/v1/organization. Absent
// fields are left unchanged; an empty string clears an optional field.
type UpdateOrganizationRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
	TaxID    *string `json:"taxId"`
	Currency *string `json:"currency"`
}

// @Summary      Get organization
// @Description  Returns the organization of the authenticated user.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "organization: OrganizationResponse"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/organization [get]
// GetOrganizationHandler returns the caller's organization
// GET /api/v1/organization
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		org, err := h.orgRepo.GetByID(c.Request.Context(), session.OrgID)
		if err != nil {
			slog.Error("failed to load organization", "org_id", session.OrgID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"organization": newOrganizationResponse(org)})
	}
}

// @Summary      Update organization
// @Description  Updates name, contact details, tax id and currency of the caller's organization. Requires settings:update:organization.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdateOrganizationRequest  true  "Fields to change"
// @Success      200  {object}  map[string]interface{}  "organization: OrganizationResponse"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/organization [put]
// UpdateOrganizationHandler updates the caller's organization
// PUT /api/v1/organization
func (h *OrganizationHandlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var req UpdateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		ctx := c.Request.Context()
		org, err := h.orgRepo.GetByID(ctx, session.OrgID)
		if err != nil {
			slog.Error("failed to load organization", "org_id", session.OrgID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}

		req.apply(org)
		if err := h.orgRepo.Update(ctx, org); err != nil {
			slog.Error("failed to update organization", "org_id", session.OrgID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"organization": newOrganizationResponse(org)})
	}
}

func (r *UpdateOrganizationRequest) validate() string {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return "Name cannot be empty"
	}
	if r.Currency != nil {
		if !isCurrencyCode(strings.TrimSpace(*r.Currency)) {
			return "Currency must be a three-letter ISO 4217 code"
		}
	}
	if r.Email != nil && *r.Email != "" && !strings.Contains(*r.Email, "@") {
		return "Invalid email address"
	}
	return ""
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func (r *UpdateOrganizationRequest) apply(org *models.Organization) {
	if r.Name != nil {
		org.Name = strings.TrimSpace(*r.Name)
	}
	if r.Currency != nil {
		org.Currency = strings.TrimSpace(*r.Currency)
	}
	setOptional(&org.Email, r.Email)
	setOptional(&org.Phone, r.Phone)
	setOptional(&org.Address, r.Address)
	setOptional(&org.TaxID, r.TaxID)
}

// setOptional copies src into dst when present; an empty string clears dst.
func setOptional(dst **string, src *string) {
	if src == nil {
		return
	}
	*dst = optionalString(strings.TrimSpace(*src))
}
