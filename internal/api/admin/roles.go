// roles.go implements the read-only role catalogue endpoint for the caller's organization.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/db/repositories"
	"github.com/YASSERRMD/nexusERP/internal/middleware"
)

// RoleHandlers handles role endpoints
type RoleHandlers struct {
	roleRepo *repositories.RoleRepository
}

// NewRoleHandlers creates a new RoleHandlers instance
func NewRoleHandlers(db *sqlx.DB) *RoleHandlers {
	return &RoleHandlers{roleRepo: repositories.NewRoleRepository(db)}
}

// RoleResponse is a role with its permissions flattened to strings
type RoleResponse struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	IsSystem    bool     `json:"isSystem"`
	Permissions []string `json:"permissions"`
}

func newRoleResponse(r models.RoleWithPermissions) RoleResponse {
	perms := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, p.String())
	}
	return RoleResponse{
		ID:          r.ID,
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
	}
}

// @Summary      List roles
// @Description  Returns the roles of the caller's organization with their permission strings. Requires settings:read:roles.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "roles: []RoleResponse"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/roles [get]
// ListRolesHandler lists the organization's roles
// GET /api/v1/roles
func (h *RoleHandlers) ListRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		roles, err := h.roleRepo.ListWithPermissions(c.Request.Context(), session.OrgID)
		if err != nil {
			slog.Error("failed to list roles", "org_id", session.OrgID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		out := make([]RoleResponse, 0, len(roles))
		for _, r := range roles {
			out = append(out, newRoleResponse(r))
		}
		c.JSON(http.StatusOK, gin.H{"roles": out})
	}
}
