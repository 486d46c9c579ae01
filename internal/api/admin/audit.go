// audit.go implements the audit log listing endpoint and the helper handlers use to record entries.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/db/repositories"
	"github.com/YASSERRMD/nexusERP/internal/middleware"
)

// AuditHandlers handles audit log endpoints
type AuditHandlers struct {
	auditRepo *repositories.AuditRepository
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(db *sqlx.DB) *AuditHandlers {
	return &AuditHandlers{auditRepo: repositories.NewAuditRepository(db)}
}

// @Summary      List audit logs
// @Description  Returns the caller's organization audit trail, newest first. Requires settings:read:audit.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        page        query  int     false  "Page number (default 1)"
// @Param        per_page    query  int     false  "Items per page, max 100 (default 50)"
// @Param        action      query  string  false  "Filter by action"
// @Param        user_id     query  string  false  "Filter by user"
// @Param        start_date  query  string  false  "RFC3339 lower bound"
// @Param        end_date    query  string  false  "RFC3339 upper bound"
// @Success      200  {object}  map[string]interface{}  "audit_logs: []models.AuditLog, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Invalid date"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs [get]
// ListAuditLogsHandler lists the organization's audit logs with pagination
// GET /api/v1/audit-logs?page=1&per_page=50
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 50
		}

		filters := repositories.AuditFilters{}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("user_id"); v != "" {
			filters.UserID = &v
		}
		for param, dst := range map[string]**time.Time{
			"start_date": &filters.StartDate,
			"end_date":   &filters.EndDate,
		} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + ", expected RFC3339"})
				return
			}
			*dst = &t
		}

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), session.OrgID, filters, perPage, (page-1)*perPage)
		if err != nil {
			slog.Error("failed to list audit logs", "org_id", session.OrgID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if logs == nil {
			logs = []*models.AuditLog{}
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
