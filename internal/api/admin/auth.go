// auth.go implements HTTP handlers for password login, logout and the current-session lookup.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/YASSERRMD/nexusERP/internal/auth"
	"github.com/YASSERRMD/nexusERP/internal/config"
	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/middleware"
)

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	service      *auth.Service
	audit        middleware.AuditWriter
	cookieName   string
	cookieSecure bool
}

// NewAuthHandlers creates a new AuthHandlers instance. auditWriter may be nil.
func NewAuthHandlers(cfg *config.SessionConfig, service *auth.Service, auditWriter middleware.AuditWriter) *AuthHandlers {
	h := &AuthHandlers{
		service:    service,
		audit:      auditWriter,
		cookieName: middleware.DefaultSessionCookie,
	}
	if cfg != nil {
		h.cookieSecure = cfg.CookieSecure
		if cfg.CookieName != "" {
			h.cookieName = cfg.CookieName
		}
	}
	return h
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgSlug  string `json:"orgSlug,omitempty"`
}

// @Summary      Log in
// @Description  Verifies email and password and starts a session. The token is returned in the body and set as an HttpOnly cookie.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "success: true, token, user: auth.UserSession"
// @Failure      400  {object}  map[string]interface{}  "Email and password are required"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      409  {object}  map[string]interface{}  "Organization required"
// @Failure      429  {object}  map[string]interface{}  "Too many login attempts"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates a user and issues a session cookie
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
			return
		}

		result, err := h.service.Login(c.Request.Context(), auth.LoginRequest{
			Email:     req.Email,
			Password:  req.Password,
			OrgSlug:   req.OrgSlug,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			slog.Warn("login failed", "email", req.Email, "ip", c.ClientIP())
			h.record(c, "auth.login_failed", nil, map[string]interface{}{
				"email":  strings.ToLower(strings.TrimSpace(req.Email)),
				"reason": "invalid_credentials",
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		case errors.Is(err, auth.ErrOrganizationRequired):
			c.JSON(http.StatusConflict, gin.H{"error": "Organization required"})
			return
		case err != nil:
			slog.Error("login error", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		h.setSessionCookie(c, result.Token)
		h.record(c, "auth.login", result.User, nil)

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"token":   result.Token,
			"user":    result.User,
		})
	}
}

// @Summary      Log out
// @Description  Deletes the current session, if any, and clears the session cookie. Always succeeds.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success: true"
// @Router       /api/v1/auth/logout [post]
// LogoutHandler ends the current session
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.SessionToken(c, h.cookieName)
		if err := h.service.Logout(c.Request.Context(), token); err != nil {
			slog.Error("logout error", "error", err)
		}

		session, _ := middleware.CurrentSession(c)
		if session != nil {
			h.record(c, "auth.logout", session, nil)
		}

		h.clearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// @Summary      Current user
// @Description  Returns the authenticated user's session: identity, role codes and permission strings.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user: auth.UserSession"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the current user session
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": session})
	}
}

func (h *AuthHandlers) setSessionCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.service.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) record(c *gin.Context, action string, session *auth.UserSession, metadata map[string]interface{}) {
	entry := &models.AuditLog{
		Action:    action,
		Metadata:  metadata,
		IPAddress: optionalString(c.ClientIP()),
	}
	resource := "session"
	entry.ResourceType = &resource
	if session != nil {
		entry.UserID = &session.ID
		entry.OrgID = &session.OrgID
	}
	middleware.RecordAudit(h.audit, entry)
}
