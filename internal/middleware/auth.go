// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// The login rate limit runs before any credential check so brute-force attempts
// are rejected before hashing or DB work. Auth populates the UserSession; RBAC
// reads from it. Audit logging runs last so only authorized mutations are
// recorded as successful actions.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YASSERRMD/nexusERP/internal/auth"
)

// Context keys set by the auth middleware.
const (
	UserSessionKey    = "user_session"
	UserIDKey         = "user_id"
	OrganizationIDKey = "organization_id"
	AuthMethodKey     = "auth_method"
)

// DefaultSessionCookie is the cookie carrying the session token.
const DefaultSessionCookie = "session_token"

// SessionValidator resolves a session token to its principal.
// *auth.Service satisfies it.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*auth.UserSession, error)
}

// SessionToken returns the request's session token: the session cookie when
// present, otherwise an "Authorization: Bearer" header. Empty when neither is set.
func SessionToken(c *gin.Context, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return ""
	}
	return token
}

// SessionAuthMiddleware requires a valid session. Requests without one are
// rejected with 401 before reaching the handler; a failing session store
// yields 500.
func SessionAuthMiddleware(validator SessionValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		session, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			slog.Error("session validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		setSession(c, session)
		c.Next()
	}
}

// OptionalSessionAuthMiddleware attaches the session when one is valid and
// continues regardless.
func OptionalSessionAuthMiddleware(validator SessionValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, cookieName)
		if token == "" {
			c.Next()
			return
		}

		session, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			slog.Warn("optional session validation failed", "error", err)
		}
		if session != nil {
			setSession(c, session)
		}
		c.Next()
	}
}

func setSession(c *gin.Context, session *auth.UserSession) {
	c.Set(UserSessionKey, session)
	c.Set(UserIDKey, session.ID)
	c.Set(OrganizationIDKey, session.OrgID)
	c.Set(AuthMethodKey, "session")
}

// CurrentSession returns the UserSession attached by the auth middleware.
func CurrentSession(c *gin.Context) (*auth.UserSession, bool) {
	v, exists := c.Get(UserSessionKey)
	if !exists {
		return nil, false
	}
	session, ok := v.(*auth.UserSession)
	return session, ok && session != nil
}
