// Package middleware (rbac.go) implements permission-based authorization middleware.
//
// Permissions ("module:action:resource") are resolved from the user's roles on
// every session lookup rather than being cached in the session row, so a role
// change takes effect on the user's next request. SUPER_ADMIN bypasses every check.

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/YASSERRMD/nexusERP/internal/auth"
)

// RequirePermission checks if the authenticated user holds the permission
func RequirePermission(perm auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !session.Has(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"details": "Required permission: " + string(perm),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyPermission checks if the authenticated user holds at least one of the permissions
func RequireAnyPermission(perms ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !auth.HasAnyPermission(session, perms) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"details": "Required one of: " + joinPermissions(perms),
			})
			return
		}

		c.Next()
	}
}

// RequireAllPermissions checks if the authenticated user holds every permission
func RequireAllPermissions(perms ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !auth.HasAllPermissions(session, perms) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"details": "Required all of: " + joinPermissions(perms),
			})
			return
		}

		c.Next()
	}
}

// RequireRole checks if the authenticated user has the role code, or is a super admin
func RequireRole(code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !session.IsSuperAdmin() && !session.HasRole(code) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"details": "Required role: " + code,
			})
			return
		}

		c.Next()
	}
}

func joinPermissions(perms []auth.Permission) string {
	s := make([]string, len(perms))
	for i, p := range perms {
		s[i] = string(p)
	}
	return strings.Join(s, ", ")
}
