package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/YASSERRMD/nexusERP/internal/auth"
)

// newRBACRouter builds a router that injects session (when non-nil) and then
// applies guard before an OK handler.
func newRBACRouter(session *auth.UserSession, guard gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if session != nil {
			setSession(c, session)
		}
		c.Next()
	})
	r.Use(guard)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serveRBAC(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func superAdminSession() *auth.UserSession {
	s := testSession()
	s.Roles = []string{auth.SuperAdminRole}
	s.Permissions = nil
	return s
}

// ---------------------------------------------------------------------------
// RequirePermission
// ---------------------------------------------------------------------------

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name    string
		session *auth.UserSession
		perm    auth.Permission
		want    int
	}{
		{"no session", nil, auth.PermAccountsRead, http.StatusUnauthorized},
		{"granted", testSession(), auth.PermAccountsRead, http.StatusOK},
		{"missing", testSession(), auth.PermOrganizationUpdate, http.StatusForbidden},
		{"super admin bypass", superAdminSession(), auth.PermOrganizationUpdate, http.StatusOK},
		{"malformed permission", testSession(), auth.Permission("accounting:read"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRBAC(newRBACRouter(tt.session, RequirePermission(tt.perm)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequirePermission_ForbiddenNamesPermission(t *testing.T) {
	w := serveRBAC(newRBACRouter(testSession(), RequirePermission(auth.PermOrganizationUpdate)))
	if !strings.Contains(w.Body.String(), string(auth.PermOrganizationUpdate)) {
		t.Errorf("body %s does not name the required permission", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// RequireAnyPermission / RequireAllPermissions
// ---------------------------------------------------------------------------

func TestRequireAnyPermission(t *testing.T) {
	tests := []struct {
		name  string
		perms []auth.Permission
		want  int
	}{
		{"one of two held", []auth.Permission{auth.PermInvoicesCreate, auth.PermAccountsRead}, http.StatusOK},
		{"none held", []auth.Permission{auth.PermInvoicesCreate, auth.PermEmployeesRead}, http.StatusForbidden},
		{"empty list", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRBAC(newRBACRouter(testSession(), RequireAnyPermission(tt.perms...)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireAllPermissions(t *testing.T) {
	tests := []struct {
		name  string
		perms []auth.Permission
		want  int
	}{
		{"all held", []auth.Permission{auth.PermAccountsRead, auth.PermOrganizationRead}, http.StatusOK},
		{"one missing", []auth.Permission{auth.PermAccountsRead, auth.PermRolesRead}, http.StatusForbidden},
		{"empty list", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRBAC(newRBACRouter(testSession(), RequireAllPermissions(tt.perms...)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	t.Run("no session", func(t *testing.T) {
		w := serveRBAC(newRBACRouter(nil, RequireAllPermissions(auth.PermAccountsRead)))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// RequireRole
// ---------------------------------------------------------------------------

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		session *auth.UserSession
		want    int
	}{
		{"has role", testSession(), http.StatusOK},
		{"super admin", superAdminSession(), http.StatusOK},
		{"no session", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRBAC(newRBACRouter(tt.session, RequireRole("ACCOUNTANT")))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	t.Run("other role", func(t *testing.T) {
		w := serveRBAC(newRBACRouter(testSession(), RequireRole("HR_MANAGER")))
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})
}
