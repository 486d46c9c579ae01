package auth

import (
	"sort"
	"testing"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

func role(code string, perms ...string) models.RoleWithPermissions {
	r := models.RoleWithPermissions{Role: models.Role{Code: code}}
	for _, p := range perms {
		module, action, resource, err := Permission(p).Parts()
		if err != nil {
			panic(err)
		}
		r.Permissions = append(r.Permissions, models.Permission{Module: module, Action: action, Resource: resource})
	}
	return r
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	a, b = sorted(a), sorted(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// ResolvePermissions
// ---------------------------------------------------------------------------

func TestResolvePermissions(t *testing.T) {
	t.Run("no roles", func(t *testing.T) {
		codes, perms := ResolvePermissions(nil)
		if len(codes) != 0 || len(perms) != 0 {
			t.Errorf("ResolvePermissions(nil) = %v, %v; want empty", codes, perms)
		}
	})

	t.Run("union deduplicates across roles", func(t *testing.T) {
		codes, perms := ResolvePermissions([]models.RoleWithPermissions{
			role("R1", "a:b:c"),
			role("R2", "a:b:c", "x:y:z"),
		})
		if !equalSets(codes, []string{"R1", "R2"}) {
			t.Errorf("codes = %v", codes)
		}
		if !equalSets(perms, []string{"a:b:c", "x:y:z"}) {
			t.Errorf("permissions = %v, want exactly a:b:c and x:y:z", perms)
		}
	})

	t.Run("duplicate role codes collapse", func(t *testing.T) {
		codes, _ := ResolvePermissions([]models.RoleWithPermissions{role("VIEWER"), role("VIEWER")})
		if len(codes) != 1 {
			t.Errorf("codes = %v, want one VIEWER", codes)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		in := []models.RoleWithPermissions{role("A", "m:r:x", "m:r:y"), role("B", "m:r:y", "m:r:z")}
		_, first := ResolvePermissions(in)
		for i := 0; i < 10; i++ {
			_, again := ResolvePermissions(in)
			for j := range first {
				if first[j] != again[j] {
					t.Fatalf("run %d: %v != %v", i, again, first)
				}
			}
		}
	})

	t.Run("role without permissions contributes its code", func(t *testing.T) {
		codes, perms := ResolvePermissions([]models.RoleWithPermissions{role("SUPER_ADMIN")})
		if !equalSets(codes, []string{"SUPER_ADMIN"}) || len(perms) != 0 {
			t.Errorf("got %v / %v", codes, perms)
		}
	})
}

// ---------------------------------------------------------------------------
// HasPermission and friends
// ---------------------------------------------------------------------------

func TestHasPermission(t *testing.T) {
	accountant := &UserSession{
		Roles:       []string{"ACCOUNTANT"},
		Permissions: []string{"accounting:read:invoices", "accounting:create:invoices"},
	}

	tests := []struct {
		name     string
		s        *UserSession
		module   string
		action   string
		resource string
		want     bool
	}{
		{"exact match", accountant, "accounting", "read", "invoices", true},
		{"different action", accountant, "accounting", "delete", "invoices", false},
		{"case sensitive", accountant, "Accounting", "read", "invoices", false},
		{"no wildcard", accountant, "accounting", "*", "invoices", false},
		{"nil session", nil, "accounting", "read", "invoices", false},
		{"no roles", &UserSession{}, "accounting", "read", "invoices", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.s, tt.module, tt.action, tt.resource); got != tt.want {
				t.Errorf("HasPermission(%s:%s:%s) = %v, want %v", tt.module, tt.action, tt.resource, got, tt.want)
			}
		})
	}
}

func TestHasPermission_SuperAdminBypass(t *testing.T) {
	s := &UserSession{Roles: []string{"VIEWER", SuperAdminRole}}
	tuples := [][3]string{
		{"accounting", "delete", "invoices"},
		{"anything", "at", "all"},
		{"", "", ""},
	}
	for _, tp := range tuples {
		if !HasPermission(s, tp[0], tp[1], tp[2]) {
			t.Errorf("super admin denied %v", tp)
		}
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	s := &UserSession{Permissions: []string{string(PermOrganizationRead), string(PermRolesRead)}}

	if !HasAnyPermission(s, []Permission{PermOrganizationUpdate, PermRolesRead}) {
		t.Error("HasAnyPermission should be true when one permission is held")
	}
	if HasAnyPermission(s, []Permission{PermOrganizationUpdate}) {
		t.Error("HasAnyPermission should be false when none are held")
	}
	if !HasAllPermissions(s, []Permission{PermOrganizationRead, PermRolesRead}) {
		t.Error("HasAllPermissions should be true when all are held")
	}
	if HasAllPermissions(s, []Permission{PermOrganizationRead, PermOrganizationUpdate}) {
		t.Error("HasAllPermissions should be false when one is missing")
	}
	if s.Has(Permission("malformed")) {
		t.Error("malformed permission should never match")
	}
}

func TestAllPermissions_WellFormedAndUnique(t *testing.T) {
	seen := make(map[Permission]bool)
	for _, p := range AllPermissions() {
		if _, _, _, err := p.Parts(); err != nil {
			t.Errorf("catalogue entry %q: %v", p, err)
		}
		if seen[p] {
			t.Errorf("duplicate catalogue entry %q", p)
		}
		seen[p] = true
	}
}

func TestNewUserSession(t *testing.T) {
	u := &models.User{ID: "u1", OrgID: "o1", Email: "a@b.c", FirstName: "A", LastName: "B"}
	s := NewUserSession(u, []models.RoleWithPermissions{role("ADMIN", "settings:read:roles")})

	if s.ID != "u1" || s.OrgID != "o1" || s.Email != "a@b.c" || s.FirstName != "A" || s.LastName != "B" {
		t.Errorf("identity fields not copied: %+v", s)
	}
	if !s.HasRole("ADMIN") || s.IsSuperAdmin() {
		t.Errorf("roles = %v", s.Roles)
	}
	if !s.Has(PermRolesRead) {
		t.Error("expected settings:read:roles")
	}
}
