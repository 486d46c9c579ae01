package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YASSERRMD/nexusERP/internal/config"
	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

// chanAuditWriter delivers every written entry on a channel.
type chanAuditWriter struct {
	entries chan *models.AuditLog
	err     error
}

func newChanAuditWriter() *chanAuditWriter {
	return &chanAuditWriter{entries: make(chan *models.AuditLog, 4)}
}

func (w *chanAuditWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	w.entries <- log
	return w.err
}

func (w *chanAuditWriter) next(t *testing.T) *models.AuditLog {
	t.Helper()
	select {
	case e := <-w.entries:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit entry")
		return nil
	}
}

func (w *chanAuditWriter) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-w.entries:
		t.Fatalf("unexpected audit entry: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

// recordingAsyncWriter captures entries handed to Record.
type recordingAsyncWriter struct {
	chanAuditWriter
	recorded []*models.AuditLog
}

func (w *recordingAsyncWriter) Record(entry *models.AuditLog) {
	w.recorded = append(w.recorded, entry)
}

func newAuditRouter(writer AuditWriter, cfg *config.AuditConfig, status int) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(func(c *gin.Context) {
		setSession(c, testSession())
		c.Next()
	})
	r.Use(AuditMiddleware(writer, cfg))
	handler := func(c *gin.Context) { c.Status(status) }
	r.PUT("/api/v1/organization", handler)
	r.GET("/api/v1/organization", handler)
	r.OPTIONS("/api/v1/organization", handler)
	return r
}

func serveAudit(r *gin.Engine, method string) {
	req := httptest.NewRequest(method, "/api/v1/organization", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
}

// ---------------------------------------------------------------------------
// AuditMiddleware
// ---------------------------------------------------------------------------

func TestAuditMiddleware_RecordsSuccessfulWrite(t *testing.T) {
	w := newChanAuditWriter()
	serveAudit(newAuditRouter(w, nil, http.StatusOK), http.MethodPut)

	e := w.next(t)
	if e.Action != "PUT /api/v1/organization" {
		t.Errorf("Action = %q", e.Action)
	}
	if e.UserID == nil || *e.UserID != "user-1" {
		t.Errorf("UserID = %v, want user-1", e.UserID)
	}
	if e.OrgID == nil || *e.OrgID != "org-1" {
		t.Errorf("OrgID = %v, want org-1", e.OrgID)
	}
	if e.ResourceType == nil || *e.ResourceType != "organization" {
		t.Errorf("ResourceType = %v, want organization", e.ResourceType)
	}
	if e.Metadata["status_code"] != http.StatusOK {
		t.Errorf("status_code = %v, want 200", e.Metadata["status_code"])
	}
	if e.Metadata["auth_method"] != "session" {
		t.Errorf("auth_method = %v, want session", e.Metadata["auth_method"])
	}
	if rid, _ := e.Metadata["request_id"].(string); rid == "" {
		t.Error("request_id missing from metadata")
	}
}

func TestAuditMiddleware_SkipsByDefault(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
	}{
		{"read", http.MethodGet, http.StatusOK},
		{"failed write", http.MethodPut, http.StatusForbidden},
		{"options", http.MethodOptions, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newChanAuditWriter()
			serveAudit(newAuditRouter(w, nil, tt.status), tt.method)
			w.none(t)
		})
	}
}

func TestAuditMiddleware_ConfigOptIns(t *testing.T) {
	t.Run("reads when enabled", func(t *testing.T) {
		w := newChanAuditWriter()
		cfg := &config.AuditConfig{Enabled: true, LogReadOperations: true}
		serveAudit(newAuditRouter(w, cfg, http.StatusOK), http.MethodGet)
		if e := w.next(t); e.Action != "GET /api/v1/organization" {
			t.Errorf("Action = %q", e.Action)
		}
	})

	t.Run("failures when enabled", func(t *testing.T) {
		w := newChanAuditWriter()
		cfg := &config.AuditConfig{Enabled: true, LogFailedRequests: true}
		serveAudit(newAuditRouter(w, cfg, http.StatusForbidden), http.MethodPut)
		if e := w.next(t); e.Metadata["status_code"] != http.StatusForbidden {
			t.Errorf("status_code = %v, want 403", e.Metadata["status_code"])
		}
	})

	t.Run("disabled records nothing", func(t *testing.T) {
		w := newChanAuditWriter()
		cfg := &config.AuditConfig{Enabled: false}
		serveAudit(newAuditRouter(w, cfg, http.StatusOK), http.MethodPut)
		w.none(t)
	})
}

func TestAuditMiddleware_WriterErrorDoesNotAffectResponse(t *testing.T) {
	w := newChanAuditWriter()
	w.err = errors.New("insert failed")
	r := newAuditRouter(w, nil, http.StatusOK)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/organization", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	w.next(t)
}

func TestAuditMiddleware_NilWriter(t *testing.T) {
	r := newAuditRouter(nil, nil, http.StatusOK)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/organization", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRecordAudit_PrefersAsyncWriter(t *testing.T) {
	w := &recordingAsyncWriter{chanAuditWriter: *newChanAuditWriter()}
	RecordAudit(w, &models.AuditLog{Action: "auth.login"})
	if len(w.recorded) != 1 || w.recorded[0].Action != "auth.login" {
		t.Fatalf("recorded = %+v, want the auth.login entry", w.recorded)
	}
	w.none(t)
}

func TestRecordAudit_PlainWriterRunsInBackground(t *testing.T) {
	w := newChanAuditWriter()
	RecordAudit(w, &models.AuditLog{Action: "auth.logout"})
	if e := w.next(t); e.Action != "auth.logout" {
		t.Errorf("action = %q, want auth.logout", e.Action)
	}
}

func TestResourceType(t *testing.T) {
	tests := map[string]string{
		"/api/v1/organization":  "organization",
		"/api/v1/roles":         "role",
		"/api/v1/auth/login":    "session",
		"/api/v1/audit-logs":    "audit_log",
		"/api/v1/unknown/thing": "",
		"/health":               "",
	}
	for path, want := range tests {
		if got := resourceType(path); got != want {
			t.Errorf("resourceType(%q) = %q, want %q", path, got, want)
		}
	}
}
