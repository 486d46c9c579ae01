package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/YASSERRMD/nexusERP/internal/auth"
	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/middleware"
)

var errDB = errors.New("db error")

const testToken = "test-session-token"

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func getJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return out
}

// staticValidator accepts testToken and resolves it to session.
type staticValidator struct {
	session *auth.UserSession
}

func (v staticValidator) Validate(_ context.Context, token string) (*auth.UserSession, error) {
	if token == testToken {
		return v.session, nil
	}
	return nil, nil
}

// withSession authenticates every request carrying testToken as session.
func withSession(session *auth.UserSession) gin.HandlerFunc {
	return middleware.SessionAuthMiddleware(staticValidator{session: session}, middleware.DefaultSessionCookie)
}

func adminSession() *auth.UserSession {
	return &auth.UserSession{
		ID:          "user-1",
		OrgID:       "org-1",
		Email:       "admin@acme.com",
		FirstName:   "John",
		LastName:    "Admin",
		Roles:       []string{auth.SuperAdminRole},
		Permissions: []string{},
	}
}

// chanAuditWriter delivers every written entry on a channel.
type chanAuditWriter struct {
	entries chan *models.AuditLog
}

func newChanAuditWriter() *chanAuditWriter {
	return &chanAuditWriter{entries: make(chan *models.AuditLog, 8)}
}

func (w *chanAuditWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	w.entries <- log
	return nil
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
