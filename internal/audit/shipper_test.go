package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/YASSERRMD/nexusERP/internal/audit"
	"github.com/YASSERRMD/nexusERP/internal/db/models"
)

type recordingStore struct {
	entries []*models.AuditLog
	err     error
}

func (s *recordingStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, log)
	return nil
}

type recordingShipper struct {
	shipped []*models.AuditLog
	err     error
	closed  bool
}

func (s *recordingShipper) Ship(_ context.Context, entry *models.AuditLog) error {
	s.shipped = append(s.shipped, entry)
	return s.err
}

func (s *recordingShipper) Close() error {
	s.closed = true
	return nil
}

// gatedStore blocks every write until release is closed.
type gatedStore struct {
	release chan struct{}
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (s *gatedStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, log)
	return nil
}

func (s *gatedStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func strPtr(s string) *string { return &s }

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

func TestWriter_PersistsThenShips(t *testing.T) {
	store := &recordingStore{}
	a, b := &recordingShipper{}, &recordingShipper{err: errors.New("down")}
	w := audit.NewWriter(store, a, b)

	entry := &models.AuditLog{Action: "auth.login", OrgID: strPtr("org-1")}
	if err := w.CreateAuditLog(context.Background(), entry); err != nil {
		t.Fatalf("CreateAuditLog() error = %v", err)
	}
	if len(store.entries) != 1 {
		t.Errorf("store entries = %d, want 1", len(store.entries))
	}
	if len(a.shipped) != 1 || len(b.shipped) != 1 {
		t.Errorf("shipped = %d/%d, want 1/1", len(a.shipped), len(b.shipped))
	}
}

func TestWriter_StoreErrorSkipsShipping(t *testing.T) {
	store := &recordingStore{err: errors.New("insert failed")}
	s := &recordingShipper{}
	w := audit.NewWriter(store, s)

	if err := w.CreateAuditLog(context.Background(), &models.AuditLog{Action: "x"}); err == nil {
		t.Fatal("CreateAuditLog() error = nil, want store error")
	}
	if len(s.shipped) != 0 {
		t.Errorf("shipped = %d, want 0", len(s.shipped))
	}
}

func TestWriter_Close(t *testing.T) {
	s := &recordingShipper{}
	w := audit.NewWriter(&recordingStore{}, s)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !s.closed {
		t.Error("shipper not closed")
	}
}

func TestWriter_CloseDrainsRecordedEntries(t *testing.T) {
	store := &gatedStore{release: make(chan struct{})}
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(audit.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper() error = %v", err)
	}
	w := audit.NewWriter(store, fs)

	for i := 0; i < 5; i++ {
		w.Record(&models.AuditLog{Action: "auth.login"})
	}

	closed := make(chan error, 1)
	go func() { closed <- w.Close() }()

	select {
	case <-closed:
		t.Fatal("Close() returned while writes were still pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return after writes completed")
	}

	if got := store.count(); got != 5 {
		t.Errorf("store entries = %d, want 5", got)
	}
	if got := len(readLines(t, path)); got != 5 {
		t.Errorf("shipped lines = %d, want 5", got)
	}
}

func TestWriter_RecordAfterCloseIsDropped(t *testing.T) {
	store := &gatedStore{release: make(chan struct{})}
	close(store.release)
	w := audit.NewWriter(store)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	w.Record(&models.AuditLog{Action: "auth.logout"})
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if got := store.count(); got != 0 {
		t.Errorf("store entries = %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestNewFileShipper_Errors(t *testing.T) {
	if _, err := audit.NewFileShipper(audit.FileConfig{}); err == nil {
		t.Error("empty path: error = nil")
	}
	bad := filepath.Join(t.TempDir(), "missing", "dir", "audit.log")
	if _, err := audit.NewFileShipper(audit.FileConfig{Path: bad}); err == nil {
		t.Error("missing directory: error = nil")
	}
}

func TestFileShipper_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(audit.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper() error = %v", err)
	}

	for _, action := range []string{"auth.login", "PUT /api/v1/organization"} {
		entry := &models.AuditLog{
			Action:   action,
			UserID:   strPtr("user-1"),
			OrgID:    strPtr("org-1"),
			Metadata: map[string]interface{}{"status_code": 200},
		}
		if err := fs.Ship(context.Background(), entry); err != nil {
			t.Fatalf("Ship() error = %v", err)
		}
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if got["action"] != "PUT /api/v1/organization" || got["orgId"] != "org-1" {
		t.Errorf("entry = %v", got)
	}
}

func TestFileShipper_ShipAfterClose(t *testing.T) {
	fs, err := audit.NewFileShipper(audit.FileConfig{Path: filepath.Join(t.TempDir(), "audit.log")})
	if err != nil {
		t.Fatalf("NewFileShipper() error = %v", err)
	}
	_ = fs.Close()
	if err := fs.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := fs.Ship(context.Background(), &models.AuditLog{Action: "x"}); err == nil {
		t.Error("Ship() after Close error = nil")
	}
}

func TestFileShipper_Rotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	fs, err := audit.NewFileShipper(audit.FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileShipper() error = %v", err)
	}
	defer fs.Close()

	// Each entry is ~300KB so every fourth write crosses the 1MB limit.
	big := strings.Repeat("x", 300*1024)
	for i := 0; i < 12; i++ {
		entry := &models.AuditLog{Action: "bulk", Metadata: map[string]interface{}{"pad": big}}
		if err := fs.Ship(context.Background(), entry); err != nil {
			t.Fatalf("Ship(%d) error = %v", i, err)
		}
	}

	for _, name := range []string{"audit.log", "audit.log.1", "audit.log.2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "audit.log.3")); !os.IsNotExist(err) {
		t.Errorf("audit.log.3 exists, want at most 2 backups")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 1024*1024 {
		t.Errorf("current file size = %d, want <= 1MB", info.Size())
	}
}
