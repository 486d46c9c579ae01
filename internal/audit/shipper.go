// Package audit ships persisted audit entries to secondary destinations. The
// audit_logs table stays the source of truth for the API; shippers give
// operators an append-only copy that a log collector can tail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/safego"
)

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *models.AuditLog) error
	// Close cleans up any resources
	Close() error
}

// Store persists audit entries. *repositories.AuditRepository satisfies it.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Writer persists each entry to the store and then hands it to the shippers.
// Background writes started with Record are tracked and drained by Close.
type Writer struct {
	store    Store
	shippers []Shipper
	timeout  time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewWriter returns a Writer that persists to store and mirrors to shippers.
func NewWriter(store Store, shippers ...Shipper) *Writer {
	return &Writer{store: store, shippers: shippers, timeout: 5 * time.Second}
}

// CreateAuditLog persists log, then ships it. Entries the store rejects are
// not shipped. Shipping failures are logged and never returned.
func (w *Writer) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if err := w.store.CreateAuditLog(ctx, log); err != nil {
		return err
	}
	for _, s := range w.shippers {
		if err := s.Ship(ctx, log); err != nil {
			slog.Error("audit shipper error", "action", log.Action, "error", err)
		}
	}
	return nil
}

// Record writes entry in the background. Entries recorded after Close are
// dropped with a warning.
func (w *Writer) Record(entry *models.AuditLog) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		slog.Warn("audit writer closed, dropping entry", "action", entry.Action)
		return
	}
	w.inflight.Add(1)
	w.mu.Unlock()

	safego.Go("audit-write", func() {
		defer w.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.CreateAuditLog(ctx, entry); err != nil {
			slog.Error("failed to create audit log", "action", entry.Action, "error", err)
		}
	})
}

// Close stops accepting background writes, waits for the ones in flight and
// closes all shippers. Calling Close again is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.inflight.Wait()

	var lastErr error
	for _, s := range w.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	// Path is the log file path
	Path string
	// MaxSizeMB is the maximum file size before rotation (0 = never rotate)
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep
	MaxBackups int
}

// FileShipper appends audit entries to a file as JSON lines
type FileShipper struct {
	cfg  FileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the file at cfg.Path for appending
func NewFileShipper(cfg FileConfig) (*FileShipper, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	file, err := openAppend(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- operator-configured path
}

// Ship writes an entry to the file
func (fs *FileShipper) Ship(_ context.Context, entry *models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return fmt.Errorf("audit file shipper is closed")
	}

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size()+int64(len(data))+1 > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Error("failed to rotate audit log", "path", fs.cfg.Path, "error", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate renames path to path.1, shifting older backups up by one and
// dropping anything beyond MaxBackups.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	fs.file = nil

	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups))
		for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", fs.cfg.Path, i), fmt.Sprintf("%s.%d", fs.cfg.Path, i+1))
		}
		_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	} else {
		_ = os.Remove(fs.cfg.Path)
	}

	file, err := openAppend(fs.cfg.Path)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file. Further calls to Ship fail.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
