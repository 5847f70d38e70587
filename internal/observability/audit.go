package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventIndex        AuditEventType = "index"
	AuditEventBatchIndex   AuditEventType = "batch_index"
	AuditEventRemove       AuditEventType = "remove"
	AuditEventSearch       AuditEventType = "search"
	AuditEventClear        AuditEventType = "clear"
	AuditEventReindexStart AuditEventType = "reindex_start"
	AuditEventReindexEnd   AuditEventType = "reindex_end"
)

// AuditEvent is a single audit log record, written as one JSON line.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	Type       AuditEventType `json:"type"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	VectorID   string         `json:"vector_id,omitempty"`
	Backend    string         `json:"backend,omitempty"`
	Count      int            `json:"count,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

// AuditLogger appends audit events to a JSONL file.
// A nil AuditLogger is safe to use; all writes become no-ops.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens (or creates) the audit log file for appending.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{file: f}, nil
}

// Log writes a single event. The timestamp is set if zero.
func (a *AuditLogger) Log(event AuditEvent) error {
	if a == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (a *AuditLogger) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
