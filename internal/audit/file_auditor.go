// Package audit records every statement agents send to the database, as
// NDJSON lines or as structured log records.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/querylens/querylens/internal/core/port"
)

// record is one NDJSON line.
type record struct {
	Timestamp    string  `json:"ts"`
	Tool         string  `json:"tool,omitempty"`
	Session      string  `json:"session,omitempty"`
	DBSystem     string  `json:"db_system,omitempty"`
	Operation    string  `json:"operation"`
	SQL          string  `json:"sql"`
	Rejected     bool    `json:"rejected"`
	RowsReturned int     `json:"rows_returned"`
	PlanFindings int     `json:"plan_findings,omitempty"`
	DurationMS   int64   `json:"duration_ms"`
	Error        *string `json:"error"`
}

func toRecord(ts time.Time, e port.AuditEntry) record {
	r := record{
		Timestamp:    ts.UTC().Format(time.RFC3339),
		Tool:         e.Tool,
		Session:      e.SessionID,
		DBSystem:     e.DBSystem,
		Operation:    e.Operation,
		SQL:          e.SQL,
		Rejected:     e.Rejected,
		RowsReturned: e.RowsReturned,
		PlanFindings: e.PlanFindings,
		DurationMS:   e.DurationMS,
	}
	if e.Err != nil {
		msg := e.Err.Error()
		r.Error = &msg
	}
	return r
}

// FileAuditor appends one JSON object per entry to a file. Writes are
// serialized so concurrent sessions never interleave lines.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewFileAuditor opens path for appending, creating it with 0600.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileAuditor{file: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// Record never fails the request; encoding errors are dropped.
func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	r := toRecord(a.now(), entry)

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(r)
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }
