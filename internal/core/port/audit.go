package port

import "context"

// AuditEntry is one statement an agent asked to run. Rejected statements
// never reached the database; Err then holds the validation error.
type AuditEntry struct {
	Tool         string
	SessionID    string
	DBSystem     string
	Operation    string // "query" or "explain"
	SQL          string
	RowsReturned int
	PlanFindings int
	DurationMS   int64
	Rejected     bool
	Err          error
}

// QueryAuditor records query audit events. Record must not block the caller
// on failure.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
