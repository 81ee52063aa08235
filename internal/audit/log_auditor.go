package audit

import (
	"context"
	"log/slog"

	"github.com/querylens/querylens/internal/core/port"
)

// LogAuditor writes audit entries to a structured logger instead of a file.
// It is selected with --audit-log=-.
type LogAuditor struct {
	logger *slog.Logger
}

func NewLogAuditor(logger *slog.Logger) *LogAuditor {
	return &LogAuditor{logger: logger.With(slog.String("log.type", "audit"))}
}

func (a *LogAuditor) Record(ctx context.Context, entry port.AuditEntry) {
	attrs := []slog.Attr{
		slog.String("mcp.tool", entry.Tool),
		slog.String("db.system", entry.DBSystem),
		slog.String("db.operation.name", entry.Operation),
		slog.String("db.statement", entry.SQL),
		slog.Bool("rejected", entry.Rejected),
		slog.Int64("duration_ms", entry.DurationMS),
	}
	switch entry.Operation {
	case "explain":
		attrs = append(attrs, slog.Int("querylens.plan.findings", entry.PlanFindings))
	default:
		attrs = append(attrs, slog.Int("db.response.rows", entry.RowsReturned))
	}
	if entry.SessionID != "" {
		attrs = append(attrs, slog.String("mcp.session.id", entry.SessionID))
	}
	level := slog.LevelInfo
	if entry.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", entry.Err.Error()))
	}
	a.logger.LogAttrs(ctx, level, "statement audited", attrs...)
}

func (a *LogAuditor) Close() error { return nil }

// Open returns the auditor for an --audit-log value: none when empty, the
// logger for "-", otherwise an NDJSON file.
func Open(path string, logger *slog.Logger) (port.QueryAuditor, error) {
	switch path {
	case "":
		return NoopAuditor{}, nil
	case "-":
		return NewLogAuditor(logger), nil
	}
	return NewFileAuditor(path)
}
