package port

import "context"

// Statement outcomes passed to Instrumentation.RecordStatement.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Instrumentation receives the numbers behind the querylens metrics.
type Instrumentation interface {
	// RecordStatement counts one statement sent through QueryService.
	// operation is "query" or "explain". Rejected statements never reach the
	// database, so their duration is zero.
	RecordStatement(ctx context.Context, operation, outcome string, ms float64)
	RecordToolCall(ctx context.Context, tool string, ms float64, failed bool)
	// RecordFindings counts analysis results of one kind (anti_pattern,
	// plan, missing_index, complexity_warning).
	RecordFindings(ctx context.Context, kind string, n int)
}

type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordStatement(context.Context, string, string, float64) {}
func (NoopInstrumentation) RecordToolCall(context.Context, string, float64, bool)    {}
func (NoopInstrumentation) RecordFindings(context.Context, string, int)              {}
