package port

import (
	"context"

	"github.com/querylens/querylens/internal/core/domain"
)

// MetadataReader reads catalog information for the connected database.
type MetadataReader interface {
	ListTables(ctx context.Context) ([]domain.TableSummary, error)
	// DescribeTables returns metadata for the named tables that exist.
	// Unknown names are absent from the result rather than an error.
	DescribeTables(ctx context.Context, names []string) (domain.SchemaMetadata, error)
}

// QueryExecutor runs a statement inside a read-only transaction with a
// statement timeout and a row cap.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}

// PlanExplainer asks the planner for a statement's execution plan.
type PlanExplainer interface {
	Explain(ctx context.Context, sql string) (*domain.ExecutionPlan, error)
}

// QueryValidator is the read-only gate every statement passes before it
// reaches a database or the analyzer.
type QueryValidator interface {
	Validate(sql string) error
}
