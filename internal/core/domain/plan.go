package domain

import (
	"encoding/json"
	"fmt"
)

// PlanPattern names a costly operation found in an execution plan.
type PlanPattern string

const (
	PlanFullTableScan    PlanPattern = "Full Table Scan"
	PlanTemporaryTable   PlanPattern = "Temporary Table"
	PlanFilesort         PlanPattern = "Filesort"
	PlanJoinWithoutIndex PlanPattern = "Join Without Index"
)

// PlanFinding is one costly operation reported by the database planner.
type PlanFinding struct {
	Pattern        PlanPattern `json:"pattern"`
	Table          string      `json:"table,omitempty"`
	Description    string      `json:"description"`
	Recommendation string      `json:"recommendation"`
}

// ExecutionPlan is a dialect's plan output plus the findings decoded from it.
// Raw holds the plan as the database returned it (JSON for MySQL and
// PostgreSQL, a JSON array of detail rows for SQLite).
type ExecutionPlan struct {
	Format   string          `json:"format"`
	Raw      json.RawMessage `json:"raw"`
	Findings []PlanFinding   `json:"findings"`
}

func FullTableScan(table string) PlanFinding {
	return PlanFinding{
		Pattern:        PlanFullTableScan,
		Table:          table,
		Description:    fmt.Sprintf("The query performs a full table scan on table '%s'.", orUnknown(table)),
		Recommendation: "Consider adding an index to the columns used in WHERE clauses.",
	}
}

func TemporaryTable() PlanFinding {
	return PlanFinding{
		Pattern:        PlanTemporaryTable,
		Description:    "The query creates a temporary table, which can be memory-intensive.",
		Recommendation: "Consider simplifying the query or adding appropriate indexes.",
	}
}

func Filesort() PlanFinding {
	return PlanFinding{
		Pattern:        PlanFilesort,
		Description:    "The query uses a filesort operation, which can be slow for large datasets.",
		Recommendation: "Consider adding an index that matches your ORDER BY clause.",
	}
}

func JoinWithoutIndex(table string) PlanFinding {
	return PlanFinding{
		Pattern:        PlanJoinWithoutIndex,
		Table:          table,
		Description:    fmt.Sprintf("The query joins with table '%s' without using an index.", orUnknown(table)),
		Recommendation: "Add an index to the join columns in this table.",
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
