package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Explainer runs EXPLAIN FORMAT=JSON and decodes the query block tree.
type Explainer struct {
	db      *sql.DB
	timeout time.Duration
}

func NewExplainer(db *sql.DB, timeout time.Duration) *Explainer {
	return &Explainer{db: db, timeout: timeout}
}

// Explain returns nil for statements that are already EXPLAIN.
func (e *Explainer) Explain(ctx context.Context, query string) (*domain.ExecutionPlan, error) {
	if sqltext.IsExplain(query) {
		return nil, nil
	}

	var raw string
	err := inTx(ctx, e.db, true, e.timeout, 0, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "EXPLAIN FORMAT=JSON "+query).Scan(&raw); err != nil {
			return fmt.Errorf("explaining query: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	findings, err := decodePlan([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &domain.ExecutionPlan{Format: "mysql-json", Raw: json.RawMessage(raw), Findings: findings}, nil
}

// planNode covers query_block and the operation nodes nested in it
// (ordering_operation, grouping_operation, duplicates_removal).
type planNode struct {
	UsingFilesort       bool         `json:"using_filesort"`
	UsingTemporaryTable bool         `json:"using_temporary_table"`
	Table               *planTable   `json:"table"`
	NestedLoop          []planNode   `json:"nested_loop"`
	Ordering            *planNode    `json:"ordering_operation"`
	Grouping            *planNode    `json:"grouping_operation"`
	Duplicates          *planNode    `json:"duplicates_removal"`
	Union               *planUnion   `json:"union_result"`
	Subqueries          []planSubSel `json:"optimized_away_subqueries"`
}

type planTable struct {
	TableName    string       `json:"table_name"`
	AccessType   string       `json:"access_type"` // ALL, index, range, ref, eq_ref, const, system
	Key          string       `json:"key"`
	Materialized *planSubSel  `json:"materialized_from_subquery"`
	Attached     []planSubSel `json:"attached_subqueries"`
}

type planUnion struct {
	UsingTemporaryTable bool         `json:"using_temporary_table"`
	Specs               []planSubSel `json:"query_specifications"`
}

type planSubSel struct {
	QueryBlock planNode `json:"query_block"`
}

// decodePlan reports a full scan for a driving table read with access type
// ALL and a join without index for any later table in a nested loop read that
// way.
func decodePlan(raw []byte) ([]domain.PlanFinding, error) {
	var root planSubSel
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	w := &planWalker{seen: make(map[domain.PlanFinding]bool)}
	w.block(root.QueryBlock)
	return w.findings, nil
}

type planWalker struct {
	findings []domain.PlanFinding
	seen     map[domain.PlanFinding]bool
}

func (w *planWalker) block(n planNode) {
	if n.UsingTemporaryTable {
		w.add(domain.TemporaryTable())
	}
	if n.UsingFilesort {
		w.add(domain.Filesort())
	}
	if n.Table != nil {
		w.table(n.Table, false)
	}
	for i, step := range n.NestedLoop {
		if step.Table != nil {
			w.table(step.Table, i > 0)
		}
	}
	for _, op := range []*planNode{n.Ordering, n.Grouping, n.Duplicates} {
		if op != nil {
			w.block(*op)
		}
	}
	if n.Union != nil {
		if n.Union.UsingTemporaryTable {
			w.add(domain.TemporaryTable())
		}
		for _, spec := range n.Union.Specs {
			w.block(spec.QueryBlock)
		}
	}
	for _, sub := range n.Subqueries {
		w.block(sub.QueryBlock)
	}
}

func (w *planWalker) table(t *planTable, joined bool) {
	if t.AccessType == "ALL" {
		if joined {
			w.add(domain.JoinWithoutIndex(t.TableName))
		} else {
			w.add(domain.FullTableScan(t.TableName))
		}
	}
	if t.Materialized != nil {
		w.block(t.Materialized.QueryBlock)
	}
	for _, sub := range t.Attached {
		w.block(sub.QueryBlock)
	}
}

func (w *planWalker) add(f domain.PlanFinding) {
	if w.seen[f] {
		return
	}
	w.seen[f] = true
	w.findings = append(w.findings, f)
}
