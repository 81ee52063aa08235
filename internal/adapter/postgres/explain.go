package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Explainer runs EXPLAIN (FORMAT JSON) and decodes the plan tree into findings.
// The statement is planned but never executed.
type Explainer struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewExplainer(pool *pgxpool.Pool, timeout time.Duration) *Explainer {
	return &Explainer{pool: pool, timeout: timeout}
}

// Explain returns nil for statements that are already EXPLAIN.
func (e *Explainer) Explain(ctx context.Context, sql string) (*domain.ExecutionPlan, error) {
	if sqltext.IsExplain(sql) {
		return nil, nil
	}

	var raw []byte
	err := inTx(ctx, e.pool, pgx.ReadOnly, e.timeout, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql).Scan(&raw); err != nil {
			return fmt.Errorf("explaining query: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	findings, err := decodePlan(raw)
	if err != nil {
		return nil, err
	}
	return &domain.ExecutionPlan{Format: "postgresql-json", Raw: raw, Findings: findings}, nil
}

type planNode struct {
	NodeType           string     `json:"Node Type"`
	RelationName       string     `json:"Relation Name"`
	ParentRelationship string     `json:"Parent Relationship"`
	Plans              []planNode `json:"Plans"`
}

// decodePlan walks the plan tree. Sequential scans on the inner side of a
// nested loop are joins without an index; other sequential scans are full
// table scans. Sort nodes map to Filesort and hashing or materialising
// nodes to Temporary Table.
func decodePlan(raw []byte) ([]domain.PlanFinding, error) {
	var roots []struct {
		Plan planNode `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &roots); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if len(roots) == 0 {
		return nil, errors.New("decoding plan: empty EXPLAIN output")
	}

	w := &planWalker{seen: make(map[domain.PlanFinding]bool)}
	w.walk(roots[0].Plan, "")
	return w.findings, nil
}

type planWalker struct {
	findings []domain.PlanFinding
	seen     map[domain.PlanFinding]bool
}

func (w *planWalker) walk(n planNode, parentType string) {
	switch n.NodeType {
	case "Seq Scan":
		if parentType == "Nested Loop" && n.ParentRelationship == "Inner" {
			w.add(domain.JoinWithoutIndex(n.RelationName))
		} else {
			w.add(domain.FullTableScan(n.RelationName))
		}
	case "Sort", "Incremental Sort":
		w.add(domain.Filesort())
	case "HashAggregate", "Materialize":
		w.add(domain.TemporaryTable())
	}
	for _, child := range n.Plans {
		w.walk(child, n.NodeType)
	}
}

func (w *planWalker) add(f domain.PlanFinding) {
	if w.seen[f] {
		return
	}
	w.seen[f] = true
	w.findings = append(w.findings, f)
}
