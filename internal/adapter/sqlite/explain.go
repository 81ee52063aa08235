package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Explainer runs EXPLAIN QUERY PLAN and reads its detail lines.
type Explainer struct {
	db      *sql.DB
	timeout time.Duration
}

func NewExplainer(db *sql.DB, timeout time.Duration) *Explainer {
	return &Explainer{db: db, timeout: timeout}
}

// planRow is one row of EXPLAIN QUERY PLAN output.
type planRow struct {
	ID     int    `json:"id"`
	Parent int    `json:"parent"`
	Detail string `json:"detail"`
}

// Explain returns nil for statements that are already EXPLAIN.
func (e *Explainer) Explain(ctx context.Context, query string) (*domain.ExecutionPlan, error) {
	if sqltext.IsExplain(query) {
		return nil, nil
	}

	var plan []planRow
	err := inTx(ctx, e.db, true, e.timeout, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query)
		if err != nil {
			return fmt.Errorf("explaining query: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				r       planRow
				notUsed int
			)
			if err := rows.Scan(&r.ID, &r.Parent, &notUsed, &r.Detail); err != nil {
				return fmt.Errorf("scanning plan row: %w", err)
			}
			plan = append(plan, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	return &domain.ExecutionPlan{Format: "sqlite-query-plan", Raw: raw, Findings: decodePlan(plan)}, nil
}

// decodePlan maps detail lines to findings:
//
//	SCAN t                        full table scan, or join without index when
//	                              another table was read before it at that level
//	SEARCH t USING INDEX i (a=?)  indexed access, no finding
//	USE TEMP B-TREE FOR ORDER BY  filesort
//	USE TEMP B-TREE FOR ...       temporary table (GROUP BY, DISTINCT)
//	MATERIALIZE ...               temporary table
func decodePlan(rows []planRow) []domain.PlanFinding {
	var findings []domain.PlanFinding
	seen := make(map[domain.PlanFinding]bool)
	add := func(f domain.PlanFinding) {
		if !seen[f] {
			seen[f] = true
			findings = append(findings, f)
		}
	}

	accessed := make(map[int]int) // tables read per parent
	for _, r := range rows {
		detail := strings.TrimSpace(r.Detail)
		upper := strings.ToUpper(detail)
		switch {
		case strings.HasPrefix(upper, "USE TEMP B-TREE FOR ORDER BY"),
			strings.HasPrefix(upper, "USE TEMP B-TREE FOR RIGHT PART OF ORDER BY"),
			strings.HasPrefix(upper, "USE TEMP B-TREE FOR LAST"):
			add(domain.Filesort())
		case strings.HasPrefix(upper, "USE TEMP B-TREE"), strings.HasPrefix(upper, "MATERIALIZE"):
			add(domain.TemporaryTable())
		case strings.HasPrefix(upper, "SEARCH "):
			accessed[r.Parent]++
		case strings.HasPrefix(upper, "SCAN "):
			table, fullScan := scanTarget(detail)
			if table == "" {
				continue
			}
			if fullScan {
				if accessed[r.Parent] > 0 {
					add(domain.JoinWithoutIndex(table))
				} else {
					add(domain.FullTableScan(table))
				}
			}
			accessed[r.Parent]++
		}
	}
	return findings
}

// scanTarget extracts the table from a SCAN line. It returns "" for
// subqueries, CTEs and constant rows, and fullScan is false when the scan
// walks an index.
func scanTarget(detail string) (table string, fullScan bool) {
	fields := strings.Fields(detail)[1:]
	if len(fields) > 0 && strings.EqualFold(fields[0], "TABLE") {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return "", false
	}
	name := fields[0]
	if strings.HasPrefix(name, "(") || strings.EqualFold(name, "CONSTANT") {
		return "", false
	}
	if len(fields) >= 3 && strings.EqualFold(fields[1], "AS") {
		fields = fields[2:]
	}
	for _, f := range fields[1:] {
		if strings.EqualFold(f, "USING") {
			return name, false
		}
	}
	return name, true
}
