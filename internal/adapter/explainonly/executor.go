// Package explainonly restricts query execution to planner output.
package explainonly

import (
	"context"
	"fmt"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
	"github.com/querylens/querylens/internal/core/port"
)

// Executor wraps a QueryExecutor so that statements are planned, never run.
// Plain statements get the dialect's EXPLAIN prefix; EXPLAIN statements pass
// through unless they ask for ANALYZE, which executes the query.
type Executor struct {
	inner  port.QueryExecutor
	prefix string
}

// New uses "EXPLAIN " as the prefix, which MySQL and PostgreSQL accept.
func New(inner port.QueryExecutor) *Executor {
	return NewWithPrefix(inner, "EXPLAIN ")
}

// NewWithPrefix is for dialects whose plain EXPLAIN is not a plan, such as
// SQLite's "EXPLAIN QUERY PLAN ".
func NewWithPrefix(inner port.QueryExecutor, prefix string) *Executor {
	return &Executor{inner: inner, prefix: prefix}
}

var _ port.QueryExecutor = (*Executor)(nil)

func (e *Executor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	tokens := sqltext.Tokenize(sql)
	if len(tokens) == 0 || !tokens[0].Is("EXPLAIN") {
		return e.inner.Execute(ctx, e.prefix+sql)
	}
	if analyzes(tokens[1:]) {
		return nil, fmt.Errorf("EXPLAIN ANALYZE runs the statement: %w", domain.ErrNotAllowed)
	}
	return e.inner.Execute(ctx, sql)
}

// analyzes reports whether the EXPLAIN options before the explained
// statement include ANALYZE, in either the bare or parenthesized form.
func analyzes(options []sqltext.Token) bool {
	for _, tok := range options {
		switch {
		case tok.Is("ANALYZE"), tok.Is("ANALYSE"):
			return true
		case tok.Is("SELECT"), tok.Is("WITH"), tok.Is("VALUES"), tok.Is("TABLE"),
			tok.Is("INSERT"), tok.Is("UPDATE"), tok.Is("DELETE"):
			return false
		}
	}
	return false
}
