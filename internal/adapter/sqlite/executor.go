package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Executor runs validated statements against the database file.
type Executor struct {
	db           *sql.DB
	readOnly     bool
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(db *sql.DB, readOnly bool, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		db:           db,
		readOnly:     readOnly,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, query string) ([]map[string]any, error) {
	// EXPLAIN statements cannot be wrapped in a subquery.
	wrapped := query
	if !sqltext.IsExplain(query) {
		wrapped = fmt.Sprintf("SELECT * FROM (\n%s\n) LIMIT %d", sqltext.TrimTerminators(query), e.maxRows)
	}

	var results []map[string]any
	err := inTx(ctx, e.db, e.readOnly, e.queryTimeout, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, wrapped)
		if err != nil {
			return fmt.Errorf("executing query: %w", err)
		}
		defer func() { _ = rows.Close() }()

		results, err = rowsToMaps(rows, e.maxRows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// rowsToMaps converts sql.Rows into maps keyed by column name, stopping after
// limit rows when limit is positive. BLOB values become strings.
func rowsToMaps(rows *sql.Rows, limit int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var result []map[string]any
	for rows.Next() {
		if limit > 0 && len(result) == limit {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
