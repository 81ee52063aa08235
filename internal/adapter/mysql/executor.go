package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Executor runs validated statements. Rows are capped server-side with
// sql_select_limit and again while reading, since SHOW and EXPLAIN ignore it.
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
	var results []map[string]any
	err := inTx(ctx, e.db, e.readOnly, e.queryTimeout, e.maxRows, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
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
