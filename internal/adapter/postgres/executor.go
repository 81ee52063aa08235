package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Executor runs validated statements and returns their rows as maps.
type Executor struct {
	pool         *pgxpool.Pool
	readOnly     bool
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, readOnly bool, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		readOnly:     readOnly,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	// EXPLAIN statements cannot be wrapped in a subquery. The newlines keep a
	// trailing line comment from swallowing the closing parenthesis.
	wrappedSQL := sql
	if !sqltext.IsExplain(sql) {
		wrappedSQL = fmt.Sprintf("SELECT * FROM (\n%s\n) AS _q LIMIT %d", sqltext.TrimTerminators(sql), e.maxRows)
	}

	var results []map[string]any
	err := inTx(ctx, e.pool, e.accessMode(), e.queryTimeout, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, wrappedSQL)
		if err != nil {
			return fmt.Errorf("executing query: %w", err)
		}
		defer rows.Close()

		results, err = rowsToMaps(rows, e.maxRows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
