package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// inTx runs fn in a transaction on a dedicated connection whose SELECTs are
// interrupted by the server after timeout. maxRows > 0 also caps the rows a
// top-level SELECT may return. Both limits are session variables and are
// reset on every checkout.
func inTx(ctx context.Context, db *sql.DB, readOnly bool, timeout time.Duration, maxRows int, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	limit := "DEFAULT"
	if maxRows > 0 {
		limit = fmt.Sprintf("%d", maxRows)
	}
	set := fmt.Sprintf("SET SESSION max_execution_time = %d, SESSION sql_select_limit = %s", timeout.Milliseconds(), limit)
	if _, err := conn.ExecContext(ctx, set); err != nil {
		return fmt.Errorf("setting session limits: %w", err)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
