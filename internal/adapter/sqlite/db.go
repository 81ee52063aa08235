// Package sqlite implements the database ports for SQLite files using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// PathFromURL strips the sqlite:// scheme. sqlite:///var/db/app.db is an
// absolute path and sqlite://app.db a relative one.
func PathFromURL(raw string) (string, error) {
	path, ok := strings.CutPrefix(raw, "sqlite://")
	if !ok {
		return "", fmt.Errorf("unsupported database URL %q: expected sqlite://", raw)
	}
	if path == "" {
		return "", fmt.Errorf("database URL %q has no file path", raw)
	}
	return path, nil
}

// Open opens the database file and pings it. A busy timeout keeps readers
// from failing immediately while another process holds the write lock.
func Open(ctx context.Context, path string, maxConns int32) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(int(maxConns))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database (10s timeout): %w", err)
	}
	return db, nil
}

// inTx runs fn in a transaction on a dedicated connection. readOnly sets
// PRAGMA query_only for the duration of the call. The driver interrupts the
// running statement when ctx expires.
func inTx(ctx context.Context, db *sql.DB, readOnly bool, timeout time.Duration, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if readOnly {
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
			return fmt.Errorf("enabling query_only: %w", err)
		}
		// Background: ctx may already be expired when resetting.
		defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = 0") }()
	}

	tx, err := conn.BeginTx(ctx, nil)
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
