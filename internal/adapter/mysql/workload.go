package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
)

// WorkloadInspector reads statement digests from performance_schema, server
// variables and InnoDB counters from SHOW GLOBAL, and table space from
// information_schema.
type WorkloadInspector struct {
	db      *sql.DB
	timeout time.Duration
}

func NewWorkloadInspector(db *sql.DB, timeout time.Duration) *WorkloadInspector {
	return &WorkloadInspector{db: db, timeout: timeout}
}

func (w *WorkloadInspector) SlowQueries(ctx context.Context, minMeanMS float64, limit int) ([]port.SlowQuery, error) {
	var out []port.SlowQuery
	err := inTx(ctx, w.db, true, w.timeout, 0, func(tx *sql.Tx) error {
		var enabled bool
		if err := tx.QueryRowContext(ctx, "SELECT @@performance_schema").Scan(&enabled); err != nil {
			return fmt.Errorf("checking performance_schema: %w", err)
		}
		if !enabled {
			return fmt.Errorf("performance_schema is disabled: %w", domain.ErrUnsupported)
		}

		rows, err := tx.QueryContext(ctx, querySlowStatements, minMeanMS, limit)
		if err != nil {
			return fmt.Errorf("reading statement digests: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var q port.SlowQuery
			if err := rows.Scan(
				&q.Query, &q.Calls, &q.MeanMS, &q.TotalMS, &q.MaxMS, &q.MinMS,
				&q.AvgRows, &q.AvgRowsExamined, &q.TmpTables, &q.NoIndexUsed,
			); err != nil {
				return fmt.Errorf("scanning digest row: %w", err)
			}
			out = append(out, q)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *WorkloadInspector) Settings(ctx context.Context, pattern string) ([]port.Setting, error) {
	var out []port.Setting
	err := inTx(ctx, w.db, true, w.timeout, 0, func(tx *sql.Tx) error {
		// SHOW does not take placeholders on every server version.
		rows, err := tx.QueryContext(ctx, "SHOW GLOBAL VARIABLES LIKE "+likeLiteral(pattern))
		if err != nil {
			return fmt.Errorf("reading server variables: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var s port.Setting
			if err := rows.Scan(&s.Name, &s.Value); err != nil {
				return fmt.Errorf("scanning variable row: %w", err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *WorkloadInspector) BufferPool(ctx context.Context) (*domain.BufferPoolStats, error) {
	stats := &domain.BufferPoolStats{Kind: domain.BufferCacheInnoDB}
	err := inTx(ctx, w.db, true, w.timeout, 0, func(tx *sql.Tx) error {
		vars, err := readVariables(ctx, tx, queryBufferPoolVariables)
		if err != nil {
			return fmt.Errorf("reading buffer pool variables: %w", err)
		}
		status, err := readVariables(ctx, tx, queryBufferPoolStatus)
		if err != nil {
			return fmt.Errorf("reading buffer pool status: %w", err)
		}
		stats.SizeBytes = vars.number("innodb_buffer_pool_size")
		stats.Instances = vars.number("innodb_buffer_pool_instances")
		stats.PageSize = vars.number("innodb_page_size")
		stats.PagesTotal = status.number("Innodb_buffer_pool_pages_total")
		stats.PagesFree = status.number("Innodb_buffer_pool_pages_free")
		stats.PagesData = status.number("Innodb_buffer_pool_pages_data")
		stats.ReadRequests = status.number("Innodb_buffer_pool_read_requests")
		stats.Reads = status.number("Innodb_buffer_pool_reads")

		// INNODB_BUFFER_PAGE needs PROCESS and is absent on some servers;
		// the report stands without the per-table breakdown.
		stats.TopTables, _ = bufferPoolTables(ctx, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func bufferPoolTables(ctx context.Context, tx *sql.Tx) ([]domain.BufferPoolTable, error) {
	rows, err := tx.QueryContext(ctx, queryBufferPoolTables)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.BufferPoolTable
	for rows.Next() {
		var t domain.BufferPoolTable
		if err := rows.Scan(&t.Table, &t.Index, &t.Pages, &t.DataBytes); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (w *WorkloadInspector) TableSpace(ctx context.Context) ([]domain.TableSpace, error) {
	var out []domain.TableSpace
	err := inTx(ctx, w.db, true, w.timeout, 0, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, queryTableSpace)
		if err != nil {
			return fmt.Errorf("reading table space: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var t domain.TableSpace
			if err := rows.Scan(&t.Table, &t.Engine, &t.ApproxRowCount, &t.DataBytes, &t.IndexBytes, &t.FreeBytes); err != nil {
				return fmt.Errorf("scanning table space row: %w", err)
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// variables holds SHOW VARIABLES or SHOW STATUS rows by name.
type variables map[string]string

// int parses a numeric variable. Missing or non-numeric values read as zero.
func (v variables) number(name string) int64 {
	n, _ := strconv.ParseInt(v[name], 10, 64)
	return n
}

func readVariables(ctx context.Context, tx *sql.Tx, query string) (variables, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	vars := make(variables)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		vars[name] = value
	}
	return vars, rows.Err()
}

// likeLiteral quotes pattern as a substring LIKE literal.
func likeLiteral(pattern string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `''`).Replace(pattern)
	return "'%" + escaped + "%'"
}
