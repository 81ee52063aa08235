package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
)

// undefinedTable is raised when pg_stat_statements is not installed.
const undefinedTable = "42P01"

// WorkloadInspector reads pg_stat_statements, pg_settings and the
// cumulative statistics views. Table space is restricted to the configured
// schemas.
type WorkloadInspector struct {
	pool    *pgxpool.Pool
	schemas []string
	timeout time.Duration
}

func NewWorkloadInspector(pool *pgxpool.Pool, schemas []string, timeout time.Duration) *WorkloadInspector {
	return &WorkloadInspector{pool: pool, schemas: schemas, timeout: timeout}
}

func (w *WorkloadInspector) SlowQueries(ctx context.Context, minMeanMS float64, limit int) ([]port.SlowQuery, error) {
	var out []port.SlowQuery
	err := inTx(ctx, w.pool, pgx.ReadOnly, w.timeout, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, querySlowStatements, minMeanMS, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var q port.SlowQuery
			if err := rows.Scan(&q.Query, &q.Calls, &q.MeanMS, &q.TotalMS, &q.MaxMS, &q.MinMS, &q.AvgRows); err != nil {
				return fmt.Errorf("scanning statement row: %w", err)
			}
			out = append(out, q)
		}
		return rows.Err()
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return nil, fmt.Errorf("pg_stat_statements extension is not installed: %w", domain.ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("reading pg_stat_statements: %w", err)
	}
	return out, nil
}

func (w *WorkloadInspector) Settings(ctx context.Context, pattern string) ([]port.Setting, error) {
	var out []port.Setting
	err := inTx(ctx, w.pool, pgx.ReadOnly, w.timeout, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, querySettings, pattern)
		if err != nil {
			return fmt.Errorf("reading pg_settings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var s port.Setting
			if err := rows.Scan(&s.Name, &s.Value, &s.Unit, &s.Description); err != nil {
				return fmt.Errorf("scanning setting row: %w", err)
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

// BufferPool reports shared_buffers and the database's block hit counters.
// PostgreSQL does not expose buffer occupancy without pg_buffercache, so
// page counts and top tables stay empty.
func (w *WorkloadInspector) BufferPool(ctx context.Context) (*domain.BufferPoolStats, error) {
	stats := &domain.BufferPoolStats{Kind: domain.BufferCacheShared}
	err := inTx(ctx, w.pool, pgx.ReadOnly, w.timeout, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, queryBufferPool).
			Scan(&stats.SizeBytes, &stats.PageSize, &stats.ReadRequests, &stats.Reads)
	})
	if err != nil {
		return nil, fmt.Errorf("reading buffer statistics: %w", err)
	}
	return stats, nil
}

func (w *WorkloadInspector) TableSpace(ctx context.Context) ([]domain.TableSpace, error) {
	filter, args := schemaFilter(w.schemas, "s.schemaname", 1)
	query := fmt.Sprintf(queryTableSpace, filter)

	var out []domain.TableSpace
	err := inTx(ctx, w.pool, pgx.ReadOnly, w.timeout, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("reading table space: %w", err)
		}
		defer rows.Close()

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
