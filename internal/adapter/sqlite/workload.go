package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
)

// pragmas reported by Settings. Each is a read-only query when called
// without a value.
var pragmas = []string{
	"application_id",
	"auto_vacuum",
	"busy_timeout",
	"cache_size",
	"encoding",
	"foreign_keys",
	"journal_mode",
	"journal_size_limit",
	"mmap_size",
	"page_count",
	"page_size",
	"synchronous",
	"temp_store",
	"user_version",
	"wal_autocheckpoint",
}

// WorkloadInspector reports connection PRAGMAs. SQLite keeps no statement,
// cache or table space statistics.
type WorkloadInspector struct {
	db      *sql.DB
	timeout time.Duration
}

func NewWorkloadInspector(db *sql.DB, timeout time.Duration) *WorkloadInspector {
	return &WorkloadInspector{db: db, timeout: timeout}
}

func (w *WorkloadInspector) SlowQueries(context.Context, float64, int) ([]port.SlowQuery, error) {
	return nil, fmt.Errorf("sqlite keeps no statement statistics: %w", domain.ErrUnsupported)
}

func (w *WorkloadInspector) BufferPool(context.Context) (*domain.BufferPoolStats, error) {
	return nil, fmt.Errorf("sqlite keeps no page cache statistics: %w", domain.ErrUnsupported)
}

func (w *WorkloadInspector) TableSpace(context.Context) ([]domain.TableSpace, error) {
	return nil, fmt.Errorf("sqlite keeps no per-table space statistics: %w", domain.ErrUnsupported)
}

func (w *WorkloadInspector) Settings(ctx context.Context, pattern string) ([]port.Setting, error) {
	pattern = strings.ToLower(pattern)
	var out []port.Setting
	err := inTx(ctx, w.db, true, w.timeout, func(tx *sql.Tx) error {
		for _, name := range pragmas {
			if !strings.Contains(name, pattern) {
				continue
			}
			var value string
			if err := tx.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
				return fmt.Errorf("reading PRAGMA %s: %w", name, err)
			}
			out = append(out, port.Setting{Name: name, Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
