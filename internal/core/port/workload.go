package port

import (
	"context"

	"github.com/querylens/querylens/internal/core/domain"
)

// SlowQuery is one normalized statement from the database's statement
// statistics, with timings in milliseconds.
type SlowQuery struct {
	Query           string  `json:"query"`
	Calls           int64   `json:"calls"`
	MeanMS          float64 `json:"mean_ms"`
	TotalMS         float64 `json:"total_ms"`
	MaxMS           float64 `json:"max_ms"`
	MinMS           float64 `json:"min_ms"`
	AvgRows         float64 `json:"avg_rows"`
	AvgRowsExamined float64 `json:"avg_rows_examined,omitempty"`
	TmpTables       int64   `json:"tmp_tables"`
	NoIndexUsed     int64   `json:"no_index_used,omitempty"`
}

// Setting is one server configuration variable.
type Setting struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

// WorkloadInspector reads runtime statistics and server configuration.
// Implementations return domain.ErrUnsupported for any statistic the database
// does not keep.
type WorkloadInspector interface {
	SlowQueries(ctx context.Context, minMeanMS float64, limit int) ([]SlowQuery, error)
	// Settings lists variables whose name contains pattern (all when empty).
	Settings(ctx context.Context, pattern string) ([]Setting, error)
	// BufferPool reads the page cache size, occupancy and hit counters.
	BufferPool(ctx context.Context) (*domain.BufferPoolStats, error)
	// TableSpace lists allocated and free bytes per table, largest first.
	TableSpace(ctx context.Context) ([]domain.TableSpace, error)
}
