package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	var out []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), "line %d: %s", len(out)+1, scanner.Text())
		out = append(out, r)
	}
	require.NoError(t, scanner.Err())
	return out
}

func newTestAuditor(t *testing.T) (*FileAuditor, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	fa, err := NewFileAuditor(path)
	require.NoError(t, err)
	fa.now = func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600)) }
	return fa, path
}

func TestFileAuditor_Record(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry port.AuditEntry
		check func(t *testing.T, r record)
	}{
		{
			name: "executed query",
			entry: port.AuditEntry{
				Tool:         "execute_read_only_query",
				SessionID:    "sess-1",
				DBSystem:     "mysql",
				Operation:    "query",
				SQL:          "SELECT id FROM orders",
				RowsReturned: 3,
				DurationMS:   42,
			},
			check: func(t *testing.T, r record) {
				assert.Equal(t, "2026-10-17T07:30:00Z", r.Timestamp)
				assert.Equal(t, "sess-1", r.Session)
				assert.Equal(t, "mysql", r.DBSystem)
				assert.Equal(t, 3, r.RowsReturned)
				assert.Equal(t, int64(42), r.DurationMS)
				assert.False(t, r.Rejected)
				assert.Nil(t, r.Error)
			},
		},
		{
			name: "rejected statement",
			entry: port.AuditEntry{
				Tool:      "execute_read_only_query",
				Operation: "query",
				SQL:       "DROP TABLE orders",
				Rejected:  true,
				Err:       domain.ErrForbiddenKeyword,
			},
			check: func(t *testing.T, r record) {
				assert.True(t, r.Rejected)
				require.NotNil(t, r.Error)
				assert.Equal(t, "forbidden keyword", *r.Error)
			},
		},
		{
			name: "explain",
			entry: port.AuditEntry{
				Operation:    "explain",
				DBSystem:     "postgresql",
				SQL:          "SELECT * FROM orders",
				PlanFindings: 2,
			},
			check: func(t *testing.T, r record) {
				assert.Equal(t, "explain", r.Operation)
				assert.Equal(t, 2, r.PlanFindings)
				assert.Empty(t, r.Tool)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fa, path := newTestAuditor(t)
			fa.Record(context.Background(), tt.entry)
			require.NoError(t, fa.Close())

			records := readRecords(t, path)
			require.Len(t, records, 1)
			assert.Equal(t, tt.entry.SQL, records[0].SQL)
			tt.check(t, records[0])
		})
	}
}

func TestFileAuditor_ErrorIsExplicitNull(t *testing.T) {
	t.Parallel()
	fa, path := newTestAuditor(t)
	fa.Record(context.Background(), port.AuditEntry{Operation: "query", SQL: "SELECT 1"})
	require.NoError(t, fa.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error":null`)
}

func TestFileAuditor_ConcurrentWritesStayLineAligned(t *testing.T) {
	t.Parallel()
	fa, path := newTestAuditor(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fa.Record(context.Background(), port.AuditEntry{
				Operation: "query",
				SQL:       fmt.Sprintf("SELECT %d", n),
			})
		}(i)
	}
	wg.Wait()
	require.NoError(t, fa.Close())

	assert.Len(t, readRecords(t, path), 50)
}

func TestFileAuditor_AppendsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.ndjson")

	for _, sql := range []string{"SELECT 1", "SELECT 2"} {
		fa, err := NewFileAuditor(path)
		require.NoError(t, err)
		fa.Record(context.Background(), port.AuditEntry{Operation: "query", SQL: sql})
		require.NoError(t, fa.Close())
	}

	records := readRecords(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "SELECT 2", records[1].SQL)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLogAuditor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry port.AuditEntry
		want  map[string]any
	}{
		{
			name: "timeout is a warning",
			entry: port.AuditEntry{
				Tool:      "execute_read_only_query",
				SessionID: "sess-9",
				DBSystem:  "mysql",
				Operation: "query",
				SQL:       "SELECT SLEEP(10)",
				Err:       errors.New("query timed out"),
			},
			want: map[string]any{
				"level":            "WARN",
				"log.type":         "audit",
				"mcp.session.id":   "sess-9",
				"db.system":        "mysql",
				"error":            "query timed out",
				"db.response.rows": float64(0),
			},
		},
		{
			name: "explain carries findings",
			entry: port.AuditEntry{
				Operation:    "explain",
				SQL:          "SELECT * FROM t",
				PlanFindings: 1,
			},
			want: map[string]any{
				"level":                   "INFO",
				"db.operation.name":       "explain",
				"querylens.plan.findings": float64(1),
				"rejected":                false,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf strings.Builder
			a := NewLogAuditor(slog.New(slog.NewJSONHandler(&buf, nil)))
			a.Record(context.Background(), tt.entry)
			require.NoError(t, a.Close())

			var rec map[string]any
			require.NoError(t, json.Unmarshal([]byte(buf.String()), &rec))
			for k, v := range tt.want {
				assert.Equal(t, v, rec[k], k)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Open("", logger)
	require.NoError(t, err)
	assert.IsType(t, NoopAuditor{}, a)
	a.Record(context.Background(), port.AuditEntry{SQL: "SELECT 1"})
	assert.NoError(t, a.Close())

	a, err = Open("-", logger)
	require.NoError(t, err)
	assert.IsType(t, &LogAuditor{}, a)

	a, err = Open(filepath.Join(t.TempDir(), "audit.ndjson"), logger)
	require.NoError(t, err)
	assert.IsType(t, &FileAuditor{}, a)
	require.NoError(t, a.Close())

	_, err = Open("/nonexistent/dir/audit.ndjson", logger)
	assert.Error(t, err)
}
