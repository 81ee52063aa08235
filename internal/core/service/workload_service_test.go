package service

import (
	"context"
	"errors"
	"testing"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInspector struct {
	slow        []port.SlowQuery
	settings    []port.Setting
	buffers     *domain.BufferPoolStats
	space       []domain.TableSpace
	err         error
	lastMin     float64
	lastLimit   int
	lastPattern string
}

func (m *mockInspector) SlowQueries(_ context.Context, minMeanMS float64, limit int) ([]port.SlowQuery, error) {
	m.lastMin, m.lastLimit = minMeanMS, limit
	return m.slow, m.err
}

func (m *mockInspector) Settings(_ context.Context, pattern string) ([]port.Setting, error) {
	m.lastPattern = pattern
	return m.settings, m.err
}

func TestWorkloadService_SlowQueries(t *testing.T) {
	t.Parallel()
	insp := &mockInspector{slow: []port.SlowQuery{
		{Query: "SELECT * FROM a JOIN b ON a.id = b.id", Calls: 10, TotalMS: 5000, MeanMS: 500, MaxMS: 900},
		{Query: "UPDATE a SET x = ?", Calls: 3, TotalMS: 600, MeanMS: 200, MaxMS: 1200},
		{Query: "select count(*) from c", Calls: 1, TotalMS: 150, MeanMS: 150, MaxMS: 150},
	}}
	svc := NewWorkloadService(insp, nil, testLogger(), nil)

	report, err := svc.SlowQueries(context.Background(), 100, 10)
	require.NoError(t, err)
	assert.Equal(t, 100.0, insp.lastMin)
	assert.Equal(t, 10, insp.lastLimit)

	require.Len(t, report.Queries, 3)
	assert.Equal(t, "SELECT", report.Queries[0].StatementType)
	assert.Equal(t, 2, report.Queries[0].Complexity.Score)
	assert.Equal(t, "UPDATE", report.Queries[1].StatementType)
	assert.Equal(t, 1, report.Queries[2].Complexity.AggregationCount)

	assert.Equal(t, 3, report.Summary.QueryCount)
	assert.Equal(t, 5750.0, report.Summary.TotalMS)
	assert.Equal(t, int64(14), report.Summary.TotalCalls)
	assert.Equal(t, 1200.0, report.Summary.MaxMS)
	assert.Equal(t, map[string]int{"SELECT": 2, "UPDATE": 1}, report.Summary.ByStatementType)
}

func (m *mockInspector) BufferPool(context.Context) (*domain.BufferPoolStats, error) {
	return m.buffers, m.err
}

func (m *mockInspector) TableSpace(context.Context) ([]domain.TableSpace, error) {
	return m.space, m.err
}

func TestWorkloadService_SlowQueriesUnsupported(t *testing.T) {
	t.Parallel()
	svc := NewWorkloadService(&mockInspector{err: domain.ErrUnsupported}, nil, testLogger(), nil)

	_, err := svc.SlowQueries(context.Background(), 100, 10)
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestWorkloadService_Settings(t *testing.T) {
	t.Parallel()
	insp := &mockInspector{settings: []port.Setting{{Name: "innodb_buffer_pool_size", Value: "134217728"}}}
	svc := NewWorkloadService(insp, nil, testLogger(), nil)

	got, err := svc.Settings(context.Background(), "buffer_pool")
	require.NoError(t, err)
	assert.Equal(t, "buffer_pool", insp.lastPattern)
	assert.Len(t, got, 1)

	insp.err = errors.New("denied")
	_, err = svc.Settings(context.Background(), "")
	assert.Error(t, err)
}

func TestStatementType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "SELECT", statementType("  select 1"))
	assert.Equal(t, "SELECT", statementType("(SELECT 1) UNION (SELECT 2)"))
	assert.Equal(t, "WITH", statementType("/* hint */ WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UNKNOWN", statementType(""))
	assert.Equal(t, "UNKNOWN", statementType("'literal'"))
}

func TestWorkloadService_BufferPool(t *testing.T) {
	t.Parallel()
	insp := &mockInspector{buffers: &domain.BufferPoolStats{
		Kind: domain.BufferCacheInnoDB, SizeBytes: 128 << 20,
		PagesTotal: 100, PagesFree: 1, ReadRequests: 100, Reads: 50,
	}}
	svc := NewWorkloadService(insp, nil, testLogger(), nil)

	report, err := svc.BufferPool(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.HitRatioPercent)
	assert.InDelta(t, 50, *report.HitRatioPercent, 0.001)
	assert.Len(t, report.Recommendations, 2)

	insp.err = domain.ErrUnsupported
	_, err = svc.BufferPool(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestWorkloadService_Fragmentation(t *testing.T) {
	t.Parallel()
	insp := &mockInspector{space: []domain.TableSpace{
		{Table: "orders", Engine: "InnoDB", DataBytes: 64 << 20, FreeBytes: 32 << 20},
		{Table: "users", Engine: "InnoDB", DataBytes: 64 << 20},
	}}
	svc := NewWorkloadService(insp, nil, testLogger(), nil)

	report, err := svc.Fragmentation(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Tables, 2)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, "OPTIMIZE TABLE orders;", report.Recommendations[0].Statement)

	insp.err = errors.New("denied")
	_, err = svc.Fragmentation(context.Background())
	assert.Error(t, err)
}
