package service

import (
	"context"
	"errors"
	"testing"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetadata struct {
	tables    []domain.TableSummary
	schema    domain.SchemaMetadata
	err       error
	lastNames []string
}

func (m *mockMetadata) ListTables(context.Context) ([]domain.TableSummary, error) {
	return m.tables, m.err
}

func (m *mockMetadata) DescribeTables(_ context.Context, names []string) (domain.SchemaMetadata, error) {
	m.lastNames = names
	if m.err != nil {
		return nil, m.err
	}
	out := domain.SchemaMetadata{}
	for _, n := range names {
		if md, ok := m.schema[n]; ok {
			out[n] = md
		}
	}
	return out, nil
}

func ordersSchema() domain.SchemaMetadata {
	return domain.SchemaMetadata{
		"orders": {
			Name: "orders",
			Indexes: []domain.ExistingIndex{
				{Name: "PRIMARY", Columns: []string{"id"}, Unique: true},
				{Name: "idx_customer_status", Columns: []string{"customer_id", "status"}},
			},
		},
		"customers": {
			Name:    "customers",
			Indexes: []domain.ExistingIndex{{Name: "PRIMARY", Columns: []string{"id"}, Unique: true}},
		},
	}
}

func newTestAnalysisService(md *mockMetadata, ex *mockExplainer, inst *countingInstrumentation) *AnalysisService {
	if inst == nil {
		inst = &countingInstrumentation{}
	}
	return NewAnalysisService(domain.NewReadOnlyValidator(), nil, md, ex, testLogger(), nil, inst)
}

func TestAnalysisService_AnalyzeQuery(t *testing.T) {
	t.Parallel()
	md := &mockMetadata{schema: ordersSchema()}
	ex := &mockExplainer{plan: &domain.ExecutionPlan{
		Format:   "mysql-json",
		Findings: []domain.PlanFinding{domain.FullTableScan("orders")},
	}}
	inst := &countingInstrumentation{}
	svc := newTestAnalysisService(md, ex, inst)

	got, err := svc.AnalyzeQuery(context.Background(),
		"SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id WHERE c.country = 'US'")
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "customers"}, md.lastNames)
	assert.Len(t, got.Tables, 2)
	require.NotNil(t, got.Plan)
	assert.Len(t, got.Plan.Findings, 1)
	require.Len(t, got.AntiPatterns, 1)
	assert.Equal(t, domain.IssueSelectStar, got.AntiPatterns[0].Issue)
	assert.Equal(t, 2, got.Complexity.Score)
	assert.Equal(t, 1, inst.findings["anti_pattern"])
	assert.Equal(t, 1, inst.findings["plan"])
}

func TestAnalysisService_AnalyzeQueryRejected(t *testing.T) {
	t.Parallel()
	md := &mockMetadata{}
	ex := &mockExplainer{}
	svc := newTestAnalysisService(md, ex, nil)

	_, err := svc.AnalyzeQuery(context.Background(), "SELECT 1; DROP TABLE x;")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMultiStatement)
	assert.ErrorIs(t, err, domain.ErrForbiddenKeyword)
	assert.False(t, ex.called)
	assert.Nil(t, md.lastNames)
}

func TestAnalysisService_AnalyzeQueryExplainFails(t *testing.T) {
	t.Parallel()
	svc := newTestAnalysisService(&mockMetadata{}, &mockExplainer{err: errors.New("no such table")}, nil)

	_, err := svc.AnalyzeQuery(context.Background(), "SELECT id FROM missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestAnalysisService_RecommendIndexes(t *testing.T) {
	t.Parallel()
	md := &mockMetadata{schema: ordersSchema()}
	inst := &countingInstrumentation{}
	svc := newTestAnalysisService(md, &mockExplainer{}, inst)

	got, err := svc.RecommendIndexes(context.Background(),
		"SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id "+
			"WHERE o.customer_id = 7 AND c.country = 'US' ORDER BY o.created_at")
	require.NoError(t, err)

	// orders.customer_id is served by idx_customer_status, customers.id by PRIMARY.
	require.Len(t, got.Existing, 2)
	assert.Equal(t, "idx_customer_status", got.Existing[0].MatchedIndexName)
	assert.Equal(t, "PRIMARY", got.Existing[1].MatchedIndexName)

	require.Len(t, got.Recommendations, 2)
	assert.Equal(t, "CREATE INDEX idx_customers_country ON customers (country);", got.Recommendations[0].CreateStatement)
	assert.Equal(t, "CREATE INDEX idx_orders_created_at ON orders (created_at);", got.Recommendations[1].CreateStatement)
	assert.Equal(t, 2, inst.findings["missing_index"])
}

func TestAnalysisService_RecommendIndexesMetadataError(t *testing.T) {
	t.Parallel()
	svc := newTestAnalysisService(&mockMetadata{err: errors.New("access denied")}, &mockExplainer{}, nil)

	_, err := svc.RecommendIndexes(context.Background(), "SELECT id FROM orders WHERE status = 'x'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading table metadata")
}

func TestAnalysisService_SuggestRewrite(t *testing.T) {
	t.Parallel()
	ex := &mockExplainer{plan: &domain.ExecutionPlan{Findings: []domain.PlanFinding{domain.Filesort()}}}
	svc := newTestAnalysisService(&mockMetadata{}, ex, nil)

	got, err := svc.SuggestRewrite(context.Background(), "SELECT id FROM products ORDER BY RAND() LIMIT 5")
	require.NoError(t, err)
	require.Len(t, got.AntiPatterns, 1)
	assert.Equal(t, domain.IssueOrderByRand, got.AntiPatterns[0].Issue)
	assert.Equal(t, []domain.PlanFinding{domain.Filesort()}, got.PlanFindings)
}

func TestAnalysisService_Offline(t *testing.T) {
	t.Parallel()
	svc := NewAnalysisService(domain.NewReadOnlyValidator(), nil, nil, nil, testLogger(), nil, nil)

	got, err := svc.AnalyzeQuery(context.Background(), "SELECT * FROM t WHERE a = 1 OR b = 2")
	require.NoError(t, err)
	assert.Nil(t, got.Plan)
	assert.Empty(t, got.Tables)
	assert.Len(t, got.AntiPatterns, 2)

	rw, err := svc.SuggestRewrite(context.Background(), "SELECT a FROM t")
	require.NoError(t, err)
	assert.NotNil(t, rw.PlanFindings)

	_, err = svc.ListTables(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestAnalysisService_DescribeTables(t *testing.T) {
	t.Parallel()
	svc := newTestAnalysisService(&mockMetadata{schema: ordersSchema()}, &mockExplainer{}, nil)

	schema, err := svc.DescribeTables(context.Background(), []string{"orders"})
	require.NoError(t, err)
	assert.Contains(t, schema, "orders")

	_, err = svc.DescribeTables(context.Background(), []string{"nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalysisService_CustomAnalyzer(t *testing.T) {
	t.Parallel()
	analyzer := domain.NewAnalyzer(
		domain.NewAntiPatternDetector(domain.WithDisabledIssues(domain.IssueSelectStar)),
		domain.NewComplexityScorer(domain.DefaultThresholds()),
	)
	svc := NewAnalysisService(domain.NewReadOnlyValidator(), analyzer, nil, nil, testLogger(), nil, nil)

	got, err := svc.AnalyzeQuery(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	assert.Empty(t, got.AntiPatterns)
}

func TestAnalysisService_AnalyzeStructure(t *testing.T) {
	t.Parallel()
	md := &mockMetadata{
		tables: []domain.TableSummary{
			{Name: "orders", Type: "table"},
			{Name: "customers", Type: "table"},
			{Name: "open_orders", Type: "view"},
		},
		schema: ordersSchema(),
	}
	inst := &countingInstrumentation{}
	svc := newTestAnalysisService(md, &mockExplainer{}, inst)

	report, err := svc.AnalyzeStructure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "customers"}, md.lastNames)
	require.Len(t, report.Tables, 2)
	assert.Equal(t, "customers", report.Tables[0].Name)
	assert.Equal(t, 3, report.Overview.Indexes)

	// Neither fixture marks its PRIMARY index with the primary kind.
	require.Len(t, report.Findings, 2)
	assert.Equal(t, domain.StructureMissingPrimaryKey, report.Findings[0].Issue)
	assert.Equal(t, 2, inst.findings["structure"])
}

func TestAnalysisService_AnalyzeStructureErrors(t *testing.T) {
	t.Parallel()

	svc := newTestAnalysisService(&mockMetadata{err: errors.New("access denied")}, &mockExplainer{}, nil)
	_, err := svc.AnalyzeStructure(context.Background())
	assert.ErrorContains(t, err, "access denied")

	offline := NewAnalysisService(domain.NewReadOnlyValidator(), nil, nil, nil, testLogger(), nil, nil)
	_, err = offline.AnalyzeStructure(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}
