package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzer_Inspect(t *testing.T) {
	t.Parallel()

	a := NewDefaultAnalyzer()
	report := a.Inspect("SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id WHERE c.country = 'US'")

	assert.Len(t, report.Structure.Tables, 2)
	assert.Equal(t, []Issue{IssueSelectStar}, issuesOf(report.AntiPatterns))
	assert.Equal(t, 1, report.Complexity.JoinCount)
	assert.Equal(t, 2, report.Complexity.Score)
}

func TestAnalyzer_InspectUsesConfiguration(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(
		NewAntiPatternDetector(WithDisabledIssues(IssueSelectStar)),
		NewComplexityScorer(Thresholds{MaxJoins: 0, MaxSubqueries: 2, MaxWhereConditions: 5, MaxOrderByColumns: 3}),
	)
	report := a.Inspect("SELECT * FROM a JOIN b ON a.id = b.id")
	assert.Empty(t, report.AntiPatterns)
	assert.Len(t, report.Complexity.Warnings, 1)
}

func TestAnalyzer_Indexes(t *testing.T) {
	t.Parallel()

	schema := SchemaMetadata{
		"orders": {
			Name: "orders",
			Indexes: []ExistingIndex{
				{Name: "PRIMARY", Columns: []string{"id"}, Unique: true},
				{Name: "idx_customer", Columns: []string{"customer_id", "created_at"}},
			},
		},
		"customers": {
			Name:    "customers",
			Indexes: []ExistingIndex{{Name: "PRIMARY", Columns: []string{"id"}, Unique: true}},
		},
	}

	report := NewDefaultAnalyzer().Indexes(
		"SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id "+
			"WHERE c.country = 'US' AND o.status = 'paid' ORDER BY o.created_at",
		schema)

	assert.Len(t, report.Candidates, 4)
	require.Len(t, report.Existing, 1)
	assert.Equal(t, "PRIMARY", report.Existing[0].MatchedIndexName)
	assert.Equal(t, "customers", report.Existing[0].Candidate.Table)

	require.Len(t, report.Recommendations, 3)
	assert.Equal(t, "CREATE INDEX idx_customers_country ON customers (country);", report.Recommendations[0].CreateStatement)
	assert.Equal(t, "CREATE INDEX idx_orders_status ON orders (status);", report.Recommendations[1].CreateStatement)
	assert.Equal(t, "CREATE INDEX idx_orders_created_at ON orders (created_at);", report.Recommendations[2].CreateStatement)
}

func TestAnalyzer_IndexesWithoutMetadata(t *testing.T) {
	t.Parallel()

	report := NewDefaultAnalyzer().Indexes("SELECT * FROM t WHERE t.a = 1", nil)
	assert.Len(t, report.Candidates, 1)
	assert.Empty(t, report.Existing)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Recommendations)
}

func TestReferencedTables(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"orders", "customers"},
		ReferencedTables("SELECT * FROM orders a JOIN customers c ON a.x = c.y JOIN orders b ON b.id = a.parent_id"))
	assert.Nil(t, ReferencedTables("SELECT 1"))
}

func TestPlanFindings(t *testing.T) {
	t.Parallel()

	f := FullTableScan("orders")
	assert.Equal(t, PlanFullTableScan, f.Pattern)
	assert.Equal(t, "The query performs a full table scan on table 'orders'.", f.Description)

	assert.Equal(t, "The query joins with table 'Unknown' without using an index.", JoinWithoutIndex("").Description)
	assert.Equal(t, PlanFilesort, Filesort().Pattern)
	assert.Equal(t, PlanTemporaryTable, TemporaryTable().Pattern)
}
