package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	yaml := `
context:
  tables:
    shop.orders:
      description: "Customer orders"
      columns:
        total: "Order total in cents"
    customers:
      description: "Customer accounts"
`
	pol, err := LoadFromFile(writeTempFile(t, yaml))
	require.NoError(t, err)
	assert.Len(t, pol.Context.Tables, 2)

	orders := pol.Context.Tables["shop.orders"]
	assert.Equal(t, "Customer orders", orders.Description)
	assert.Equal(t, "Order total in cents", orders.Columns["total"].Description)
	assert.Empty(t, orders.Columns["total"].Mask)
	assert.Empty(t, pol.Analysis.DisabledRules)
}

func TestLoadFromFile_WithMasks(t *testing.T) {
	t.Parallel()
	yaml := `
context:
  tables:
    customers:
      columns:
        email:
          description: "Customer email"
          mask: "redact"
        ssn:
          mask: "null"
        phone: "Phone"
`
	pol, err := LoadFromFile(writeTempFile(t, yaml))
	require.NoError(t, err)

	customers := pol.Context.Tables["customers"]
	assert.Equal(t, domain.MaskRedact, customers.Columns["email"].Mask)
	assert.Equal(t, "Customer email", customers.Columns["email"].Description)
	assert.Equal(t, domain.MaskNull, customers.Columns["ssn"].Mask)
	assert.Equal(t, "Phone", customers.Columns["phone"].Description)
}

func TestLoadFromFile_Analysis(t *testing.T) {
	t.Parallel()
	yaml := `
analysis:
  disabled_rules: ["OR Conditions", "SELECT *"]
  thresholds:
    max_joins: 6
    max_order_by_columns: 1
`
	pol, err := LoadFromFile(writeTempFile(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, []domain.Issue{domain.IssueOrConditions, domain.IssueSelectStar}, pol.Analysis.DisabledRules)

	got := pol.Analysis.Thresholds.Apply(domain.DefaultThresholds())
	assert.Equal(t, domain.Thresholds{
		MaxJoins:           6,
		MaxSubqueries:      2,
		MaxWhereConditions: 5,
		MaxOrderByColumns:  1,
	}, got)
}

func TestAnalysisConfig_Analyzer(t *testing.T) {
	t.Parallel()

	one := 1
	cfg := AnalysisConfig{
		DisabledRules: []domain.Issue{domain.IssueSelectStar},
		Thresholds:    ThresholdOverrides{MaxOrderByColumns: &one},
	}
	report := cfg.Analyzer().Inspect("SELECT * FROM t ORDER BY a, b")
	assert.Empty(t, report.AntiPatterns)
	assert.Equal(t, []string{"ORDER BY with 2 columns may impact performance"}, report.Complexity.Warnings)
}

func TestLoadFromFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name: "invalid mask",
			yaml: `
context:
  tables:
    users:
      columns:
        email:
          mask: "encrypt"
`,
			wantErr: []string{"invalid value", "encrypt"},
		},
		{
			name:    "invalid yaml",
			yaml:    "context:\n  tables: [invalid",
			wantErr: []string{"parsing policy YAML"},
		},
		{
			name: "empty table key",
			yaml: `
context:
  tables:
    "":
      description: "bad key"
`,
			wantErr: []string{"empty key"},
		},
		{
			name: "empty column key",
			yaml: `
context:
  tables:
    users:
      columns:
        "": "bad column key"
`,
			wantErr: []string{"empty key"},
		},
		{
			name: "conflicting masks",
			yaml: `
context:
  tables:
    users:
      columns:
        email:
          mask: "redact"
    orders:
      columns:
        email:
          mask: "hash"
`,
			wantErr: []string{"conflicting masks", "email"},
		},
		{
			name: "unknown rule",
			yaml: `
analysis:
  disabled_rules: ["Cartesian Product"]
`,
			wantErr: []string{"unknown rule", "Cartesian Product"},
		},
		{
			name: "misspelled key",
			yaml: `
analysis:
  treshold:
    max_joins: 2
`,
			wantErr: []string{"parsing policy YAML", "treshold"},
		},
		{
			name: "negative threshold",
			yaml: `
analysis:
  thresholds:
    max_subqueries: -1
`,
			wantErr: []string{"max_subqueries"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromFile(writeTempFile(t, tt.yaml))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadFromFile_SameMaskNoConflict(t *testing.T) {
	t.Parallel()
	yaml := `
context:
  tables:
    users:
      columns:
        email:
          mask: "redact"
    orders:
      columns:
        email:
          mask: "redact"
`
	pol, err := LoadFromFile(writeTempFile(t, yaml))
	require.NoError(t, err)
	assert.Len(t, pol.Context.Tables, 2)
}

func TestLoadFromFile_NotFound(t *testing.T) {
	t.Parallel()
	_, err := LoadFromFile("/nonexistent/policy.yaml")
	require.Error(t, err)
}

func TestMergeTableMetadata(t *testing.T) {
	t.Parallel()

	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"shop.users": {
				Description: "Platform users",
				Columns: map[string]ColumnContext{
					"email": {Description: "User email address"},
					"name":  {Description: "Display name"},
				},
			},
		},
	}
	md := &domain.TableMetadata{
		Name: "users",
		Columns: []domain.ColumnMetadata{
			{Name: "email"},
			{Name: "name", Comment: "set in the catalog"},
			{Name: "id"},
		},
	}

	MergeTableMetadata(md, ctx)
	assert.Equal(t, "Platform users", md.Description)
	assert.Equal(t, "User email address", md.Columns[0].Comment)
	assert.Equal(t, "set in the catalog", md.Columns[1].Comment, "catalog comments win")
	assert.Empty(t, md.Columns[2].Comment)

	MergeTableMetadata(nil, ctx)
}

func TestMergeTableMetadata_NoMatchingTable(t *testing.T) {
	t.Parallel()

	md := &domain.TableMetadata{Name: "orders", Description: "original"}
	MergeTableMetadata(md, ContextConfig{Tables: map[string]TableContext{"users": {Description: "x"}}})
	assert.Equal(t, "original", md.Description)
}

func TestMergeTableSummaries(t *testing.T) {
	t.Parallel()

	tables := []domain.TableSummary{
		{Name: "users"},
		{Name: "orders", Comment: "catalog comment"},
		{Name: "items"},
	}
	MergeTableSummaries(tables, ContextConfig{Tables: map[string]TableContext{
		"users":  {Description: "Platform users"},
		"orders": {Description: "ignored"},
	}})
	assert.Equal(t, "Platform users", tables[0].Comment)
	assert.Equal(t, "catalog comment", tables[1].Comment)
	assert.Empty(t, tables[2].Comment)
}

func TestMaskSpec(t *testing.T) {
	t.Parallel()

	ctx := ContextConfig{
		Tables: map[string]TableContext{
			"users": {
				Columns: map[string]ColumnContext{
					"email": {Description: "User email", Mask: domain.MaskRedact},
					"name":  {Description: "Full name"},
				},
			},
			"orders": {
				Columns: map[string]ColumnContext{
					"total": {Description: "Order total"},
				},
			},
		},
	}
	assert.Equal(t, map[string]domain.MaskType{"email": domain.MaskRedact}, MaskSpec(ctx))
	assert.Empty(t, MaskSpec(ContextConfig{}))
}

func TestMetadataReader(t *testing.T) {
	t.Parallel()

	inner := &mockMetadata{
		tables: []domain.TableSummary{{Name: "users"}},
		schema: domain.SchemaMetadata{
			"users": {Name: "users", Columns: []domain.ColumnMetadata{{Name: "email"}}},
		},
	}
	pol := &Policy{Context: ContextConfig{Tables: map[string]TableContext{
		"users": {
			Description: "Platform users",
			Columns:     map[string]ColumnContext{"email": {Description: "Login email"}},
		},
	}}}
	r := NewMetadataReader(inner, pol)

	tables, err := r.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Platform users", tables[0].Comment)

	schema, err := r.DescribeTables(context.Background(), []string{"users"})
	require.NoError(t, err)
	assert.Equal(t, "Platform users", schema["users"].Description)
	assert.Equal(t, "Login email", schema["users"].Columns[0].Comment)
	assert.Equal(t, []string{"users"}, inner.lastNames)
}

func TestMetadataReader_PropagatesErrors(t *testing.T) {
	t.Parallel()

	r := NewMetadataReader(&mockMetadata{err: errors.New("boom")}, &Policy{})
	_, err := r.ListTables(context.Background())
	require.Error(t, err)
	_, err = r.DescribeTables(context.Background(), []string{"x"})
	require.Error(t, err)
}

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
	return m.schema, nil
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"", "# nothing configured yet\n"} {
		pol, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Empty(t, pol.Context.Tables)
		assert.Empty(t, pol.Analysis.DisabledRules)
	}
}
