package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = []string{
	`CREATE TABLE customers (
		id      INTEGER PRIMARY KEY,
		name    TEXT NOT NULL,
		email   TEXT UNIQUE,
		country TEXT
	)`,
	`CREATE TABLE orders (
		id          INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		status      TEXT NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX idx_orders_customer_created ON orders(customer_id, created_at)`,
	`CREATE TABLE tags (
		name  TEXT,
		scope TEXT,
		PRIMARY KEY (scope, name)
	)`,
	`CREATE VIEW us_customers AS SELECT * FROM customers WHERE country = 'US'`,
	`INSERT INTO customers (name, email, country) VALUES
		('a', 'a@example.com', 'US'), ('b', 'b@example.com', 'US'), ('c', 'c@example.com', 'DE')`,
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range testSchema {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestPathFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "sqlite:///var/lib/app.db", want: "/var/lib/app.db"},
		{url: "sqlite://app.db", want: "app.db"},
		{url: "sqlite://:memory:", want: ":memory:"},
		{url: "sqlite://", wantErr: true},
		{url: "postgres://localhost/db", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			got, err := PathFromURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	executor := NewExecutor(db, true, 2, 5*time.Second)
	rows, err := executor.Execute(ctx, "SELECT id, name FROM customers ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["name"])

	rows, err = executor.Execute(ctx, "EXPLAIN QUERY PLAN SELECT * FROM customers")
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestInTx_QueryOnly(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	err := inTx(ctx, db, true, 5*time.Second, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO customers (name) VALUES ('d')")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")

	err = inTx(ctx, db, false, 5*time.Second, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO customers (name) VALUES ('d')")
		return err
	})
	require.NoError(t, err)
}

func TestMetadataReader(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	reader := NewMetadataReader(db, 5*time.Second)
	ctx := context.Background()

	tables, err := reader.ListTables(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		names = append(names, tbl.Name+":"+tbl.Type)
	}
	assert.Equal(t, []string{"customers:table", "orders:table", "tags:table", "us_customers:view"}, names)

	schema, err := reader.DescribeTables(ctx, []string{"Orders", "customers", "tags", "missing"})
	require.NoError(t, err)
	require.Len(t, schema, 3)

	orders := schema["orders"]
	require.Len(t, orders.Indexes, 2)
	assert.Equal(t, domain.ExistingIndex{
		Name: "PRIMARY", Columns: []string{"id"}, Kind: domain.IndexKindPrimary, Unique: true,
	}, orders.Indexes[0])
	assert.Equal(t, []string{"customer_id", "created_at"}, orders.Indexes[1].Columns)
	assert.Equal(t, []domain.ForeignKey{{
		Columns:    []string{"customer_id"},
		RefTable:   "customers",
		RefColumns: []string{"id"},
		OnUpdate:   "NO ACTION",
		OnDelete:   "NO ACTION",
	}}, orders.ForeignKeys)
	assert.Empty(t, schema["customers"].ForeignKeys)

	roles := make(map[string]string)
	for _, c := range schema["customers"].Columns {
		roles[c.Name] = c.KeyRole
	}
	assert.Equal(t, map[string]string{"id": "PRI", "name": "", "email": "UNI", "country": ""}, roles)

	tags := schema["tags"]
	require.Len(t, tags.Indexes, 1)
	assert.Equal(t, domain.IndexKindPrimary, tags.Indexes[0].Kind)
	assert.Equal(t, []string{"scope", "name"}, tags.Indexes[0].Columns)
}

func TestExplainer(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	explainer := NewExplainer(db, 5*time.Second)
	ctx := context.Background()

	plan, err := explainer.Explain(ctx, "SELECT * FROM customers WHERE country = 'US' ORDER BY name")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "sqlite-query-plan", plan.Format)
	assert.Contains(t, plan.Findings, domain.FullTableScan("customers"))
	assert.Contains(t, plan.Findings, domain.Filesort())

	plan, err = explainer.Explain(ctx, "SELECT * FROM orders WHERE customer_id = 1")
	require.NoError(t, err)
	assert.Empty(t, plan.Findings)

	plan, err = explainer.Explain(ctx, "EXPLAIN SELECT 1")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestDecodePlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows []planRow
		want []domain.PlanFinding
	}{
		{
			name: "full scan",
			rows: []planRow{{ID: 2, Detail: "SCAN users"}},
			want: []domain.PlanFinding{domain.FullTableScan("users")},
		},
		{
			name: "legacy format with alias",
			rows: []planRow{{ID: 2, Detail: "SCAN TABLE users AS u"}},
			want: []domain.PlanFinding{domain.FullTableScan("users")},
		},
		{
			name: "covering index scan",
			rows: []planRow{{ID: 2, Detail: "SCAN users USING COVERING INDEX idx_email"}},
			want: nil,
		},
		{
			name: "join without index",
			rows: []planRow{
				{ID: 3, Detail: "SEARCH c USING INTEGER PRIMARY KEY (rowid=?)"},
				{ID: 5, Detail: "SCAN o"},
			},
			want: []domain.PlanFinding{domain.JoinWithoutIndex("o")},
		},
		{
			name: "temp b-trees",
			rows: []planRow{
				{ID: 2, Detail: "SCAN orders"},
				{ID: 4, Detail: "USE TEMP B-TREE FOR GROUP BY"},
				{ID: 6, Detail: "USE TEMP B-TREE FOR ORDER BY"},
			},
			want: []domain.PlanFinding{domain.FullTableScan("orders"), domain.TemporaryTable(), domain.Filesort()},
		},
		{
			name: "subquery and constant rows ignored",
			rows: []planRow{
				{ID: 2, Detail: "MATERIALIZE sub"},
				{ID: 3, Parent: 2, Detail: "SCAN CONSTANT ROW"},
				{ID: 7, Detail: "SCAN (subquery-1)"},
			},
			want: []domain.PlanFinding{domain.TemporaryTable()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, decodePlan(tt.rows))
		})
	}
}

func TestWorkloadInspector(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	inspector := NewWorkloadInspector(db, 5*time.Second)
	ctx := context.Background()

	_, err := inspector.SlowQueries(ctx, 0, 10)
	assert.True(t, errors.Is(err, domain.ErrUnsupported))
	_, err = inspector.BufferPool(ctx)
	assert.True(t, errors.Is(err, domain.ErrUnsupported))
	_, err = inspector.TableSpace(ctx)
	assert.True(t, errors.Is(err, domain.ErrUnsupported))

	settings, err := inspector.Settings(ctx, "journal")
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, "journal_mode", settings[0].Name)
	assert.Equal(t, "delete", settings[0].Value)

	all, err := inspector.Settings(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, len(pragmas))
}
