package mysql_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/querylens/querylens/internal/adapter/mysql"
	"github.com/querylens/querylens/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testSchema = []string{
	`CREATE TABLE customers (
		id      INT AUTO_INCREMENT PRIMARY KEY,
		name    VARCHAR(100) NOT NULL,
		email   VARCHAR(255) UNIQUE COMMENT 'Contact address',
		country CHAR(2)
	) COMMENT 'Registered customers'`,
	`CREATE TABLE orders (
		id          INT AUTO_INCREMENT PRIMARY KEY,
		customer_id INT NOT NULL,
		status      VARCHAR(20) NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_customer_created (customer_id, created_at),
		CONSTRAINT fk_orders_customer FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
	)`,
	`INSERT INTO customers (name, email, country) VALUES
		('a', 'a@example.com', 'US'), ('b', 'b@example.com', 'US'),
		('c', 'c@example.com', 'DE'), ('d', 'd@example.com', 'FR')`,
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("user"),
		tcmysql.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	db, err := mysql.Open(ctx, dsn, mysql.PoolOptions{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range testSchema {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestExecutor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	executor := mysql.NewExecutor(db, true, 2, 10*time.Second)
	rows, err := executor.Execute(ctx, "SELECT id, name FROM customers ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2, "should be limited to maxRows=2")
	assert.Equal(t, "a", rows[0]["name"])

	rows, err = executor.Execute(ctx, "SHOW TABLES")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = executor.Execute(ctx, "INSERT INTO customers (name) VALUES ('x')")
	require.Error(t, err, "read-only transaction must reject writes")
}

func TestExecutor_Timeout(t *testing.T) {
	db := setupTestDB(t)
	executor := mysql.NewExecutor(db, true, 10, 1*time.Second)

	_, err := executor.Execute(context.Background(), "SELECT SLEEP(5) FROM customers")
	require.Error(t, err)
}

func TestMetadataReader(t *testing.T) {
	db := setupTestDB(t)
	reader := mysql.NewMetadataReader(db, 10*time.Second)
	ctx := context.Background()

	tables, err := reader.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "customers", tables[0].Name)
	assert.Equal(t, "InnoDB", tables[0].Engine)
	assert.Equal(t, "Registered customers", tables[0].Comment)

	schema, err := reader.DescribeTables(ctx, []string{"ORDERS", "customers", "nope"})
	require.NoError(t, err)
	require.Len(t, schema, 2)

	orders := schema["orders"]
	require.Len(t, orders.Indexes, 2)
	assert.Equal(t, domain.IndexKindPrimary, orders.Indexes[0].Kind)
	assert.Equal(t, []string{"customer_id", "created_at"}, orders.Indexes[1].Columns)
	assert.False(t, orders.Indexes[1].Unique)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, domain.ForeignKey{
		Name:       "fk_orders_customer",
		Columns:    []string{"customer_id"},
		RefTable:   "customers",
		RefColumns: []string{"id"},
		OnUpdate:   "NO ACTION",
		OnDelete:   "CASCADE",
	}, orders.ForeignKeys[0])
	assert.Empty(t, schema["customers"].ForeignKeys)

	for _, c := range schema["customers"].Columns {
		switch c.Name {
		case "id":
			assert.Equal(t, "PRI", c.KeyRole)
		case "email":
			assert.Equal(t, "UNI", c.KeyRole)
			assert.Equal(t, "Contact address", c.Comment)
			assert.True(t, c.Nullable)
		}
	}
}

func TestExplainer(t *testing.T) {
	db := setupTestDB(t)
	explainer := mysql.NewExplainer(db, 10*time.Second)

	plan, err := explainer.Explain(context.Background(), "SELECT * FROM customers WHERE country = 'US' ORDER BY name")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "mysql-json", plan.Format)
	assert.Contains(t, plan.Findings, domain.FullTableScan("customers"))
	assert.Contains(t, plan.Findings, domain.Filesort())
}

func TestWorkloadInspector(t *testing.T) {
	db := setupTestDB(t)
	inspector := mysql.NewWorkloadInspector(db, 10*time.Second)
	ctx := context.Background()

	queries, err := inspector.SlowQueries(ctx, 0, 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(queries), 5)

	settings, err := inspector.Settings(ctx, "max_execution_time")
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, "max_execution_time", settings[0].Name)

	pool, err := inspector.BufferPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BufferCacheInnoDB, pool.Kind)
	assert.Positive(t, pool.SizeBytes)
	assert.Positive(t, pool.PagesTotal)
	assert.Equal(t, int64(16384), pool.PageSize)

	space, err := inspector.TableSpace(ctx)
	require.NoError(t, err)
	require.Len(t, space, 2)
	for _, ts := range space {
		assert.Equal(t, "InnoDB", ts.Engine)
		assert.Positive(t, ts.DataBytes)
	}
}
