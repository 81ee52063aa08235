package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/querylens/querylens/internal/core/domain"
)

// MetadataReader reads table, column and index metadata from the PostgreSQL
// catalog, restricted to the configured schemas.
type MetadataReader struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
	timeout time.Duration
}

func NewMetadataReader(pool *pgxpool.Pool, schemas []string, timeout time.Duration) *MetadataReader {
	return &MetadataReader{pool: pool, schemas: schemas, timeout: timeout}
}

func (m *MetadataReader) ListTables(ctx context.Context) ([]domain.TableSummary, error) {
	filter, args := schemaFilter(m.schemas, "t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	var tables []domain.TableSummary
	err := inTx(ctx, m.pool, pgx.ReadOnly, m.timeout, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t domain.TableSummary
			if err := rows.Scan(&t.Name, &t.Type, &t.ApproxRowCount, &t.TotalBytes, &t.Comment); err != nil {
				return fmt.Errorf("scanning table row: %w", err)
			}
			t.SizeHuman = humanize.IBytes(uint64(t.TotalBytes))
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func (m *MetadataReader) DescribeTables(ctx context.Context, names []string) (domain.SchemaMetadata, error) {
	schema := make(domain.SchemaMetadata, len(names))
	err := inTx(ctx, m.pool, pgx.ReadOnly, m.timeout, func(tx pgx.Tx) error {
		for _, name := range names {
			md, found, err := m.describe(ctx, tx, name)
			if err != nil {
				return err
			}
			if found {
				schema[md.Name] = md
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (m *MetadataReader) describe(ctx context.Context, tx pgx.Tx, name string) (domain.TableMetadata, bool, error) {
	filter, filterArgs := schemaFilter(m.schemas, "t.table_schema", 2)
	args := append([]any{name}, filterArgs...)

	var md domain.TableMetadata
	var schemaName string
	err := tx.QueryRow(ctx, fmt.Sprintf(queryTableMeta, filter), args...).Scan(&schemaName, &md.Name, &md.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return md, false, nil
	}
	if err != nil {
		return md, false, fmt.Errorf("resolving table %q: %w", name, err)
	}

	if md.Columns, err = fetchColumns(ctx, tx, schemaName, md.Name); err != nil {
		return md, false, err
	}
	if md.Indexes, err = fetchIndexes(ctx, tx, schemaName, md.Name); err != nil {
		return md, false, err
	}
	md.DeriveKeyRoles()
	if md.ForeignKeys, err = fetchForeignKeys(ctx, tx, schemaName, md.Name); err != nil {
		return md, false, err
	}

	// Views have no pg_class size rows worth reporting.
	err = tx.QueryRow(ctx, queryTableSize, schemaName, md.Name).
		Scan(&md.Stats.ApproxRowCount, &md.Stats.DataBytes, &md.Stats.IndexBytes)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return md, false, fmt.Errorf("fetching size of %q: %w", md.Name, err)
	}
	md.Stats.SizeHuman = humanize.IBytes(uint64(md.Stats.DataBytes + md.Stats.IndexBytes))

	return md, true, nil
}

func fetchColumns(ctx context.Context, tx pgx.Tx, schema, table string) ([]domain.ColumnMetadata, error) {
	rows, err := tx.Query(ctx, queryColumns, schema, table)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer rows.Close()

	var cols []domain.ColumnMetadata
	for rows.Next() {
		var c domain.ColumnMetadata
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.Comment); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func fetchIndexes(ctx context.Context, tx pgx.Tx, schema, table string) ([]domain.ExistingIndex, error) {
	rows, err := tx.Query(ctx, queryIndexes, schema, table)
	if err != nil {
		return nil, fmt.Errorf("fetching indexes: %w", err)
	}
	defer rows.Close()

	indexes := []domain.ExistingIndex{}
	for rows.Next() {
		var (
			idx     domain.ExistingIndex
			primary bool
			method  string
		)
		if err := rows.Scan(&idx.Name, &idx.Unique, &primary, &method, &idx.Columns); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		idx.Kind = method
		if primary {
			idx.Kind = domain.IndexKindPrimary
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func fetchForeignKeys(ctx context.Context, tx pgx.Tx, schema, table string) ([]domain.ForeignKey, error) {
	rows, err := tx.Query(ctx, queryForeignKeys, schema, table)
	if err != nil {
		return nil, fmt.Errorf("fetching foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []domain.ForeignKey
	for rows.Next() {
		var fk domain.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Columns, &fk.RefTable, &fk.RefColumns, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
