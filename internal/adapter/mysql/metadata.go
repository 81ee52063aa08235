package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/querylens/querylens/internal/core/domain"
)

// MetadataReader reads table, column and index metadata for the current
// database from information_schema.
type MetadataReader struct {
	db      *sql.DB
	timeout time.Duration
}

func NewMetadataReader(db *sql.DB, timeout time.Duration) *MetadataReader {
	return &MetadataReader{db: db, timeout: timeout}
}

func (m *MetadataReader) ListTables(ctx context.Context) ([]domain.TableSummary, error) {
	var tables []domain.TableSummary
	err := inTx(ctx, m.db, true, m.timeout, 0, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, queryListTables)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var t domain.TableSummary
			if err := rows.Scan(&t.Name, &t.Type, &t.Engine, &t.ApproxRowCount, &t.TotalBytes, &t.Comment); err != nil {
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
	err := inTx(ctx, m.db, true, m.timeout, 0, func(tx *sql.Tx) error {
		for _, name := range names {
			md, found, err := describe(ctx, tx, name)
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

func describe(ctx context.Context, tx *sql.Tx, name string) (domain.TableMetadata, bool, error) {
	var md domain.TableMetadata
	err := tx.QueryRowContext(ctx, queryTableMeta, name).Scan(
		&md.Name, &md.Stats.Engine, &md.Stats.ApproxRowCount,
		&md.Stats.DataBytes, &md.Stats.IndexBytes, &md.Description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return md, false, nil
	}
	if err != nil {
		return md, false, fmt.Errorf("resolving table %q: %w", name, err)
	}
	md.Stats.SizeHuman = humanize.IBytes(uint64(md.Stats.DataBytes + md.Stats.IndexBytes))

	if md.Columns, err = fetchColumns(ctx, tx, md.Name); err != nil {
		return md, false, err
	}
	if md.Indexes, err = fetchIndexes(ctx, tx, md.Name); err != nil {
		return md, false, err
	}
	if md.ForeignKeys, err = fetchForeignKeys(ctx, tx, md.Name); err != nil {
		return md, false, err
	}
	return md, true, nil
}

func fetchForeignKeys(ctx context.Context, tx *sql.Tx, table string) ([]domain.ForeignKey, error) {
	rows, err := tx.QueryContext(ctx, queryForeignKeys, table)
	if err != nil {
		return nil, fmt.Errorf("fetching foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parts []foreignKeyPart
	for rows.Next() {
		var p foreignKeyPart
		if err := rows.Scan(&p.name, &p.column, &p.refTable, &p.refColumn, &p.onUpdate, &p.onDelete); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupForeignKeyParts(parts), nil
}

type foreignKeyPart struct {
	name      string
	column    string
	refTable  string
	refColumn string
	onUpdate  string
	onDelete  string
}

// groupForeignKeyParts folds ordered key columns into constraints.
func groupForeignKeyParts(parts []foreignKeyPart) []domain.ForeignKey {
	var fks []domain.ForeignKey
	pos := make(map[string]int)
	for _, p := range parts {
		i, ok := pos[p.name]
		if !ok {
			i = len(fks)
			pos[p.name] = i
			fks = append(fks, domain.ForeignKey{
				Name:       p.name,
				Columns:    []string{},
				RefTable:   p.refTable,
				RefColumns: []string{},
				OnUpdate:   p.onUpdate,
				OnDelete:   p.onDelete,
			})
		}
		fks[i].Columns = append(fks[i].Columns, p.column)
		fks[i].RefColumns = append(fks[i].RefColumns, p.refColumn)
	}
	return fks
}

func fetchColumns(ctx context.Context, tx *sql.Tx, table string) ([]domain.ColumnMetadata, error) {
	rows, err := tx.QueryContext(ctx, queryColumns, table)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []domain.ColumnMetadata
	for rows.Next() {
		var c domain.ColumnMetadata
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.KeyRole, &c.Comment); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func fetchIndexes(ctx context.Context, tx *sql.Tx, table string) ([]domain.ExistingIndex, error) {
	rows, err := tx.QueryContext(ctx, queryIndexes, table)
	if err != nil {
		return nil, fmt.Errorf("fetching indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parts []indexPart
	for rows.Next() {
		var p indexPart
		if err := rows.Scan(&p.name, &p.nonUnique, &p.kind, &p.column); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupIndexParts(parts), nil
}

type indexPart struct {
	name      string
	nonUnique bool
	kind      string
	column    sql.NullString
}

// groupIndexParts folds ordered key parts into indexes, keeping part order.
func groupIndexParts(parts []indexPart) []domain.ExistingIndex {
	indexes := []domain.ExistingIndex{}
	pos := make(map[string]int)
	for _, p := range parts {
		i, ok := pos[p.name]
		if !ok {
			kind := p.kind
			if p.name == "PRIMARY" {
				kind = domain.IndexKindPrimary
			}
			i = len(indexes)
			pos[p.name] = i
			indexes = append(indexes, domain.ExistingIndex{
				Name:    p.name,
				Columns: []string{},
				Kind:    kind,
				Unique:  !p.nonUnique,
			})
		}
		if p.column.Valid {
			indexes[i].Columns = append(indexes[i].Columns, p.column.String)
		}
	}
	return indexes
}
