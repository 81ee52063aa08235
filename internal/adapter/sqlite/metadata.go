package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/querylens/querylens/internal/core/domain"
)

const queryListTables = `
	SELECT name, type
	FROM sqlite_schema
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

const queryResolveTable = `
	SELECT name
	FROM sqlite_schema
	WHERE type IN ('table', 'view') AND lower(name) = lower(?)
	LIMIT 1`

const queryColumns = `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`

const queryIndexList = `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`

const queryIndexInfo = `SELECT name FROM pragma_index_info(?) ORDER BY seqno`

const queryForeignKeys = `
	SELECT id, "table", "from", "to", on_update, on_delete
	FROM pragma_foreign_key_list(?)
	ORDER BY id, seq`

// MetadataReader reads schema metadata through sqlite_schema and the
// table-valued PRAGMA functions. SQLite keeps no size statistics, so Stats
// stays empty.
type MetadataReader struct {
	db      *sql.DB
	timeout time.Duration
}

func NewMetadataReader(db *sql.DB, timeout time.Duration) *MetadataReader {
	return &MetadataReader{db: db, timeout: timeout}
}

func (m *MetadataReader) ListTables(ctx context.Context) ([]domain.TableSummary, error) {
	var tables []domain.TableSummary
	err := inTx(ctx, m.db, true, m.timeout, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, queryListTables)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var t domain.TableSummary
			if err := rows.Scan(&t.Name, &t.Type); err != nil {
				return fmt.Errorf("scanning table row: %w", err)
			}
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
	err := inTx(ctx, m.db, true, m.timeout, func(tx *sql.Tx) error {
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
	err := tx.QueryRowContext(ctx, queryResolveTable, name).Scan(&md.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return md, false, nil
	}
	if err != nil {
		return md, false, fmt.Errorf("resolving table %q: %w", name, err)
	}

	var pk []pkColumn
	md.Columns, pk, err = fetchColumns(ctx, tx, md.Name)
	if err != nil {
		return md, false, err
	}
	md.Indexes, err = fetchIndexes(ctx, tx, md.Name)
	if err != nil {
		return md, false, err
	}
	md.Indexes = withRowidKey(md.Indexes, pk)
	md.DeriveKeyRoles()
	md.ForeignKeys, err = fetchForeignKeys(ctx, tx, md.Name)
	if err != nil {
		return md, false, err
	}
	return md, true, nil
}

// fetchForeignKeys groups pragma_foreign_key_list rows by constraint id.
// SQLite does not name foreign keys, and "to" is NULL when the key targets
// the parent's primary key implicitly.
func fetchForeignKeys(ctx context.Context, tx *sql.Tx, table string) ([]domain.ForeignKey, error) {
	rows, err := tx.QueryContext(ctx, queryForeignKeys, table)
	if err != nil {
		return nil, fmt.Errorf("fetching foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		fks  []domain.ForeignKey
		last = -1
	)
	for rows.Next() {
		var (
			id                 int
			parent, from       string
			to                 sql.NullString
			onUpdate, onDelete string
		)
		if err := rows.Scan(&id, &parent, &from, &to, &onUpdate, &onDelete); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		if id != last {
			last = id
			fks = append(fks, domain.ForeignKey{
				Columns:    []string{},
				RefTable:   parent,
				RefColumns: []string{},
				OnUpdate:   onUpdate,
				OnDelete:   onDelete,
			})
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, from)
		if to.Valid {
			fk.RefColumns = append(fk.RefColumns, to.String)
		}
	}
	return fks, rows.Err()
}

type pkColumn struct {
	name string
	pos  int
}

func fetchColumns(ctx context.Context, tx *sql.Tx, table string) ([]domain.ColumnMetadata, []pkColumn, error) {
	rows, err := tx.QueryContext(ctx, queryColumns, table)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		cols []domain.ColumnMetadata
		pk   []pkColumn
	)
	for rows.Next() {
		var (
			c       domain.ColumnMetadata
			notNull bool
			pkPos   int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pkPos); err != nil {
			return nil, nil, fmt.Errorf("scanning column: %w", err)
		}
		c.Nullable = !notNull && pkPos == 0
		if pkPos > 0 {
			pk = append(pk, pkColumn{name: c.Name, pos: pkPos})
		}
		cols = append(cols, c)
	}
	return cols, pk, rows.Err()
}

func fetchIndexes(ctx context.Context, tx *sql.Tx, table string) ([]domain.ExistingIndex, error) {
	rows, err := tx.QueryContext(ctx, queryIndexList, table)
	if err != nil {
		return nil, fmt.Errorf("fetching indexes: %w", err)
	}

	type listed struct {
		name   string
		unique bool
		origin string
	}
	var list []listed
	for rows.Next() {
		var l listed
		if err := rows.Scan(&l.name, &l.unique, &l.origin); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		list = append(list, l)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	indexes := []domain.ExistingIndex{}
	for _, l := range list {
		cols, err := indexColumns(ctx, tx, l.name)
		if err != nil {
			return nil, err
		}
		kind := "btree"
		if l.origin == "pk" {
			kind = domain.IndexKindPrimary
		}
		indexes = append(indexes, domain.ExistingIndex{Name: l.name, Columns: cols, Kind: kind, Unique: l.unique})
	}
	return indexes, nil
}

// indexColumns lists key columns in order. Expression keys have a NULL name
// and are skipped.
func indexColumns(ctx context.Context, tx *sql.Tx, index string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, queryIndexInfo, index)
	if err != nil {
		return nil, fmt.Errorf("fetching columns of index %q: %w", index, err)
	}
	defer func() { _ = rows.Close() }()

	cols := []string{}
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning index column: %w", err)
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

// withRowidKey adds the primary key of a rowid table, which pragma_index_list
// does not report because the table itself is the index.
func withRowidKey(indexes []domain.ExistingIndex, pk []pkColumn) []domain.ExistingIndex {
	if len(pk) == 0 {
		return indexes
	}
	for _, idx := range indexes {
		if idx.Kind == domain.IndexKindPrimary {
			return indexes
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
	cols := make([]string, len(pk))
	for i, c := range pk {
		cols[i] = c.name
	}
	primary := domain.ExistingIndex{Name: "PRIMARY", Columns: cols, Kind: domain.IndexKindPrimary, Unique: true}
	return append([]domain.ExistingIndex{primary}, indexes...)
}
