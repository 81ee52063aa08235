package domain

import "strings"

// TableReference is a table named in a FROM or JOIN clause. Alias equals Name
// when the query gives none.
type TableReference struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// Reason explains why a column was proposed as an index candidate.
type Reason string

const (
	ReasonEqualityWhere         Reason = "EqualityWhere"
	ReasonPossibleEqualityWhere Reason = "PossibleEqualityWhere"
	ReasonJoinCondition         Reason = "JoinCondition"
	ReasonOrderBy               Reason = "OrderBy"
	ReasonPossibleOrderBy       Reason = "PossibleOrderBy"
	ReasonGroupBy               Reason = "GroupBy"
	ReasonPossibleGroupBy       Reason = "PossibleGroupBy"
)

// Speculative reports whether the reason comes from a broadcast (unqualified)
// column reference.
func (r Reason) Speculative() bool {
	switch r {
	case ReasonPossibleEqualityWhere, ReasonPossibleOrderBy, ReasonPossibleGroupBy:
		return true
	}
	return false
}

// Description returns the human-readable form of the reason.
func (r Reason) Description() string {
	switch r {
	case ReasonEqualityWhere:
		return "Equality condition in WHERE clause"
	case ReasonPossibleEqualityWhere:
		return "Possible equality condition in WHERE clause"
	case ReasonJoinCondition:
		return "Join condition"
	case ReasonOrderBy:
		return "ORDER BY clause"
	case ReasonPossibleOrderBy:
		return "Possible ORDER BY column"
	case ReasonGroupBy:
		return "GROUP BY clause"
	case ReasonPossibleGroupBy:
		return "Possible GROUP BY column"
	default:
		return string(r)
	}
}

// IndexCandidate is a proposed single-table index. Columns is never empty and
// its order is the intended composite-index order.
type IndexCandidate struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Reason  Reason   `json:"reason"`
}

// Column key roles.
const (
	KeyPrimary  = "PRI"
	KeyUnique   = "UNI"
	KeyMultiple = "MUL"
)

// IndexKindPrimary marks the primary key in ExistingIndex.Kind. Other kinds
// carry the access method reported by the database (BTREE, HASH, btree, gin).
const IndexKindPrimary = "PRIMARY"

// ExistingIndex describes a physical index. Columns keep the index's defined order.
type ExistingIndex struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Kind    string   `json:"kind,omitempty"`
	Unique  bool     `json:"unique"`
}

// ColumnMetadata describes a table column as reported by the catalog.
// KeyRole follows MySQL's COLUMN_KEY values: PRI, UNI, MUL or empty.
type ColumnMetadata struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
	KeyRole  string `json:"key_role,omitempty" yaml:"key_role,omitempty"`
	Comment  string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// TableStats holds catalog size estimates.
type TableStats struct {
	Engine         string `json:"engine,omitempty" yaml:"engine,omitempty"`
	ApproxRowCount int64  `json:"approx_row_count" yaml:"approx_row_count"`
	DataBytes      int64  `json:"data_bytes" yaml:"data_bytes"`
	IndexBytes     int64  `json:"index_bytes" yaml:"index_bytes"`
	SizeHuman      string `json:"size_human,omitempty" yaml:"-"`
}

// ForeignKey is one foreign key constraint. Columns and RefColumns pair up
// by position. RefColumns may be empty when the key targets the referenced
// table's primary key implicitly.
type ForeignKey struct {
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns    []string `json:"columns" yaml:"columns"`
	RefTable   string   `json:"ref_table" yaml:"ref_table"`
	RefColumns []string `json:"ref_columns" yaml:"ref_columns"`
	OnUpdate   string   `json:"on_update,omitempty" yaml:"on_update,omitempty"`
	OnDelete   string   `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
}

// TableMetadata is everything the matcher and reports need about one table.
type TableMetadata struct {
	Name        string           `json:"name" yaml:"-"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []ColumnMetadata `json:"columns" yaml:"columns"`
	Indexes     []ExistingIndex  `json:"indexes" yaml:"indexes"`
	ForeignKeys []ForeignKey     `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	Stats       TableStats       `json:"stats" yaml:"stats"`
}

// HasPrimaryKey reports whether a column is keyed PRI or an index is the
// primary key.
func (t TableMetadata) HasPrimaryKey() bool {
	for _, c := range t.Columns {
		if c.KeyRole == KeyPrimary {
			return true
		}
	}
	for _, idx := range t.Indexes {
		if idx.Kind == IndexKindPrimary {
			return true
		}
	}
	return false
}

// SchemaMetadata maps table name to its metadata.
type SchemaMetadata map[string]TableMetadata

// Lookup finds a table by name, ignoring case.
func (m SchemaMetadata) Lookup(table string) (TableMetadata, bool) {
	if md, ok := m[table]; ok {
		return md, true
	}
	for name, md := range m {
		if strings.EqualFold(name, table) {
			return md, true
		}
	}
	return TableMetadata{}, false
}

// TableSummary is a row of a table listing.
type TableSummary struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Engine         string `json:"engine,omitempty"`
	ApproxRowCount int64  `json:"approx_row_count"`
	TotalBytes     int64  `json:"total_bytes"`
	SizeHuman      string `json:"size_human,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

// DeriveKeyRoles fills empty column KeyRoles from the table's indexes using
// MySQL's COLUMN_KEY rules: PRI for primary key columns, UNI for the column
// of a single-column unique index, MUL for the leading column of any other
// index. Roles already set are kept.
func (t *TableMetadata) DeriveKeyRoles() {
	roles := make(map[string]string)
	for _, idx := range t.Indexes {
		if idx.Kind == IndexKindPrimary {
			for _, col := range idx.Columns {
				roles[strings.ToLower(col)] = KeyPrimary
			}
		}
	}
	for _, idx := range t.Indexes {
		if idx.Kind == IndexKindPrimary || len(idx.Columns) == 0 {
			continue
		}
		lead := strings.ToLower(idx.Columns[0])
		if roles[lead] != "" {
			continue
		}
		if idx.Unique && len(idx.Columns) == 1 {
			roles[lead] = KeyUnique
		} else {
			roles[lead] = KeyMultiple
		}
	}
	for i := range t.Columns {
		if t.Columns[i].KeyRole == "" {
			t.Columns[i].KeyRole = roles[strings.ToLower(t.Columns[i].Name)]
		}
	}
}
