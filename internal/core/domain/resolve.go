package domain

import (
	"strings"

	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// ResolutionKind tags the outcome of resolving a column reference.
type ResolutionKind int

const (
	// Unresolved means the qualifier named no table in the query.
	Unresolved ResolutionKind = iota
	// Resolved means the reference belongs to exactly one table.
	Resolved
	// Ambiguous means the reference was unqualified and could belong to any
	// of Tables.
	Ambiguous
)

func (k ResolutionKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unresolved"
	}
}

// Resolution is the result of attributing a column to its table(s).
type Resolution struct {
	Kind   ResolutionKind
	Tables []string
}

// AliasResolver maps qualifiers to canonical table names. When two table
// references share an alias the first one wins.
type AliasResolver struct {
	tables []TableReference
	names  []string
}

// NewAliasResolver builds a resolver over the tables of one query.
func NewAliasResolver(tables []TableReference) *AliasResolver {
	r := &AliasResolver{tables: tables}
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if !seen[t.Name] {
			seen[t.Name] = true
			r.names = append(r.names, t.Name)
		}
	}
	return r
}

// Resolve attributes ref to a table. Unqualified references are broadcast to
// every known table.
func (r *AliasResolver) Resolve(ref sqltext.ColumnRef) Resolution {
	if ref.Qualifier == "" {
		if len(r.names) == 0 {
			return Resolution{Kind: Unresolved}
		}
		return Resolution{Kind: Ambiguous, Tables: r.names}
	}
	if table, ok := r.Table(ref.Qualifier); ok {
		return Resolution{Kind: Resolved, Tables: []string{table}}
	}
	return Resolution{Kind: Unresolved}
}

// Table returns the canonical name for alias.
func (r *AliasResolver) Table(alias string) (string, bool) {
	for _, t := range r.tables {
		if strings.EqualFold(t.Alias, alias) {
			return t.Name, true
		}
	}
	return "", false
}
