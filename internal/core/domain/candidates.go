package domain

import (
	"strings"

	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// QueryStructure is the clause-level view of a query: the tables it reads and
// the raw conditions and sort/group columns it uses.
type QueryStructure struct {
	Tables          []TableReference `json:"tables"`
	WhereConditions []string         `json:"where_conditions,omitempty"`
	JoinConditions  []string         `json:"join_conditions,omitempty"`
	OrderBy         []string         `json:"order_by,omitempty"`
	GroupBy         []string         `json:"group_by,omitempty"`
}

// ExtractStructure segments sql into its table references and conditions.
// Unparseable input yields an empty structure.
func ExtractStructure(sql string) QueryStructure {
	return structureOf(sqltext.Parse(sql))
}

func structureOf(stmt *sqltext.Statement) QueryStructure {
	qs := QueryStructure{Tables: tableRefs(stmt)}
	for _, pred := range sqltext.SplitConjuncts(stmt.Where, stmt.Depth) {
		qs.WhereConditions = append(qs.WhereConditions, pred.String())
	}
	for _, j := range stmt.Joins {
		if len(j.On) > 0 {
			qs.JoinConditions = append(qs.JoinConditions, sqltext.Text(j.On))
		}
		if len(j.Using) > 0 {
			qs.JoinConditions = append(qs.JoinConditions, "USING ("+strings.Join(j.Using, ", ")+")")
		}
	}
	for _, ref := range sqltext.SortColumns(stmt.OrderBy, stmt.Depth) {
		qs.OrderBy = append(qs.OrderBy, ref.String())
	}
	for _, ref := range sqltext.SortColumns(stmt.GroupBy, stmt.Depth) {
		qs.GroupBy = append(qs.GroupBy, ref.String())
	}
	return qs
}

func tableRefs(stmt *sqltext.Statement) []TableReference {
	refs := make([]TableReference, 0, len(stmt.Tables))
	for _, t := range stmt.Tables {
		refs = append(refs, TableReference{Name: t.Name, Alias: t.Alias})
	}
	return refs
}

// GenerateCandidates proposes single-column index candidates for sql, in
// clause order: WHERE equalities, join conditions, ORDER BY, GROUP BY.
// Columns appearing in several clauses yield one candidate per clause.
func GenerateCandidates(sql string) []IndexCandidate {
	return candidatesOf(sqltext.Parse(sql))
}

func candidatesOf(stmt *sqltext.Statement) []IndexCandidate {
	tables := tableRefs(stmt)
	resolver := NewAliasResolver(tables)
	g := &candidateSet{resolver: resolver}

	for _, pred := range sqltext.SplitConjuncts(stmt.Where, stmt.Depth) {
		if ref, ok := sqltext.EqualityColumn(pred.Tokens, pred.Depth); ok {
			g.add(ref, ReasonEqualityWhere, ReasonPossibleEqualityWhere)
		}
	}

	for _, j := range stmt.Joins {
		for _, pred := range sqltext.SplitConjuncts(j.On, stmt.Depth) {
			left, right, ok := sqltext.EqualityPair(pred.Tokens, pred.Depth)
			if !ok {
				continue
			}
			if col, ok := joinedSide(j.Table, left, right, resolver); ok {
				g.emit(j.Table.Name, col, ReasonJoinCondition)
			}
		}
		for _, col := range j.Using {
			g.emit(j.Table.Name, col, ReasonJoinCondition)
		}
	}

	for _, ref := range sqltext.SortColumns(stmt.OrderBy, stmt.Depth) {
		g.add(ref, ReasonOrderBy, ReasonPossibleOrderBy)
	}
	for _, ref := range sqltext.SortColumns(stmt.GroupBy, stmt.Depth) {
		g.add(ref, ReasonGroupBy, ReasonPossibleGroupBy)
	}
	return g.out
}

type candidateSet struct {
	resolver *AliasResolver
	out      []IndexCandidate
}

func (g *candidateSet) add(ref sqltext.ColumnRef, certain, possible Reason) {
	res := g.resolver.Resolve(ref)
	switch res.Kind {
	case Resolved:
		g.emit(res.Tables[0], ref.Column, certain)
	case Ambiguous:
		for _, table := range res.Tables {
			g.emit(table, ref.Column, possible)
		}
	}
}

func (g *candidateSet) emit(table, column string, reason Reason) {
	if table == "" || column == "" {
		return
	}
	g.out = append(g.out, IndexCandidate{Table: table, Columns: []string{column}, Reason: reason})
}

// joinedSide picks the column of an ON equality that belongs to the joined
// table. The joined alias wins over a resolved table name, which matters for
// self joins where both sides resolve to the same table.
func joinedSide(t sqltext.Table, left, right sqltext.ColumnRef, resolver *AliasResolver) (string, bool) {
	sides := []sqltext.ColumnRef{left, right}
	for _, side := range sides {
		if side.Qualifier != "" && strings.EqualFold(side.Qualifier, t.Alias) {
			return side.Column, true
		}
	}
	for _, side := range sides {
		if side.Qualifier == "" {
			continue
		}
		if table, ok := resolver.Table(side.Qualifier); ok && table == t.Name {
			return side.Column, true
		}
	}
	return "", false
}
