package domain

import (
	"fmt"

	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// Score weights.
const (
	joinWeight       = 2
	subqueryWeight   = 3
	aggregateWeight  = 1
	forceIndexWeight = 2
)

// Thresholds above which the scorer emits a warning.
type Thresholds struct {
	MaxJoins           int `yaml:"max_joins" json:"max_joins"`
	MaxSubqueries      int `yaml:"max_subqueries" json:"max_subqueries"`
	MaxWhereConditions int `yaml:"max_where_conditions" json:"max_where_conditions"`
	MaxOrderByColumns  int `yaml:"max_order_by_columns" json:"max_order_by_columns"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxJoins:           3,
		MaxSubqueries:      2,
		MaxWhereConditions: 5,
		MaxOrderByColumns:  3,
	}
}

// ComplexityMetrics is the weighted complexity of one query.
type ComplexityMetrics struct {
	Score               int      `json:"score"`
	JoinCount           int      `json:"join_count"`
	SubqueryCount       int      `json:"subquery_count"`
	AggregationCount    int      `json:"aggregation_count"`
	WhereConditionCount int      `json:"where_condition_count"`
	OrderByColumnCount  int      `json:"order_by_column_count"`
	ForceIndex          bool     `json:"force_index"`
	Warnings            []string `json:"warnings"`
}

// ComplexityScorer computes ComplexityMetrics. It is stateless apart from its
// thresholds.
type ComplexityScorer struct {
	thresholds Thresholds
}

func NewComplexityScorer(thresholds Thresholds) *ComplexityScorer {
	return &ComplexityScorer{thresholds: thresholds}
}

var aggregateFuncs = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MAX": true, "MIN": true}

// Score computes the complexity of sql. The score is
// 2*joins + 3*subqueries + aggregates + where connectives + ORDER BY commas,
// plus 2 when FORCE INDEX is used.
func (s *ComplexityScorer) Score(sql string) ComplexityMetrics {
	return s.scoreStatement(sqltext.Parse(sql))
}

func (s *ComplexityScorer) scoreStatement(stmt *sqltext.Statement) ComplexityMetrics {
	m := ComplexityMetrics{Warnings: []string{}}
	tokens := stmt.Tokens
	for i, tok := range tokens {
		next := at(tokens, i+1)
		switch {
		case tok.Is("JOIN") || tok.Is("STRAIGHT_JOIN"):
			m.JoinCount++
		case tok.Kind == sqltext.LParen && next.Is("SELECT"):
			m.SubqueryCount++
		case tok.Kind == sqltext.Word && aggregateFuncs[tok.Upper] && next.Kind == sqltext.LParen:
			m.AggregationCount++
		case tok.Is("FORCE") && (next.Is("INDEX") || next.Is("KEY")):
			m.ForceIndex = true
		}
	}

	connectives := countConnectives(stmt.Where, stmt.Depth)
	m.WhereConditionCount = connectives
	commas := 0
	for _, tok := range stmt.OrderBy {
		if tok.Depth == stmt.Depth && tok.Kind == sqltext.Comma {
			commas++
		}
	}
	if len(stmt.OrderBy) > 0 {
		m.OrderByColumnCount = commas + 1
	}

	m.Score = joinWeight*m.JoinCount +
		subqueryWeight*m.SubqueryCount +
		aggregateWeight*m.AggregationCount +
		connectives + commas
	if m.ForceIndex {
		m.Score += forceIndexWeight
	}

	t := s.thresholds
	if m.JoinCount > t.MaxJoins {
		m.Warnings = append(m.Warnings, fmt.Sprintf("Query contains %d joins - consider simplifying", m.JoinCount))
	}
	if m.SubqueryCount > t.MaxSubqueries {
		m.Warnings = append(m.Warnings, fmt.Sprintf("Query contains %d subqueries - consider restructuring", m.SubqueryCount))
	}
	if m.ForceIndex {
		m.Warnings = append(m.Warnings, "Query uses FORCE INDEX - consider if this is necessary")
	}
	if m.WhereConditionCount > t.MaxWhereConditions {
		m.Warnings = append(m.Warnings, fmt.Sprintf("Complex WHERE clause with %d conditions", m.WhereConditionCount))
	}
	if m.OrderByColumnCount > t.MaxOrderByColumns {
		m.Warnings = append(m.Warnings, fmt.Sprintf("ORDER BY with %d columns may impact performance", m.OrderByColumnCount))
	}
	return m
}

// countConnectives counts AND/OR at depth, skipping the AND of BETWEEN.
func countConnectives(tokens []sqltext.Token, depth int) int {
	n := 0
	between := false
	for _, tok := range tokens {
		if tok.Depth != depth {
			continue
		}
		switch {
		case tok.Is("BETWEEN"):
			between = true
		case tok.Is("AND") && between:
			between = false
		case tok.Is("AND") || tok.Is("OR"):
			n++
		}
	}
	return n
}
