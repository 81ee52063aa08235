package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ExistingMatch pairs a candidate with the index that already serves it.
type ExistingMatch struct {
	Candidate        IndexCandidate `json:"candidate"`
	MatchedIndexName string         `json:"matched_index_name"`
}

// MatchResult partitions candidates into those served by an existing index and
// those that are not.
type MatchResult struct {
	Existing []ExistingMatch `json:"existing"`
	Missing  []IndexCandidate `json:"missing"`
}

// MatchIndexes classifies each candidate against the indexes in schema. An
// index satisfies a candidate when the candidate's columns are a leading
// prefix of the index's columns. The first satisfying index wins. Candidates
// for tables absent from schema are dropped.
func MatchIndexes(candidates []IndexCandidate, schema SchemaMetadata) MatchResult {
	result := MatchResult{
		Existing: []ExistingMatch{},
		Missing:  []IndexCandidate{},
	}
	for _, c := range candidates {
		table, ok := schema.Lookup(c.Table)
		if !ok {
			continue
		}
		if idx, ok := firstCovering(c.Columns, table.Indexes); ok {
			result.Existing = append(result.Existing, ExistingMatch{Candidate: c, MatchedIndexName: idx.Name})
			continue
		}
		result.Missing = append(result.Missing, c)
	}
	return result
}

func firstCovering(columns []string, indexes []ExistingIndex) (ExistingIndex, bool) {
	for _, idx := range indexes {
		if IsPrefix(columns, idx.Columns) {
			return idx, true
		}
	}
	return ExistingIndex{}, false
}

// IsPrefix reports whether columns equals the leading len(columns) entries of
// indexColumns, comparing names case-insensitively. An empty candidate is
// never a prefix.
func IsPrefix(columns, indexColumns []string) bool {
	if len(columns) == 0 || len(columns) > len(indexColumns) {
		return false
	}
	for i, col := range columns {
		if !strings.EqualFold(col, indexColumns[i]) {
			return false
		}
	}
	return true
}

// IndexRecommendation folds identical missing candidates into one proposed index.
type IndexRecommendation struct {
	Table           string   `json:"table"`
	Columns         []string `json:"columns"`
	Reasons         []Reason `json:"reasons"`
	Rationale       []string `json:"rationale"`
	Speculative     bool     `json:"speculative"`
	CreateStatement string   `json:"create_statement"`
}

// Recommend groups missing candidates by table and column list, keeping first
// appearance order. A recommendation is speculative only when every reason
// behind it is.
func Recommend(missing []IndexCandidate) []IndexRecommendation {
	recs := []IndexRecommendation{}
	pos := make(map[string]int)
	for _, c := range missing {
		key := strings.ToLower(c.Table + "\x00" + strings.Join(c.Columns, "\x00"))
		if i, ok := pos[key]; ok {
			rec := &recs[i]
			if !slices.Contains(rec.Reasons, c.Reason) {
				rec.Reasons = append(rec.Reasons, c.Reason)
				rec.Rationale = append(rec.Rationale, c.Reason.Description())
			}
			rec.Speculative = rec.Speculative && c.Reason.Speculative()
			continue
		}
		pos[key] = len(recs)
		recs = append(recs, IndexRecommendation{
			Table:           c.Table,
			Columns:         c.Columns,
			Reasons:         []Reason{c.Reason},
			Rationale:       []string{c.Reason.Description()},
			Speculative:     c.Reason.Speculative(),
			CreateStatement: CreateIndexStatement(c.Table, c.Columns),
		})
	}
	return recs
}

// CreateIndexStatement renders the DDL for a proposed index.
func CreateIndexStatement(table string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s (%s);",
		table, strings.Join(columns, "_"), table, strings.Join(columns, ", "))
}
