package domain

import (
	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// QueryReport is the metadata-free analysis of a query.
type QueryReport struct {
	Structure    QueryStructure       `json:"structure"`
	AntiPatterns []AntiPatternFinding `json:"anti_patterns"`
	Complexity   ComplexityMetrics    `json:"complexity"`
}

// IndexReport is the index analysis of a query against known metadata.
type IndexReport struct {
	Candidates      []IndexCandidate      `json:"candidates"`
	Existing        []ExistingMatch       `json:"existing"`
	Missing         []IndexCandidate      `json:"missing"`
	Recommendations []IndexRecommendation `json:"recommendations"`
}

// Analyzer bundles the configured detector and scorer. Each call parses the
// query once and shares the result between components.
type Analyzer struct {
	detector *AntiPatternDetector
	scorer   *ComplexityScorer
}

func NewAnalyzer(detector *AntiPatternDetector, scorer *ComplexityScorer) *Analyzer {
	return &Analyzer{detector: detector, scorer: scorer}
}

// NewDefaultAnalyzer enables every rule with default thresholds.
func NewDefaultAnalyzer() *Analyzer {
	return NewAnalyzer(NewAntiPatternDetector(), NewComplexityScorer(DefaultThresholds()))
}

func (a *Analyzer) Inspect(sql string) QueryReport {
	stmt := sqltext.Parse(sql)
	return QueryReport{
		Structure:    structureOf(stmt),
		AntiPatterns: a.detector.detectTokens(stmt.Tokens),
		Complexity:   a.scorer.scoreStatement(stmt),
	}
}

// Indexes generates candidates for sql and matches them against schema.
// Tables missing from schema contribute no candidates to either side.
func (a *Analyzer) Indexes(sql string, schema SchemaMetadata) IndexReport {
	candidates := candidatesOf(sqltext.Parse(sql))
	if candidates == nil {
		candidates = []IndexCandidate{}
	}
	match := MatchIndexes(candidates, schema)
	return IndexReport{
		Candidates:      candidates,
		Existing:        match.Existing,
		Missing:         match.Missing,
		Recommendations: Recommend(match.Missing),
	}
}

// ReferencedTables returns the distinct table names sql reads, in FROM order.
func ReferencedTables(sql string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range sqltext.Parse(sql).Tables {
		if !seen[t.Name] {
			seen[t.Name] = true
			out = append(out, t.Name)
		}
	}
	return out
}
