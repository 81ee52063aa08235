package policy

import (
	"fmt"

	"github.com/querylens/querylens/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file:
// a data dictionary with column masks, and tuning for the query analyzer.
type Policy struct {
	Context  ContextConfig  `yaml:"context"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ContextConfig maps table names (bare or schema-qualified) to business
// descriptions that are merged into table metadata.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides business descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML accepts either a plain description string or a mapping.
//
//	columns:
//	  email: "User email"
//	  ssn:
//	    description: "SSN"
//	    mask: "redact"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	type plain ColumnContext
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(p)
	return nil
}

// AnalysisConfig tunes the anti-pattern detector and complexity scorer.
// Unset thresholds keep their defaults.
type AnalysisConfig struct {
	DisabledRules []domain.Issue     `yaml:"disabled_rules"`
	Thresholds    ThresholdOverrides `yaml:"thresholds"`
}

type ThresholdOverrides struct {
	MaxJoins           *int `yaml:"max_joins"`
	MaxSubqueries      *int `yaml:"max_subqueries"`
	MaxWhereConditions *int `yaml:"max_where_conditions"`
	MaxOrderByColumns  *int `yaml:"max_order_by_columns"`
}

// Apply returns base with every set override replacing its field.
func (o ThresholdOverrides) Apply(base domain.Thresholds) domain.Thresholds {
	if o.MaxJoins != nil {
		base.MaxJoins = *o.MaxJoins
	}
	if o.MaxSubqueries != nil {
		base.MaxSubqueries = *o.MaxSubqueries
	}
	if o.MaxWhereConditions != nil {
		base.MaxWhereConditions = *o.MaxWhereConditions
	}
	if o.MaxOrderByColumns != nil {
		base.MaxOrderByColumns = *o.MaxOrderByColumns
	}
	return base
}

// Analyzer builds the query analyzer this configuration describes.
func (a AnalysisConfig) Analyzer() *domain.Analyzer {
	return domain.NewAnalyzer(
		domain.NewAntiPatternDetector(domain.WithDisabledIssues(a.DisabledRules...)),
		domain.NewComplexityScorer(a.Thresholds.Apply(domain.DefaultThresholds())),
	)
}
