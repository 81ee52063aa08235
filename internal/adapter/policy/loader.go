package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads and validates the YAML policy at path.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a policy document. Unknown keys are rejected so that a
// misspelled option does not silently fall back to its default. An empty
// document is an empty policy.
func Parse(data []byte) (*Policy, error) {
	var pol Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pol); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validateContext(pol.Context); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}
	if err := validateAnalysis(pol.Analysis); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}
	return &pol, nil
}

// validateContext rejects empty names and unknown masks. Masks apply by bare
// column name, so two tables may not give one column different masks.
func validateContext(c ContextConfig) error {
	masks := make(map[string]string)
	for _, table := range slices.Sorted(maps.Keys(c.Tables)) {
		if table == "" {
			return errors.New("context.tables contains an empty key")
		}
		columns := c.Tables[table].Columns
		for _, col := range slices.Sorted(maps.Keys(columns)) {
			if col == "" {
				return fmt.Errorf("context.tables[%q].columns contains an empty key", table)
			}
			mask := columns[col].Mask
			if !mask.Valid() {
				return fmt.Errorf("context.tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", table, col, mask)
			}
			if mask == "" {
				continue
			}
			if prev, ok := masks[col]; ok && prev != string(mask) {
				return fmt.Errorf("conflicting masks for column %q: %s and %s", col, prev, mask)
			}
			masks[col] = string(mask)
		}
	}
	return nil
}

func validateAnalysis(a AnalysisConfig) error {
	for _, rule := range a.DisabledRules {
		if !rule.Valid() {
			return fmt.Errorf("analysis.disabled_rules: unknown rule %q", rule)
		}
	}

	t := a.Thresholds
	for _, th := range []struct {
		key string
		v   *int
	}{
		{"max_joins", t.MaxJoins},
		{"max_subqueries", t.MaxSubqueries},
		{"max_where_conditions", t.MaxWhereConditions},
		{"max_order_by_columns", t.MaxOrderByColumns},
	} {
		if th.v != nil && *th.v < 0 {
			return fmt.Errorf("analysis.thresholds.%s must be >= 0, got %d", th.key, *th.v)
		}
	}
	return nil
}
