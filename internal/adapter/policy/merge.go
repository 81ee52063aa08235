package policy

import (
	"strings"

	"github.com/querylens/querylens/internal/core/domain"
)

// lookup finds the context for table, accepting either a bare key or a
// schema-qualified one whose last part matches.
func (c ContextConfig) lookup(table string) (TableContext, bool) {
	if tc, ok := c.Tables[table]; ok {
		return tc, true
	}
	for key, tc := range c.Tables {
		name := key
		if i := strings.LastIndexByte(key, '.'); i >= 0 {
			name = key[i+1:]
		}
		if strings.EqualFold(name, table) {
			return tc, true
		}
	}
	return TableContext{}, false
}

// MergeTableMetadata fills empty descriptions and column comments from the
// policy. Comments already present in the catalog win.
func MergeTableMetadata(md *domain.TableMetadata, ctx ContextConfig) {
	if md == nil {
		return
	}
	tc, ok := ctx.lookup(md.Name)
	if !ok {
		return
	}
	if md.Description == "" {
		md.Description = tc.Description
	}
	for i, col := range md.Columns {
		if cc, ok := tc.Columns[col.Name]; ok && col.Comment == "" {
			md.Columns[i].Comment = cc.Description
		}
	}
}

// MergeTableSummaries applies the same rule to a table listing.
func MergeTableSummaries(tables []domain.TableSummary, ctx ContextConfig) {
	for i, t := range tables {
		if tc, ok := ctx.lookup(t.Name); ok && t.Comment == "" {
			tables[i].Comment = tc.Description
		}
	}
}

// MaskSpec extracts the column-name to mask-type map used for query masking.
func MaskSpec(ctx ContextConfig) map[string]domain.MaskType {
	spec := make(map[string]domain.MaskType)
	for _, tc := range ctx.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				spec[col] = cc.Mask
			}
		}
	}
	return spec
}
