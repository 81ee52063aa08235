// Package snapshot serves table metadata from a YAML schema file so the
// analyzer can match indexes without a live database.
//
//	tables:
//	  orders:
//	    columns:
//	      - { name: id, type: int }
//	      - { name: customer_id, type: int }
//	    indexes:
//	      - { name: PRIMARY, columns: [id], kind: PRIMARY, unique: true }
//	      - { name: idx_customer, columns: [customer_id, created_at] }
//	    stats: { approx_row_count: 120000, data_bytes: 9437184 }
package snapshot

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/querylens/querylens/internal/core/domain"
	"gopkg.in/yaml.v3"
)

type file struct {
	Tables map[string]domain.TableMetadata `yaml:"tables"`
}

// Reader implements port.MetadataReader over a fixed schema.
type Reader struct {
	schema domain.SchemaMetadata
}

// LoadFile reads and parses a schema snapshot.
func LoadFile(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a schema snapshot. Table names come from the map keys and
// column key roles are derived from the indexes when not given.
func Parse(data []byte) (*Reader, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schema file: %w", err)
	}

	schema := make(domain.SchemaMetadata, len(f.Tables))
	for name, md := range f.Tables {
		if name == "" {
			return nil, fmt.Errorf("schema file: empty table name")
		}
		for i, idx := range md.Indexes {
			if len(idx.Columns) == 0 {
				return nil, fmt.Errorf("schema file: table %q index %d (%q) has no columns", name, i, idx.Name)
			}
		}
		md.Name = name
		md.DeriveKeyRoles()
		schema[name] = md
	}
	return &Reader{schema: schema}, nil
}

// NewReader wraps an in-memory schema.
func NewReader(schema domain.SchemaMetadata) *Reader {
	return &Reader{schema: schema}
}

// ListTables returns every table in name order.
func (r *Reader) ListTables(_ context.Context) ([]domain.TableSummary, error) {
	out := make([]domain.TableSummary, 0, len(r.schema))
	for _, md := range r.schema {
		total := md.Stats.DataBytes + md.Stats.IndexBytes
		out = append(out, domain.TableSummary{
			Name:           md.Name,
			Type:           "table",
			Engine:         md.Stats.Engine,
			ApproxRowCount: md.Stats.ApproxRowCount,
			TotalBytes:     total,
			SizeHuman:      humanize.IBytes(uint64(max(total, 0))),
			Comment:        md.Description,
		})
	}
	slices.SortFunc(out, func(a, b domain.TableSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// DescribeTables returns the named tables that exist in the snapshot,
// matching names case-insensitively.
func (r *Reader) DescribeTables(_ context.Context, names []string) (domain.SchemaMetadata, error) {
	out := make(domain.SchemaMetadata, len(names))
	for _, n := range names {
		if md, ok := r.schema.Lookup(n); ok {
			out[md.Name] = md
		}
	}
	return out, nil
}
