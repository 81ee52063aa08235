package policy

import (
	"context"

	"github.com/querylens/querylens/internal/core/domain"
	"github.com/querylens/querylens/internal/core/port"
)

// MetadataReader decorates a port.MetadataReader with the policy's data
// dictionary.
type MetadataReader struct {
	inner  port.MetadataReader
	policy *Policy
}

func NewMetadataReader(inner port.MetadataReader, pol *Policy) *MetadataReader {
	return &MetadataReader{inner: inner, policy: pol}
}

func (r *MetadataReader) ListTables(ctx context.Context) ([]domain.TableSummary, error) {
	tables, err := r.inner.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	MergeTableSummaries(tables, r.policy.Context)
	return tables, nil
}

func (r *MetadataReader) DescribeTables(ctx context.Context, names []string) (domain.SchemaMetadata, error) {
	schema, err := r.inner.DescribeTables(ctx, names)
	if err != nil {
		return nil, err
	}
	for name, md := range schema {
		MergeTableMetadata(&md, r.policy.Context)
		schema[name] = md
	}
	return schema, nil
}
