package postgres

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsToMaps collects at most limit rows (all when limit is zero) as maps
// keyed by column name. Values pgx decodes into types without a useful JSON
// form are converted first.
func rowsToMaps(rows pgx.Rows, limit int) ([]map[string]any, error) {
	var result []map[string]any
	for rows.Next() {
		if limit > 0 && len(result) == limit {
			break
		}
		row, err := pgx.RowToMap(rows)
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		for name, v := range row {
			row[name] = jsonValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		if f, err := x.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return v
	default:
		return v
	}
}
