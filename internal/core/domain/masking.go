package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/querylens/querylens/internal/core/domain/sqltext"
)

// MaskType is how a sensitive column is rewritten in query results.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid accepts the known strategies and the empty "no mask" value.
func (m MaskType) Valid() bool {
	switch m {
	case "", MaskRedact, MaskHash, MaskPartial, MaskNull:
		return true
	}
	return false
}

// ApplyMask rewrites value. Hash and partial masks stringify their input, so
// an int comes back as a string. NULL stays NULL.
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}
	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		sum := sha256.Sum256([]byte(fmt.Sprint(value)))
		return hex.EncodeToString(sum[:])
	case MaskPartial:
		return revealTail(fmt.Sprint(value), 4)
	case MaskNull:
		return nil
	}
	return value
}

// revealTail stars out all but the last n runes. Short values are prefixed
// with *** so their length is not exposed.
func revealTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return "***" + s
	}
	hidden := len(runes) - n
	return strings.Repeat("*", hidden) + string(runes[hidden:])
}

// MaskRows applies masks (column name to strategy) to rows in place.
func MaskRows(rows []map[string]any, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, mt := range masks {
			if v, ok := row[col]; ok {
				row[col] = ApplyMask(v, mt)
			}
		}
	}
}

// MasksForQuery extends masks with the select-list aliases of masked
// columns, so "SELECT email AS contact" is masked under "contact".
func MasksForQuery(sql string, masks map[string]MaskType) map[string]MaskType {
	if len(masks) == 0 {
		return masks
	}
	var out map[string]MaskType
	for _, item := range sqltext.Parse(sql).SelectItems() {
		if item.Alias == "" || item.Column == "" {
			continue
		}
		mt, ok := maskFor(masks, item.Column)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]MaskType, len(masks)+1)
			for k, v := range masks {
				out[k] = v
			}
		}
		out[item.Alias] = mt
	}
	if out == nil {
		return masks
	}
	return out
}

func maskFor(masks map[string]MaskType, column string) (MaskType, bool) {
	if mt, ok := masks[column]; ok {
		return mt, true
	}
	for name, mt := range masks {
		if strings.EqualFold(name, column) {
			return mt, true
		}
	}
	return "", false
}
