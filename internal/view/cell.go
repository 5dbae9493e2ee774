package view

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kokistudios/orbctl/internal/filter"
)

// Cell renders item[field] for a table. A dotted field walks nested maps.
// Maps render as sorted "key:value" pairs.
func Cell(item filter.Item, field string) string {
	var v any = map[string]any(item)
	for _, part := range strings.Split(field, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return ""
		}
		v = m[part]
	}
	return format(v)
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any:
		pairs := make([]string, 0, len(x))
		for k, val := range x {
			pairs = append(pairs, k+":"+format(val))
		}
		sort.Strings(pairs)
		return strings.Join(pairs, ", ")
	case map[string]string:
		pairs := make([]string, 0, len(x))
		for k, val := range x {
			pairs = append(pairs, k+":"+val)
		}
		sort.Strings(pairs)
		return strings.Join(pairs, ", ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, format(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
