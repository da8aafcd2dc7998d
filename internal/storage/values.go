package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResolveServerTimestamps возвращает глубокую копию doc, в которой маркеры
// ServerTimestamp заменены на now.
func ResolveServerTimestamps(doc Fields, now time.Time) Fields {
	out, _ := resolve(map[string]any(doc), now).(map[string]any)
	return Fields(out)
}

// ResolveValue - то же для произвольного значения (элемента массива).
func ResolveValue(v any, now time.Time) any {
	return resolve(v, now)
}

// CloneValue делает глубокую копию значения документа.
func CloneValue(v any) any {
	return resolve(v, time.Time{})
}

func resolve(v any, now time.Time) any {
	switch val := v.(type) {
	case Fields:
		return resolve(map[string]any(val), now)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolve(item, now)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolve(item, now)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolve(item, now)
		}
		return out
	case *string:
		if val == nil {
			return nil
		}
		return *val
	case serverTimestamp:
		if now.IsZero() {
			return val
		}
		return now
	default:
		return v
	}
}

// CompareValues упорядочивает значения поля сортировки: время, числа, строки.
// Отсутствующие значения считаются меньше любых других.
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// SortDocuments стабильно сортирует документы по полю sortKey.
func SortDocuments(docs []Document, sortKey string, dir Direction) {
	sort.SliceStable(docs, func(i, j int) bool {
		c := CompareValues(docs[i].Fields[sortKey], docs[j].Fields[sortKey])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}
