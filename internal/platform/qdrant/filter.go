package qdrant

import (
	"sort"
	"strings"
)

// Filter is the subset of the qdrant filter language the adapter emits: equality and
// any-of matches combined with must / must_not.
type Filter struct {
	Equals    map[string]any
	AnyOf     map[string][]any
	NotEquals map[string]any
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func anyCondition(key string, values []any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"any": values}}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// translate renders f scoped to one namespace. Keys are emitted in sorted order so requests are stable.
func (f Filter) translate(qualifiedNS string) (map[string]any, error) {
	must := []any{matchCondition(payloadNamespaceKey, qualifiedNS)}
	for _, k := range sortedKeys(f.Equals) {
		if !isScalar(f.Equals[k]) {
			return nil, opErr("filter_translate", OperationErrorValidation, "field "+k+" expects scalar value", nil)
		}
		must = append(must, matchCondition(k, f.Equals[k]))
	}
	for _, k := range sortedKeys(f.AnyOf) {
		vals := f.AnyOf[k]
		if len(vals) == 0 {
			return nil, opErr("filter_translate", OperationErrorValidation, "field "+k+" any-of cannot be empty", nil)
		}
		for _, v := range vals {
			if !isScalar(v) {
				return nil, opErr("filter_translate", OperationErrorValidation, "field "+k+" expects scalar values", nil)
			}
		}
		must = append(must, anyCondition(k, vals))
	}
	out := map[string]any{"must": must}
	if len(f.NotEquals) > 0 {
		mustNot := make([]any, 0, len(f.NotEquals))
		for _, k := range sortedKeys(f.NotEquals) {
			if !isScalar(f.NotEquals[k]) {
				return nil, opErr("filter_translate", OperationErrorValidation, "field "+k+" expects scalar value", nil)
			}
			mustNot = append(mustNot, matchCondition(k, f.NotEquals[k]))
		}
		out["must_not"] = mustNot
	}
	return out, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
