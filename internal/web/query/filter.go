package query

import (
	"fmt"
	"strings"
)

// Record is a single item of a collection
type Record = map[string]any

// Filter returns the items satisfying every non-inert predicate, in their
// original order. With no active predicates the input is returned as is.
func Filter(items []Record, preds []Predicate) []Record {
	active := Active(preds)
	if len(active) == 0 {
		return items
	}

	result := make([]Record, 0)
	for _, item := range items {
		if MatchAll(item, active) {
			result = append(result, item)
		}
	}
	return result
}

// MatchAll reports whether the item satisfies all predicates
func MatchAll(item Record, preds []Predicate) bool {
	for _, p := range preds {
		if !Match(item, p) {
			return false
		}
	}
	return true
}

// Match evaluates a single predicate against an item
func Match(item Record, p Predicate) bool {
	if p.Inert() {
		return true
	}

	raw, ok := item[p.Key.Field]
	if !ok || raw == nil {
		return false
	}

	if p.Key.Boolean {
		return matchBoolean(raw, p.Values)
	}

	switch list := raw.(type) {
	case []any:
		for _, elem := range list {
			if elem != nil && matchScalar(lower(elem), p) {
				return true
			}
		}
		return false
	case []string:
		for _, elem := range list {
			if matchScalar(strings.ToLower(elem), p) {
				return true
			}
		}
		return false
	}

	return matchScalar(lower(raw), p)
}

func matchScalar(val string, p Predicate) bool {
	if p.Key.Fuzzy {
		for _, param := range p.Values {
			if strings.Contains(val, param) || strings.Contains(param, val) {
				return true
			}
		}
		return false
	}

	for _, param := range p.Values {
		if param == val {
			return true
		}
	}
	return false
}

// matchBoolean compares the coerced field value against a literal
// "true"/"false" parameter, or falls back to the field's truthiness.
func matchBoolean(raw any, params []string) bool {
	switch params[0] {
	case "true", "false":
		return lower(raw) == params[0]
	default:
		return truthy(raw)
	}
}

func lower(v any) string {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	case []byte:
		return strings.ToLower(string(t))
	default:
		return strings.ToLower(fmt.Sprint(t))
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
