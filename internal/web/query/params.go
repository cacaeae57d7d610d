// Package query filters in-memory collections against URL query parameters
// using the search keys compiled from a collection schema.
package query

import (
	"net/url"
	"sort"
	"strings"

	"github.com/grundstein/gas/internal/schema"
)

// Predicate is a search key bound to the query values of one request.
// Values are lower-cased; a predicate without values is inert.
type Predicate struct {
	Key    schema.SearchKey
	Values []string
}

// Inert reports whether the predicate matches every item
func (p Predicate) Inert() bool {
	return len(p.Values) == 0
}

// Extract reads the query values for every search key.
// Parameter names match keys case-insensitively. Repeated keys contribute
// all of their values; empty values are dropped.
// Example: ?tags=a&Tags=B with key "tags" yields Values ["a", "b"].
func Extract(values url.Values, keys []schema.SearchKey) []Predicate {
	byName := foldNames(values)

	preds := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		raw := byName[strings.ToLower(key.Field)]

		folded := make([]string, 0, len(raw))
		for _, v := range raw {
			if v == "" {
				continue
			}
			folded = append(folded, strings.ToLower(v))
		}

		preds = append(preds, Predicate{Key: key, Values: folded})
	}
	return preds
}

// Canonical returns the lower-cased values of the active search keys,
// keyed by field. Parameters that are not search keys are dropped, so two
// queries selecting the same items have the same canonical form.
func Canonical(values url.Values, keys []schema.SearchKey) url.Values {
	canonical := make(url.Values)
	for _, p := range Active(Extract(values, keys)) {
		canonical[p.Key.Field] = append(canonical[p.Key.Field], p.Values...)
	}
	return canonical
}

// foldNames groups values by lower-cased parameter name
func foldNames(values url.Values) map[string][]string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	folded := make(map[string][]string, len(values))
	for _, name := range names {
		lower := strings.ToLower(name)
		folded[lower] = append(folded[lower], values[name]...)
	}
	return folded
}

// Active returns the predicates that constrain the result
func Active(preds []Predicate) []Predicate {
	active := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if !p.Inert() {
			active = append(active, p)
		}
	}
	return active
}
