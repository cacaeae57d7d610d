package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// QueryKey returns prefix followed by a hash of the canonical form of query.
// Parameter order does not change the key.
func QueryKey(prefix string, query url.Values) string {
	parts := make([]string, 0, len(query))
	for name, values := range query {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		for _, value := range sorted {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(value))
		}
	}
	sort.Strings(parts)

	hash := sha256.Sum256([]byte(strings.Join(parts, "&")))
	return prefix + hex.EncodeToString(hash[:16])
}
