package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ETag returns a strong entity tag for content
func ETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:16]) + `"`
}

// ParseIfNoneMatch splits an If-None-Match header into its entity tags
func ParseIfNoneMatch(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == "*" {
		return []string{"*"}
	}

	var tags []string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		quoted := strings.HasPrefix(strings.TrimPrefix(part, "W/"), `"`)
		if quoted && len(strings.TrimPrefix(part, "W/")) >= 2 && strings.HasSuffix(part, `"`) {
			tags = append(tags, part)
		}
	}
	return tags
}

// MatchesETag reports whether etag is one of tags, using weak comparison
func MatchesETag(etag string, tags []string) bool {
	for _, t := range tags {
		if t == "*" || strings.TrimPrefix(t, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
