package middleware

import (
	"net/http"
	"strings"
)

// CORSConfig holds the CORS policy applied to api responses
type CORSConfig struct {
	// AllowedOrigins is either "*" or an allow-list. An empty list
	// disables CORS headers entirely.
	AllowedOrigins []string
	// AllowedHeaders is sent as Access-Control-Allow-Headers when set
	AllowedHeaders string
}

// DefaultCORSConfig returns the default CORS policy
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: "origin, x-requested-with, content-type, accept",
	}
}

// ParseOrigins splits a comma separated origin policy
func ParseOrigins(values ...string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

// Enabled reports whether an origin policy is configured
func (c CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// Wildcard reports whether every origin is allowed
func (c CORSConfig) Wildcard() bool {
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// AllowOrigin returns the Access-Control-Allow-Origin value for r: "*"
// unless the policy is an allow-list containing the first X-Forwarded-For
// value, which is then echoed.
func (c CORSConfig) AllowOrigin(r *http.Request) string {
	if c.Wildcard() {
		return "*"
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return "*"
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if first != "" && isOriginAllowed(first, c.AllowedOrigins) {
		return first
	}
	return "*"
}

// Headers returns the default CORS headers for r, or nil when disabled
func (c CORSConfig) Headers(r *http.Request) http.Header {
	if !c.Enabled() {
		return nil
	}

	h := make(http.Header)
	h.Set("Access-Control-Allow-Origin", c.AllowOrigin(r))
	if c.AllowedHeaders != "" {
		h.Set("Access-Control-Allow-Headers", c.AllowedHeaders)
	}
	return h
}

// isOriginAllowed checks if an origin is allowed
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
		// wildcard subdomains like *.example.com, not the domain itself
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(origin, allowed[1:]) {
			return true
		}
	}
	return false
}
