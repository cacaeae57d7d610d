// Package profiling mounts the pprof endpoints on the metrics server.
//
// The endpoints expose goroutine stacks and heap contents. They are only
// served next to /metrics, never on the api listener.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// DefaultPath is the prefix of the profiling endpoints
const DefaultPath = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	// Path is the URL path prefix (default: DefaultPath)
	Path string

	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int

	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// DefaultConfig returns default profiling configuration
func DefaultConfig() Config {
	return Config{Path: DefaultPath}
}

// profiles are served by pprof.Handler under their own name
var profiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// RegisterRoutes registers the pprof routes on router
func RegisterRoutes(router chi.Router, config Config) {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.BlockRate > 0 {
		runtime.SetBlockProfileRate(config.BlockRate)
	}
	if config.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(config.MutexFraction)
	}

	router.Route(config.Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		for _, name := range profiles {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
}

// Handler returns a router serving only the profiling endpoints
func Handler(config Config) http.Handler {
	router := chi.NewRouter()
	RegisterRoutes(router, config)
	return router
}
