// Package router assembles the HTTP handler of the gateway: request
// middleware around the api dispatcher and the gateway's own routes.
package router

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/web/middleware"
)

// ReloadPath is where reload clients connect when watching is enabled
const ReloadPath = "/_reload"

// Router manages HTTP routing using chi
type Router struct {
	mux   chi.Router
	chain *middleware.Chain
}

// RouteInfo describes a mounted route
type RouteInfo struct {
	Method  string
	Pattern string
}

// Options configures the gateway handler built by New
type Options struct {
	// Dispatcher answers every request not claimed by another route
	Dispatcher http.Handler

	// Reload is mounted at ReloadPath when set
	Reload http.Handler

	Logger *zap.Logger

	// Compress gzips responses for clients that accept it
	Compress bool
}

// NewRouter creates a router with the given middleware
func NewRouter(middlewares ...middleware.Middleware) *Router {
	r := &Router{
		mux:   chi.NewRouter(),
		chain: middleware.NewChain(middlewares...),
	}
	r.mux.Use(r.chain.Slice()...)
	return r
}

// New builds the gateway handler: request ids, access logging and panic
// recovery around the reload endpoint and the dispatcher.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := NewRouter(
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    logger,
			SkipPaths: []string{ReloadPath},
		}),
		middleware.Recovery(logger),
	)

	if opts.Reload != nil {
		r.mux.Handle(ReloadPath, opts.Reload)
	}

	if opts.Dispatcher != nil {
		api := opts.Dispatcher
		if opts.Compress {
			api = chimw.Compress(5)(api)
		}
		r.mux.Handle("/*", api)
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handle mounts h at pattern for all methods
func (r *Router) Handle(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

// Routes lists the mounted routes, sorted by pattern
func (r *Router) Routes() []RouteInfo {
	var routes []RouteInfo
	chi.Walk(r.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, RouteInfo{Method: method, Pattern: route})
		return nil
	})
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Pattern != routes[j].Pattern {
			return routes[i].Pattern < routes[j].Pattern
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}
