package loader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grundstein/gas/internal/api"
)

// Registry holds handlers compiled into the binary, keyed by route key
// (see api.Route.Key). A handler file whose route key is registered is
// served by the registered endpoint.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]api.Endpoint
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]api.Endpoint)}
}

// Register adds ep under key. Registering a key twice is an error.
func (r *Registry) Register(key string, ep api.Endpoint) error {
	if ep == nil {
		return fmt.Errorf("nil endpoint for %q", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("handler %q already registered", key)
	}
	r.handlers[key] = ep
	return nil
}

// RegisterFunc registers a function as endpoint
func (r *Registry) RegisterFunc(key string, fn func(rc *api.RequestContext) (*api.Response, error)) error {
	return r.Register(key, api.EndpointFunc(fn))
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(key string, ep api.Endpoint) {
	if err := r.Register(key, ep); err != nil {
		panic(err)
	}
}

// Lookup returns the endpoint registered under key
func (r *Registry) Lookup(key string) (api.Endpoint, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.handlers[key]
	return ep, ok
}

// Keys returns the registered keys, sorted
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
