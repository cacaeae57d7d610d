// Package api holds the route table served by the gateway: hosts, their
// API versions, and the endpoints registered in every version scope. The
// Builder composes a table from an API directory tree.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/grundstein/gas/internal/schema"
	"github.com/grundstein/gas/internal/web/query"
)

// Record is a single item of a collection
type Record = query.Record

// Collections maps collection names to their ordered records
type Collections map[string][]Record

// DataSource is the result of loading a version's data file
type DataSource struct {
	Collections Collections
	Schema      schema.Schema
}

// Response is the envelope every endpoint returns
type Response struct {
	StatusCode int
	Body       []byte
	JSON       bool
	Headers    http.Header
}

// Text creates a plain text response
func Text(statusCode int, body string) *Response {
	return &Response{
		StatusCode: statusCode,
		Body:       []byte(body),
		Headers:    make(http.Header),
	}
}

// JSON creates a response with v encoded as JSON
func JSON(statusCode int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return &Response{
		StatusCode: statusCode,
		Body:       body,
		JSON:       true,
		Headers:    make(http.Header),
	}, nil
}

// RequestContext carries everything an endpoint may read for one request
type RequestContext struct {
	Context     context.Context
	Method      string
	URL         *url.URL
	Table       *RouteTable
	Scope       *VersionScope
	Collections Collections
	Schema      schema.Schema
	Headers     http.Header
	Body        any
	Hostname    string
	Version     string
}

// Endpoint serves requests for one path of a version scope
type Endpoint interface {
	Serve(rc *RequestContext) (*Response, error)
}

// EndpointFunc adapts a function to the Endpoint interface
type EndpointFunc func(rc *RequestContext) (*Response, error)

// Serve calls f(rc)
func (f EndpointFunc) Serve(rc *RequestContext) (*Response, error) {
	return f(rc)
}

// Route identifies where a handler file is mounted
type Route struct {
	Host    string
	Version string
	Path    string
}

// Key returns the registry key of the route: host/version/path without the
// leading slash. Single-tenant routes omit the host segment.
func (r Route) Key() string {
	key := r.Version + r.Path
	if r.Host != "" {
		key = r.Host + "/" + key
	}
	return key
}

// ModuleLoader resolves files of the API directory into endpoints and data
type ModuleLoader interface {
	// LoadHandler loads the handler file at path mounted at route
	LoadHandler(ctx context.Context, path string, route Route) (Endpoint, error)

	// LoadDataSource loads a version's data file
	LoadDataSource(ctx context.Context, path string) (*DataSource, error)
}

// LoadError reports a data or handler file that could not be loaded
type LoadError struct {
	Kind string // "data" or "handler"
	Path string
	Err  error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s file %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}
