package api

import (
	"net/http"
	"net/url"

	"github.com/grundstein/gas/internal/schema"
	"github.com/grundstein/gas/internal/web/query"
)

// NotFoundBody is returned by collection endpoints when nothing matches
const NotFoundBody = "Not found"

// CollectionEndpoint serves items filtered by the query parameters named
// after the collection's search keys.
func CollectionEndpoint(items []Record, keys []schema.SearchKey) Endpoint {
	return EndpointFunc(func(rc *RequestContext) (*Response, error) {
		switch rc.Method {
		case "", http.MethodGet, http.MethodHead:
		case http.MethodOptions:
			return &Response{StatusCode: http.StatusNoContent, Headers: make(http.Header)}, nil
		default:
			resp := Text(http.StatusMethodNotAllowed, "Method not allowed")
			resp.Headers.Set("Allow", "GET, HEAD, OPTIONS")
			return resp, nil
		}

		var values url.Values
		if rc.URL != nil {
			values = rc.URL.Query()
		}

		result := query.Filter(items, query.Extract(values, keys))
		if len(result) == 0 {
			return Text(http.StatusNotFound, NotFoundBody), nil
		}
		return JSON(http.StatusOK, result)
	})
}

// schemaEndpoint serves the scope's schema at /_schema
func schemaEndpoint() Endpoint {
	return EndpointFunc(func(rc *RequestContext) (*Response, error) {
		s := rc.Schema
		if s == nil {
			s = schema.Schema{}
		}
		return JSON(http.StatusOK, s)
	})
}

// endpointsEndpoint lists the public paths of the scope at /_endpoints
func endpointsEndpoint() Endpoint {
	return EndpointFunc(func(rc *RequestContext) (*Response, error) {
		paths := []string{}
		if rc.Scope != nil {
			paths = rc.Scope.PublicPaths()
		}
		return JSON(http.StatusOK, paths)
	})
}
