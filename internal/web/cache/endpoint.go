package cache

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/schema"
	"github.com/grundstein/gas/internal/web/query"
)

// entry is the stored form of a response
type entry struct {
	Status  int         `json:"status"`
	JSON    bool        `json:"json,omitempty"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
}

func (e entry) response() *api.Response {
	headers := make(http.Header, len(e.Headers))
	for name, values := range e.Headers {
		headers[name] = append([]string(nil), values...)
	}
	return &api.Response{
		StatusCode: e.Status,
		Body:       e.Body,
		JSON:       e.JSON,
		Headers:    headers,
	}
}

// Endpoint wraps ep so GET and HEAD responses with status 200 or 404 are
// served from c. Keys combine prefix, the generation of the route table and
// the canonical query. Cached responses carry an ETag and answer a matching
// If-None-Match with 304. Backend failures are logged and the request is
// served by ep.
func Endpoint(c Cache, prefix string, ep api.Endpoint, ttl time.Duration, logger *zap.Logger) api.Endpoint {
	return endpoint(c, prefix, nil, ep, ttl, logger)
}

// SearchEndpoint is Endpoint for a collection filtered by keys. Only the
// values of search keys are part of the cache key.
func SearchEndpoint(c Cache, prefix string, keys []schema.SearchKey, ep api.Endpoint, ttl time.Duration, logger *zap.Logger) api.Endpoint {
	return endpoint(c, prefix, func(values url.Values) url.Values {
		return query.Canonical(values, keys)
	}, ep, ttl, logger)
}

// endpoint caches ep; canonical reduces the query before hashing when set
func endpoint(c Cache, prefix string, canonical func(url.Values) url.Values, ep api.Endpoint, ttl time.Duration, logger *zap.Logger) api.Endpoint {
	if c == nil {
		return ep
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return api.EndpointFunc(func(rc *api.RequestContext) (*api.Response, error) {
		if !cacheable(rc.Method) {
			return ep.Serve(rc)
		}

		key := requestKey(prefix, rc, canonical)
		ctx := rc.Context

		if data, err := c.Get(ctx, key); err == nil {
			var e entry
			if err := json.Unmarshal(data, &e); err == nil {
				return conditional(rc, e.response()), nil
			}
			logger.Warn("discarding unreadable cache entry", zap.String("key", key))
		} else if !IsMiss(err) {
			logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}

		resp, err := ep.Serve(rc)
		if err != nil || resp == nil {
			return resp, err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
			return resp, nil
		}

		if resp.Headers == nil {
			resp.Headers = make(http.Header)
		}
		resp.Headers.Set("ETag", ETag(resp.Body))

		data, err := json.Marshal(entry{
			Status:  resp.StatusCode,
			JSON:    resp.JSON,
			Headers: resp.Headers,
			Body:    resp.Body,
		})
		if err == nil {
			err = c.Set(ctx, key, data, ttl)
		}
		if err != nil {
			logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}

		return conditional(rc, resp), nil
	})
}

// Wrapper returns an api.CollectionWrapper caching every collection endpoint
// under host/version/collection.
func Wrapper(c Cache, ttl time.Duration, logger *zap.Logger) api.CollectionWrapper {
	return func(scope *api.VersionScope, collection string, ep api.Endpoint) api.Endpoint {
		prefix := scope.Host + "/" + scope.Version + "/" + collection + ":"
		keys := schema.CompileCollection(scope.Schema[collection])
		return SearchEndpoint(c, prefix, keys, ep, ttl, logger)
	}
}

func cacheable(method string) bool {
	return method == "" || method == http.MethodGet || method == http.MethodHead
}

func requestKey(prefix string, rc *api.RequestContext, canonical func(url.Values) url.Values) string {
	if rc.Table != nil {
		prefix += strconv.FormatInt(rc.Table.BuiltAt().UnixNano(), 36) + ":"
	}
	var values url.Values
	if rc.URL != nil {
		values = rc.URL.Query()
	}
	if canonical != nil {
		values = canonical(values)
	}
	return QueryKey(prefix, values)
}

// conditional answers 304 when the client already holds resp
func conditional(rc *api.RequestContext, resp *api.Response) *api.Response {
	if rc.Headers == nil || resp.StatusCode != http.StatusOK {
		return resp
	}
	etag := resp.Headers.Get("ETag")
	if etag == "" || !MatchesETag(etag, ParseIfNoneMatch(rc.Headers.Get("If-None-Match"))) {
		return resp
	}

	headers := make(http.Header)
	headers.Set("ETag", etag)
	return &api.Response{StatusCode: http.StatusNotModified, Headers: headers}
}
