// Package dispatch resolves api requests against the current route table
// and invokes the matching endpoint.
package dispatch

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/web/middleware"
	"github.com/grundstein/gas/internal/web/request"
	"github.com/grundstein/gas/internal/web/response"
)

// Bodies of the dispatcher's own responses
const (
	NoHostBody        = "No api for this host available."
	VersionPrefix     = "Api request urls must start with a version. supported: "
	FunctionPrefix    = "Function not found. Got: "
	InternalErrorBody = "Internal Server Error"
)

// UnknownHostLabel is the observed host of requests for hosts without an api
const UnknownHostLabel = "_unknown"

// RequestObserver is notified about every answered request
type RequestObserver interface {
	ObserveRequest(host, version string, status int, elapsed time.Duration)
}

// Dispatcher serves api requests from the route table of a Holder
type Dispatcher struct {
	holder   *api.Holder
	parser   *request.Parser
	cors     middleware.CORSConfig
	logger   *zap.Logger
	observer RequestObserver
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithCORS sets the CORS policy (default: none)
func WithCORS(config middleware.CORSConfig) Option {
	return func(d *Dispatcher) {
		d.cors = config
	}
}

// WithParser sets the body parser
func WithParser(p *request.Parser) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.parser = p
		}
	}
}

// WithObserver sets a request observer, e.g. for metrics
func WithObserver(o RequestObserver) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// New creates a dispatcher serving the tables published by holder
func New(holder *api.Holder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		holder: holder,
		parser: request.NewParser(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ServeHTTP implements http.Handler
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	table := d.table()
	hostname := Hostname(r)

	if !table.HasHost(hostname) {
		d.notFound(w, start, UnknownHostLabel, "", NoHostBody)
		return
	}
	label := hostLabel(table, hostname)

	segments := splitPath(r.URL.Path)
	version := ""
	if len(segments) > 0 {
		version = segments[0]
	}

	scope, ok := table.ResolveScope(hostname, version)
	if !ok {
		d.notFound(w, start, label, "", VersionPrefix+strings.Join(table.VersionKeys(hostname), " "))
		return
	}

	var rest []string
	if len(segments) > 1 {
		rest = segments[1:]
	}
	fullPath := "/" + strings.Join(rest, "/")

	ep, ok := scope.Endpoint(fullPath)
	if !ok {
		body := FunctionPrefix + strings.Join(rest, ",") + ". Supported: " + strings.Join(scope.PublicPaths(), " ")
		d.notFound(w, start, label, version, body)
		return
	}

	logger := d.logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("host", hostname),
		zap.String("version", version),
		zap.String("path", fullPath))

	var body any
	if request.BodyMethod(r.Method) {
		parsed, err := d.parser.Parse(w, r)
		if err != nil {
			logger.Error("request body parse failed", zap.Error(err))
			parsed = ""
		}
		body = parsed
	}

	rc := &api.RequestContext{
		Context:     r.Context(),
		Method:      r.Method,
		URL:         AbsoluteURL(r),
		Table:       table,
		Scope:       scope,
		Collections: scope.Collections,
		Schema:      scope.Schema,
		Headers:     r.Header,
		Body:        body,
		Hostname:    hostname,
		Version:     version,
	}

	// defaults first, endpoint headers override them in response.Write
	for name, values := range d.cors.Headers(r) {
		w.Header()[name] = values
	}

	resp, err := invoke(ep, rc)
	if err != nil {
		logger.Error("endpoint failed", zap.Error(err))
		resp = api.Text(http.StatusInternalServerError, InternalErrorBody)
	}

	response.Write(w, resp, start)
	d.observe(label, version, resp.StatusCode, start)
}

// invoke calls the endpoint, converting panics and nil responses to errors
func invoke(ep api.Endpoint, rc *api.RequestContext) (resp *api.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			resp, err = nil, middleware.PanicError(rec)
		}
	}()

	resp, err = ep.Serve(rc)
	if err == nil && resp == nil {
		err = errors.New("endpoint returned no response")
	}
	return resp, err
}

func (d *Dispatcher) notFound(w http.ResponseWriter, start time.Time, host, version, body string) {
	response.Text(w, http.StatusNotFound, body, start)
	d.observe(host, version, http.StatusNotFound, start)
}

func (d *Dispatcher) observe(host, version string, status int, start time.Time) {
	if d.observer != nil {
		d.observer.ObserveRequest(host, version, status, time.Since(start))
	}
}

// hostLabel is the host reported to the observer. Only hosts of the table
// are reported by name; a single-tenant table answers every Host header,
// so its requests are reported without one.
func hostLabel(table *api.RouteTable, hostname string) string {
	if table.Layout() == api.SingleTenant {
		return ""
	}
	return hostname
}

// table returns the current table; a missing table serves nothing
func (d *Dispatcher) table() *api.RouteTable {
	if d.holder != nil {
		if table := d.holder.Load(); table != nil {
			return table
		}
	}
	return api.NewTableBuilder(api.MultiTenant).Build()
}

// Hostname returns the request host without port, lower-cased
func Hostname(r *http.Request) string {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.ToLower(host)
}

// AbsoluteURL rebuilds the absolute request url
func AbsoluteURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
}

// splitPath splits a url path into its non-empty segments
func splitPath(p string) []string {
	segments := make([]string, 0, 4)
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
