// Package metrics exposes gateway metrics in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gas"

// Metrics records request and route table build metrics. It satisfies both
// api.BuildObserver and dispatch.RequestObserver.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	endpoints  *prometheus.GaugeVec
	builds     *prometheus.CounterVec
	loadErrors *prometheus.CounterVec

	mu      sync.Mutex
	pending map[scopeKey]int
}

type scopeKey struct {
	host    string
	version string
}

// New creates the metrics on a dedicated registry, including Go runtime
// and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Answered api requests.",
		}, []string{"host", "version", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent answering api requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host", "version", "status"}),
		endpoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints",
			Help:      "Endpoints registered per version scope of the current route table.",
		}, []string{"host", "version"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_builds_total",
			Help:      "Route table builds by result.",
		}, []string{"result"}),
		loadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Data and handler files that failed to load.",
		}, []string{"kind"}),
		pending: make(map[scopeKey]int),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.endpoints,
		m.builds,
		m.loadErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRequest records one answered request
func (m *Metrics) ObserveRequest(host, version string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(host, version, code).Inc()
	m.duration.WithLabelValues(host, version, code).Observe(elapsed.Seconds())
}

// LoadFailed counts a file that could not be loaded
func (m *Metrics) LoadFailed(kind string) {
	m.loadErrors.WithLabelValues(kind).Inc()
}

// ScopeBuilt remembers the endpoint count of a scope of the table being
// built. The gauge is updated by TableBuilt.
func (m *Metrics) ScopeBuilt(host, version string, endpoints int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[scopeKey{host, version}] = endpoints
}

// TableBuilt finishes a build. A successful build replaces the endpoint
// gauges with the scopes reported since the previous build.
func (m *Metrics) TableBuilt(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.pending
	m.pending = make(map[scopeKey]int)

	if err != nil {
		m.builds.WithLabelValues("error").Inc()
		return
	}

	m.builds.WithLabelValues("success").Inc()
	m.endpoints.Reset()
	for key, n := range pending {
		m.endpoints.WithLabelValues(key.host, key.version).Set(float64(n))
	}
}
