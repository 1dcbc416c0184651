package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks mock server metrics and serves them in Prometheus text format.
// It uses its own prometheus.Registry so tests and multiple servers in one
// process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	inflight         prometheus.Gauge
	routeMatches     *prometheus.CounterVec
	unmatched        prometheus.Counter
	rateLimited      prometheus.Counter
	configReloads    *prometheus.CounterVec
	configReloadTime prometheus.Gauge
	routesLoaded     prometheus.Gauge
	buildInfo        *prometheus.GaugeVec
}

// NewMetrics creates a Metrics collector with a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcmock_requests_total",
			Help: "Total number of requests served by the mock server.",
		}, []string{"method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpcmock_request_duration_seconds",
			Help:    "Request duration in seconds, including configured delays.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rpcmock_inflight_requests",
			Help: "Number of requests currently being served.",
		}),

		routeMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcmock_route_matches_total",
			Help: "Total number of requests answered by a configured rule.",
		}, []string{"route", "rule"}),

		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpcmock_unmatched_requests_total",
			Help: "Total number of requests that matched no rule.",
		}),

		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpcmock_rate_limited_total",
			Help: "Total number of requests rejected by the global rate limit.",
		}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcmock_config_reloads_total",
			Help: "Total number of configuration reload attempts.",
		}, []string{"result"}),

		configReloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rpcmock_config_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful configuration reload.",
		}),

		routesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rpcmock_routes",
			Help: "Number of routes in the active configuration.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpcmock_build_info",
			Help: "Build information about the rpcmock binary. Value is always 1.",
		}, []string{"version", "go_version"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.inflight,
		m.routeMatches,
		m.unmatched,
		m.rateLimited,
		m.configReloads,
		m.configReloadTime,
		m.routesLoaded,
		m.buildInfo,
	)

	return m
}

// RecordRequest counts a finished request and observes its duration.
func (m *Metrics) RecordRequest(method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// IncrInflight marks a request as started.
func (m *Metrics) IncrInflight() {
	m.inflight.Inc()
}

// DecrInflight marks a request as finished.
func (m *Metrics) DecrInflight() {
	m.inflight.Dec()
}

// RecordMatch counts a request answered by the given route pattern and rule index.
func (m *Metrics) RecordMatch(route string, rule int) {
	m.routeMatches.WithLabelValues(route, strconv.Itoa(rule)).Inc()
}

// RecordUnmatched counts a request that fell through to 404.
func (m *Metrics) RecordUnmatched() {
	m.unmatched.Inc()
}

// RecordRateLimited counts a request rejected with 429.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// RecordConfigReload records a configuration reload attempt.
// Pass true for a successful reload, false for a failure.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetConfigReloadTime records the timestamp of the last configuration reload.
func (m *Metrics) SetConfigReloadTime(t time.Time) {
	m.configReloadTime.Set(float64(t.Unix()))
}

// SetRoutes records the number of routes in the active snapshot.
func (m *Metrics) SetRoutes(n int) {
	m.routesLoaded.Set(float64(n))
}

// SetBuildInfo sets the build information gauge. The gauge value is always 1;
// version and Go version are exposed as labels.
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.buildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Handler returns an HTTP handler that serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
