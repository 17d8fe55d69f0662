package observability

import (
	"net/http"
	"strconv"
	"time"

	"receptiongw/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	cacheLookupsTotal     *prometheus.CounterVec
	stageDuration         *prometheus.HistogramVec
	stageFailuresTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receptiongw_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receptiongw_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receptiongw_upstream_requests_total",
				Help: "Total upstream requests to the telephony platform and AI providers.",
			},
			[]string{"provider", "endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receptiongw_upstream_request_duration_seconds",
				Help:    "Upstream request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "endpoint", "status"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receptiongw_cache_lookups_total",
				Help: "Presence cache lookups by scope and result.",
			},
			[]string{"scope", "result"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "receptiongw_duty_query_stage_duration_seconds",
				Help:    "Duty query pipeline stage duration in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		stageFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receptiongw_duty_query_stage_failures_total",
				Help: "Duty query runs that stopped at a stage.",
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.cacheLookupsTotal,
		m.stageDuration,
		m.stageFailuresTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

// UpstreamObserver returns an observer bound to one provider label, in the
// shape the upstream clients accept.
func (m *Metrics) UpstreamObserver(provider string) func(endpoint string, status int, duration time.Duration) {
	return func(endpoint string, status int, duration time.Duration) {
		m.ObserveUpstream(provider, endpoint, status, duration)
	}
}

func (m *Metrics) ObserveUpstream(provider, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(provider, endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(provider, endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveCache(scope string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(scope, result).Inc()
}

func (m *Metrics) ObserveStage(stage pipeline.Stage, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
	if err != nil {
		m.stageFailuresTotal.WithLabelValues(string(stage)).Inc()
	}
}
