// Package metrics exposes Prometheus instrumentation. Every method is safe to
// call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solarwatch"

type Metrics struct {
	registry *prometheus.Registry

	observationsStored prometheus.Counter
	underperforming    prometheus.Counter
	fetchFailures      *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	alerts             *prometheus.GaugeVec
	cacheResults       *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		observationsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_stored_total",
			Help:      "Total observations written by collection runs.",
		}),
		underperforming: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "underperforming_days_total",
			Help:      "Total installation-days flagged as underperforming.",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Total failed collaborator fetches by source.",
		}, []string{"source"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert digest deliveries by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert records moved by lifecycle transition.",
		}, []string{"transition"}),
		alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts",
			Help:      "Underperforming records by lifecycle state at last query.",
		}, []string{"state"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_requests_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.observationsStored,
		m.underperforming,
		m.fetchFailures,
		m.notifications,
		m.transitions,
		m.alerts,
		m.cacheResults,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservationStored(underperforming bool) {
	if m == nil {
		return
	}
	m.observationsStored.Inc()
	if underperforming {
		m.underperforming.Inc()
	}
}

func (m *Metrics) FetchFailed(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) Notification(success bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !success {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(name string, records int64) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name).Add(float64(records))
}

func (m *Metrics) SetAlerts(pending, sent, acknowledged int64) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues("pending").Set(float64(pending))
	m.alerts.WithLabelValues("sent").Set(float64(sent))
	m.alerts.WithLabelValues("acknowledged").Set(float64(acknowledged))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues("miss").Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency for route
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
