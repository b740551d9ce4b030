package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics shared by the mock services.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	streamsActive *prometheus.GaugeVec
	streamsTotal  *prometheus.CounterVec

	auditVerdicts *prometheus.CounterVec

	configReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mocks_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mocks_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "endpoint"},
		),

		streamsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mocks_streams_active",
				Help: "Number of SSE streams currently open",
			},
			[]string{"variant"},
		),

		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mocks_streams_total",
				Help: "Total number of SSE streams by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),

		auditVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mocks_audit_verdicts_total",
				Help: "Total number of audit verdicts",
			},
			[]string{"verdict"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mocks_config_reloads_total",
				Help: "Total number of configuration reload attempts by status",
			},
			[]string{"status"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.streamsActive,
		m.streamsTotal,
		m.auditVerdicts,
		m.configReloads,
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(service, method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(service, method, endpoint).Observe(duration.Seconds())
}

// StreamStarted marks a stream of the given variant as open.
func (m *Metrics) StreamStarted(variant string) {
	m.streamsActive.WithLabelValues(variant).Inc()
}

// StreamFinished closes a stream opened with StreamStarted.
func (m *Metrics) StreamFinished(variant, outcome string) {
	m.streamsActive.WithLabelValues(variant).Dec()
	m.streamsTotal.WithLabelValues(variant, outcome).Inc()
}

// RecordAuditVerdict counts one audit result.
func (m *Metrics) RecordAuditVerdict(safe bool) {
	verdict := "unsafe"
	if safe {
		verdict = "safe"
	}
	m.auditVerdicts.WithLabelValues(verdict).Inc()
}

// Config reload statuses.
const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)

// RecordConfigReload records a configuration reload attempt
func (m *Metrics) RecordConfigReload(status string) {
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request metrics for service. It must wrap the ServeMux
// directly so the matched route pattern is visible after the call.
func (m *Metrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(service, r.Method, endpointName(r.Pattern), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support http.Hijacker")
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// endpointName turns a mux pattern such as "POST /audit" into a bounded label.
func endpointName(pattern string) string {
	if pattern == "" {
		return "unknown"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
