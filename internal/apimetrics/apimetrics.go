// Package apimetrics exposes the monitor service's Prometheus counters and
// histograms and the gin middleware that feeds them.
package apimetrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every Prometheus collector the monitor service registers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	monitorBatchSize    prometheus.Histogram
	significantErrors   prometheus.Counter
	anomaliesDetected   prometheus.Counter
	ingestHoursTotal    *prometheus.CounterVec
}

// New builds and registers the full metric set against a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errormonitor_http_requests_total",
			Help: "Total number of HTTP requests handled by the monitor service.",
		}, []string{"route", "method", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "errormonitor_http_request_duration_seconds",
			Help:    "Latency of HTTP requests handled by the monitor service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		monitorBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "errormonitor_monitor_batch_size",
			Help:    "Number of log lines in each POST /monitor request.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		significantErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errormonitor_significant_errors_total",
			Help: "Count of errors GetMonitorResults flagged as statistically significant.",
		}),
		anomaliesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errormonitor_anomalies_detected_total",
			Help: "Count of routes the seasonal detector flagged anomalous.",
		}),
		ingestHoursTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errormonitor_ingest_hours_total",
			Help: "Count of log hours the ingestor has processed, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.monitorBatchSize,
		m.significantErrors,
		m.anomaliesDetected,
		m.ingestHoursTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the gin handler serving the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records a request count and latency observation per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// ObserveMonitorBatch records the size of a POST /monitor log batch.
func (m *Metrics) ObserveMonitorBatch(n int) {
	m.monitorBatchSize.Observe(float64(n))
}

// IncSignificantErrors adds n GetMonitorResults alerts.
func (m *Metrics) IncSignificantErrors(n int) {
	m.significantErrors.Add(float64(n))
}

// IncAnomaliesDetected adds n GetAnomalies alerts.
func (m *Metrics) IncAnomaliesDetected(n int) {
	m.anomaliesDetected.Add(float64(n))
}

// IncIngestHours records one Ingestor hour outcome ("ok", "incomplete",
// "table_absent", "error").
func (m *Metrics) IncIngestHours(outcome string) {
	m.ingestHoursTotal.WithLabelValues(outcome).Inc()
}
