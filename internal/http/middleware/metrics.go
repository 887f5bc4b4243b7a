// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels:
//
//   - method: HTTP method verb (GET/POST/…)
//   - path:   the registered Gin route (e.g. /api/v1/users/:id/lead-magnet);
//     falls back to "unmatched" when no route matched
//   - status: numeric status code as a string (e.g. "200", "404")
//
// Collectors are created per HTTPMetrics and registered on the registry the
// caller passes in, so tests and the server never share global state.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedPath is the path label for requests that matched no route. Raw
// URLs would make the label unbounded.
const unmatchedPath = "unmatched"

// HTTPMetrics holds the HTTP collectors.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	Inflight prometheus.Gauge
	RespSize *prometheus.HistogramVec
}

// NewHTTPMetrics builds the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		// No status label, to keep histogram cardinality low.
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadbot_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		Inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadbot_http_requests_inflight",
				Help: "Current number of in-flight HTTP requests.",
			},
		),
		RespSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "leadbot_http_response_size_bytes",
				Help: "Size of HTTP responses in bytes.",
				Buckets: []float64{
					100, 500, 1 << 10, 5 << 10, 10 << 10,
					50 << 10, 100 << 10, 500 << 10, 1 << 20,
				},
			},
			[]string{"method", "path"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Latency, m.Inflight, m.RespSize)
	}
	return m
}

// Handler returns a Gin middleware that instruments requests.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	r.Use(middleware.NewHTTPMetrics(reg).Handler())
//	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.Inflight.Inc()
		defer m.Inflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.Requests.WithLabelValues(method, path, status).Inc()
		m.Latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			m.RespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
