// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// ingestFilesTotal counts files processed by /api/v1/document/index,
	// partitioned by outcome: "success" or "error".
	ingestFilesTotal *prometheus.CounterVec

	// ingestChunksTotal counts chunks persisted by successful file indexing.
	ingestChunksTotal prometheus.Counter

	// ingestDurationSeconds records the wall-clock duration of each index
	// request, whole batch included.
	ingestDurationSeconds prometheus.Histogram

	// questionRequestsTotal counts completed /api/v1/chat/question requests,
	// partitioned by outcome: "ok", "empty", "no_documents", "no_context",
	// or "error".
	questionRequestsTotal *prometheus.CounterVec

	// questionDurationSeconds records the wall-clock duration of each
	// question request, retrieval and generation included.
	questionDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		ingestFilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total number of uploaded files processed, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of document chunks persisted.",
		}),

		ingestDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of document index requests.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		questionRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "question",
			Name:      "requests_total",
			Help:      "Total number of question requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		questionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "question",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of question requests, retrieval and generation included.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// routeLabel collapses a request path onto the fixed set of served routes so
// the handler label stays bounded. Unmatched paths share one "other" bucket.
func routeLabel(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	switch path {
	case "/api/v1/document/index",
		"/api/v1/document/delete",
		"/api/v1/document/list",
		"/api/v1/chat/question",
		"/api/health",
		"/api/ready",
		"/metrics":
		return path
	}
	return "other"
}

// metricsMiddleware records request count and latency for every request.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		handler := routeLabel(r.URL.Path)
		s.metrics.httpRequestsTotal.WithLabelValues(
			r.Method, handler, strconv.Itoa(rw.status),
		).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}
