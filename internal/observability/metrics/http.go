package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "distillery"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal     *prometheus.CounterVec
	retrievalEmpty     *prometheus.CounterVec
	retrievedChunks    *prometheus.HistogramVec
	retrievalDuration  *prometheus.HistogramVec
	jobsPublishedTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &HTTPServerMetrics{
		registry: registry,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"service", "method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		requestInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Requests currently being served.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		retrievalTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by boost field.",
		}, []string{"service", "boost"}),
		retrievalEmpty: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "empty_total",
			Help:      "Retrieval requests that returned no chunks.",
		}, []string{"service"}),
		retrievedChunks: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "chunks",
			Help:      "Chunks returned per retrieval request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"service"}),
		retrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		jobsPublishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "published_total",
			Help:      "Jobs published to the queue by kind and status.",
		}, []string{"service", "kind", "status"}),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		path := normalizePath(r.URL.Path)
		timer := prometheus.NewTimer(m.requestDuration.WithLabelValues(service, r.Method, path))
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)
		timer.ObserveDuration()

		m.requestTotal.WithLabelValues(service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
	})
}

// normalizePath keeps per-domain routes from exploding label cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/domains/") && strings.HasSuffix(path, "/stats"):
		return "/v1/domains/{domain}/stats"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRetrieval(service, boost string, chunkCount int, duration time.Duration) {
	if boost == "" {
		boost = "none"
	}
	m.retrievalTotal.WithLabelValues(service, boost).Inc()
	m.retrievedChunks.WithLabelValues(service).Observe(float64(chunkCount))
	m.retrievalDuration.WithLabelValues(service).Observe(duration.Seconds())
	if chunkCount == 0 {
		m.retrievalEmpty.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordJobPublished(service, kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsPublishedTotal.WithLabelValues(service, kind, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
