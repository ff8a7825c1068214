package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/firm-distillery/internal/core/domain"
)

// WorkerMetrics records batch progress. It satisfies usecase.BatchObserver.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	targetsTotal       *prometheus.CounterVec
	targetDuration     *prometheus.HistogramVec
	targetsInFlight    prometheus.Gauge
	extractionDuration *prometheus.HistogramVec
	extractionTotal    *prometheus.CounterVec
	promptChunks       *prometheus.HistogramVec
	llmTokensTotal     *prometheus.CounterVec
	jobsTotal          *prometheus.CounterVec
	queueLag           *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"service"}, labels...))
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, append([]string{"service"}, labels...))
	}

	return &WorkerMetrics{
		service:  service,
		registry: registry,

		targetsTotal: counter("batch", "targets_total", "Processed targets by status.", "status"),
		targetDuration: histogram("batch", "target_duration_seconds", "Per-target processing time by status.",
			[]float64{1, 2, 5, 10, 20, 30, 60, 120, 300}, "status"),
		targetsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "batch",
			Name:        "targets_in_flight",
			Help:        "Targets currently being processed.",
			ConstLabels: prometheus.Labels{"service": service},
		}),

		extractionTotal: counter("extraction", "total", "Extractions by type and status.", "type", "status"),
		extractionDuration: histogram("extraction", "duration_seconds", "Extraction time by type and status.",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60}, "type", "status"),
		promptChunks: histogram("extraction", "prompt_chunks", "Chunks placed in extraction prompts.",
			[]float64{0, 1, 2, 3, 4, 5, 6, 8, 10}),
		llmTokensTotal: counter("llm", "tokens_total", "Token usage reported by the provider.", "provider", "model", "direction"),

		jobsTotal: counter("worker", "jobs_total", "Consumed jobs by kind and status.", "kind", "status"),
		queueLag: histogram("worker", "queue_lag_seconds", "Delay between job enqueue and processing start.",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}, "kind"),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) TargetStarted() {
	m.targetsInFlight.Inc()
}

func (m *WorkerMetrics) TargetFinished(success bool, duration time.Duration) {
	m.targetsInFlight.Dec()

	status := "success"
	if !success {
		status = "error"
	}
	m.targetsTotal.WithLabelValues(m.service, status).Inc()
	m.targetDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ExtractionFinished(result *domain.ExtractionResult, duration time.Duration) {
	if result == nil {
		return
	}
	status := string(result.Status)
	m.extractionTotal.WithLabelValues(m.service, result.Type, status).Inc()
	m.extractionDuration.WithLabelValues(m.service, result.Type, status).Observe(duration.Seconds())
	m.promptChunks.WithLabelValues(m.service).Observe(float64(result.RequestMeta.ChunkCount))

	meta := result.RequestMeta
	if meta.Provider == "" {
		return
	}
	if meta.InputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, meta.Provider, meta.Model, "in").Add(float64(meta.InputTokens))
	}
	if meta.OutputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, meta.Provider, meta.Model, "out").Add(float64(meta.OutputTokens))
	}
}

func (m *WorkerMetrics) FinishJob(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(m.service, kind, status).Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(kind string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service, kind).Observe(lag.Seconds())
}
