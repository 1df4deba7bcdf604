package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

type ragCollectors struct {
	requestsTotal     *prometheus.CounterVec
	fusedResults      *prometheus.HistogramVec
	noContextTotal    *prometheus.CounterVec
	outOfScopeTotal   *prometheus.CounterVec
	streamErrorsTotal *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	breakerTotal      *prometheus.CounterVec
}

func newRAGCollectors() *ragCollectors {
	return &ragCollectors{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "requests_total",
				Help:      "Finished RAG requests by routed query kind and status.",
			},
			[]string{"service", "query_kind", "status"},
		),
		fusedResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "fused_results",
				Help:      "Distribution of fused results per request.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"service", "query_kind"},
		),
		noContextTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "no_context_total",
				Help:      "Requests answered with the no-results message.",
			},
			[]string{"service"},
		),
		outOfScopeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "out_of_scope_answers_total",
				Help:      "Answers where the model reported missing context.",
			},
			[]string{"service"},
		),
		streamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "stream_errors_total",
				Help:      "Streamed answers that ended with an error event.",
			},
			[]string{"service"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "duration_seconds",
				Help:      "End-to-end RAG duration in seconds.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"service", "streamed"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rag",
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"service", "stage", "status"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Retry attempts by upstream operation.",
			},
			[]string{"service", "operation"},
		),
		breakerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions by upstream operation.",
			},
			[]string{"service", "operation", "from", "to"},
		),
	}
}

func (c *ragCollectors) register(registry *prometheus.Registry) {
	registry.MustRegister(
		c.requestsTotal,
		c.fusedResults,
		c.noContextTotal,
		c.outOfScopeTotal,
		c.streamErrorsTotal,
		c.duration,
		c.stageDuration,
		c.retriesTotal,
		c.breakerTotal,
	)
}

// ObserveStage records one pipeline stage.
func (m *HTTPServerMetrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.rag.stageDuration.WithLabelValues(m.service, stage, status).Observe(elapsed.Seconds())
}

// ObserveQuery records one finished query.
func (m *HTTPServerMetrics) ObserveQuery(event domain.QueryEvent) {
	kind := string(event.QueryKind)
	if kind == "" {
		kind = "unknown"
	}
	m.rag.requestsTotal.WithLabelValues(m.service, kind, string(event.Status)).Inc()
	m.rag.duration.WithLabelValues(m.service, boolLabel(event.Streamed)).Observe(float64(event.DurationMS) / 1000.0)

	switch event.Status {
	case domain.QueryStatusFailed:
		if event.Streamed {
			m.rag.streamErrorsTotal.WithLabelValues(m.service).Inc()
		}
		return
	case domain.QueryStatusNoContext:
		m.rag.noContextTotal.WithLabelValues(m.service).Inc()
	}
	m.rag.fusedResults.WithLabelValues(m.service, kind).Observe(float64(event.FusedCount))
	if event.OutOfScope {
		m.rag.outOfScopeTotal.WithLabelValues(m.service).Inc()
	}
}

func (m *HTTPServerMetrics) OnRetry(operation string, _ int, _ error) {
	m.rag.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) OnBreakerStateChange(operation, from, to string) {
	m.rag.breakerTotal.WithLabelValues(m.service, operation, from, to).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
