package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the query-log consumer.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	lag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		service:  service,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "query_event_total",
			Help:        "Consumed query events by persistence status.",
			ConstLabels: labels,
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "query_event_duration_seconds",
			Help:        "Time spent persisting one query event.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			ConstLabels: labels,
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "query_event_in_flight",
			Help:        "Query events being persisted.",
			ConstLabels: labels,
		}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between query completion and event consumption.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.events, m.duration, m.inFlight, m.lag)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Track marks one event in flight and returns the callback that records its outcome.
func (m *WorkerMetrics) Track() func(error) {
	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		status := "success"
		if err != nil {
			status = "error"
		}
		m.events.WithLabelValues(status).Inc()
		m.duration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
}

// ObserveQueueLag ignores negative lag caused by clock skew between hosts.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.lag.Observe(lag.Seconds())
}
