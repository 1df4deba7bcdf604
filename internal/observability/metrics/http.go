package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skb"

// routes bounds the path label to what the API serves.
var routes = map[string]struct{}{
	"/healthz":         {},
	"/metrics":         {},
	"/openapi.yaml":    {},
	"/v1/query":        {},
	"/v1/query/stream": {},
	"/v1/classify":     {},
}

// HTTPServerMetrics owns the API registry: HTTP traffic here, pipeline and resilience
// collectors in rag.go.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec

	rag *ragCollectors
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	m := &HTTPServerMetrics{
		registry: prometheus.NewRegistry(),
		service:  service,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"service", "method", "path", "status"}),
		// Streaming answers stay open for the whole generation, hence the long tail.
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"service", "method", "path"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests per route.",
		}, []string{"service", "path"}),
		rag: newRAGCollectors(),
	}
	m.registry.MustRegister(m.requests, m.latency, m.inFlight)
	m.rag.register(m.registry)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		inFlight := m.inFlight.WithLabelValues(m.service, path)
		inFlight.Inc()
		defer inFlight.Dec()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		m.requests.WithLabelValues(m.service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.latency.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	if _, ok := routes[path]; ok {
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
