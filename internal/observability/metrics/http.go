package metrics

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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal   *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	retrievedHits  *prometheus.HistogramVec
	cacheHitsTotal *prometheus.CounterVec
	degradedTotal  *prometheus.CounterVec
	indexDrift     prometheus.Gauge
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "answered_total",
			Help:      "Total answered queries by routed mode and confidence.",
		},
		[]string{"service", "mode", "confidence"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	retrievedHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "retrieved_hits",
			Help:      "Distribution of fused hits returned per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	cacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "cache_total",
			Help:      "Response cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "degraded_total",
			Help:      "Total queries answered from partial retrieval.",
		},
		[]string{"service"},
	)
	indexDrift := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "drift",
			Help:      "1 when the active index disagrees with the document store beyond tolerance.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryDuration,
		retrievedHits,
		cacheHitsTotal,
		degradedTotal,
		indexDrift,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		queriesTotal:    queriesTotal,
		queryDuration:   queryDuration,
		retrievedHits:   retrievedHits,
		cacheHitsTotal:  cacheHitsTotal,
		degradedTotal:   degradedTotal,
		indexDrift:      indexDrift,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordQuery records one answered query.
func (m *HTTPServerMetrics) RecordQuery(service, mode, confidence string, hits int, degraded bool, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if confidence == "" {
		confidence = "unknown"
	}
	m.queriesTotal.WithLabelValues(service, mode, confidence).Inc()
	m.queryDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	m.retrievedHits.WithLabelValues(service).Observe(float64(hits))
	if degraded {
		m.degradedTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordCacheLookup(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheHitsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) SetIndexDrift(drifted bool) {
	if drifted {
		m.indexDrift.Set(1)
		return
	}
	m.indexDrift.Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
