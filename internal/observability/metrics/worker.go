package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	rebuildTotal     *prometheus.CounterVec
	rebuildDuration  *prometheus.HistogramVec
	rebuildInFlight  prometheus.Gauge
	swapRefusedTotal *prometheus.CounterVec
	indexDocCount    prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	rebuildTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "worker",
			Name:      "index_rebuild_total",
			Help:      "Total index rebuilds by status.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "worker",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Full rebuild duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	rebuildInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "worker",
			Name:      "index_rebuild_in_flight",
			Help:      "Number of rebuilds currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	swapRefusedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "worker",
			Name:      "index_swap_refused_total",
			Help:      "Total swaps refused by the pre-swap drift check.",
		},
		[]string{"service"},
	)
	indexDocCount := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "worker",
			Name:      "index_doc_count",
			Help:      "Documents in the most recently activated index version.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(rebuildTotal, rebuildDuration, rebuildInFlight, swapRefusedTotal, indexDocCount)

	return &WorkerMetrics{
		registry:         registry,
		rebuildTotal:     rebuildTotal,
		rebuildDuration:  rebuildDuration,
		rebuildInFlight:  rebuildInFlight,
		swapRefusedTotal: swapRefusedTotal,
		indexDocCount:    indexDocCount,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRebuild() {
	m.rebuildInFlight.Inc()
}

func (m *WorkerMetrics) FinishRebuild(service string, duration time.Duration, docCount int, err error) {
	m.rebuildInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.rebuildTotal.WithLabelValues(service, status).Inc()
	m.rebuildDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err == nil {
		m.indexDocCount.Set(float64(docCount))
	}
}

func (m *WorkerMetrics) RecordSwapRefused(service string) {
	m.swapRefusedTotal.WithLabelValues(service).Inc()
}
