package ingest

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ingestion metrics in their own registry. A nil *Metrics records
// nothing.
type Metrics struct {
	BatchesTotal  *prometheus.CounterVec
	RowsTotal     *prometheus.CounterVec
	BatchDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates and registers the ingestion metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderingest",
			Name:      "batches_total",
			Help:      "Total ingestion batches by platform and status",
		},
		[]string{"platform", "status"}, // status "ok", "error"
	)

	m.RowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderingest",
			Name:      "rows_total",
			Help:      "Total rows processed by platform and outcome",
		},
		[]string{"platform", "outcome"}, // outcome "succeeded", "failed"
	)

	m.BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "orderingest",
			Name:      "batch_duration_seconds",
			Help:      "Time to ingest a batch",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		},
	)

	m.registry.MustRegister(
		m.BatchesTotal,
		m.RowsTotal,
		m.BatchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBatch records a completed batch.
func (m *Metrics) RecordBatch(result Result, duration time.Duration) {
	if m == nil {
		return
	}
	platform := result.Platform
	if platform == "" {
		platform = "unknown"
	}
	m.BatchesTotal.WithLabelValues(platform, string(result.Status)).Inc()
	m.BatchDuration.Observe(duration.Seconds())
	if result.Status != StatusOK {
		return
	}
	m.RowsTotal.WithLabelValues(platform, "succeeded").Add(float64(result.Succeeded))
	m.RowsTotal.WithLabelValues(platform, "failed").Add(float64(result.Failed))
}
