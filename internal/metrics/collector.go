// Package metrics exposes Prometheus instrumentation for CSV exports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duck-export/internal/domain"
)

const namespace = "csvexport"

// Export outcome labels for exports_total.
const (
	StatusSuccess      = "success"
	StatusInvalidQuery = "invalid_query"
	StatusSourceError  = "source_error"
	StatusIOError      = "io_error"
	StatusCanceled     = "canceled"
	StatusError        = "error"
)

// Collector records export metrics on its own registry. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	exports   *prometheus.CounterVec
	rows      prometheus.Counter
	chunks    prometheus.Counter
	chunkRows prometheus.Histogram
	duration  prometheus.Histogram
	inFlight  prometheus.Gauge
}

// NewCollector creates a Collector with a private registry that also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export attempts by outcome.",
		}, []string{"status"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_rows_total",
			Help:      "Data rows written to export files.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_chunks_total",
			Help:      "Chunks written to export files.",
		}),
		chunkRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_chunk_rows",
			Help:      "Rows per written chunk.",
			Buckets:   []float64{1, 10, 100, 250, 500, 1000, 5000, 10000},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Wall time of finished exports.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exports_in_flight",
			Help:      "Exports currently streaming.",
		}),
	}
	reg.MustRegister(
		c.exports, c.rows, c.chunks, c.chunkRows, c.duration, c.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ExportStarted marks an export as in flight.
func (c *Collector) ExportStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

// ObserveChunk records one written chunk.
func (c *Collector) ObserveChunk(info domain.ChunkInfo) {
	if c == nil {
		return
	}
	c.chunks.Inc()
	c.rows.Add(float64(info.Size))
	c.chunkRows.Observe(float64(info.Size))
}

// ExportFinished records the outcome of an export that was started.
func (c *Collector) ExportFinished(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.inFlight.Dec()
	c.exports.WithLabelValues(status).Inc()
	c.duration.Observe(d.Seconds())
}

// ExportRejected records an export refused before it started streaming.
func (c *Collector) ExportRejected(status string) {
	if c == nil {
		return
	}
	c.exports.WithLabelValues(status).Inc()
}
