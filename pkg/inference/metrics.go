package inference

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records orchestrator telemetry.
type Metrics interface {
	TileInferred(latency time.Duration)
	TileSkipped()
	TileFailed()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) TileInferred(time.Duration) {}
func (NoopMetrics) TileSkipped()               {}
func (NoopMetrics) TileFailed()                {}

// PrometheusMetrics exports tile counters and oracle latency.
type PrometheusMetrics struct {
	tiles   *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewPrometheusMetrics registers the inference collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nucleofind",
			Subsystem: "inference",
			Name:      "tiles_total",
			Help:      "Tiles processed, by outcome (inferred, skipped, failed).",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nucleofind",
			Subsystem: "inference",
			Name:      "oracle_latency_seconds",
			Help:      "Latency of single-tile oracle calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	for _, c := range []prometheus.Collector{m.tiles, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) TileInferred(latency time.Duration) {
	m.tiles.WithLabelValues("inferred").Inc()
	m.latency.Observe(latency.Seconds())
}

func (m *PrometheusMetrics) TileSkipped() {
	m.tiles.WithLabelValues("skipped").Inc()
}

func (m *PrometheusMetrics) TileFailed() {
	m.tiles.WithLabelValues("failed").Inc()
}
