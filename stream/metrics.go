package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus instruments updated by a Registry.
// A nil *Metrics records nothing.
type Metrics struct {
	Deltas        *prometheus.CounterVec
	Emissions     *prometheus.CounterVec
	EmittedBytes  *prometheus.CounterVec
	BatchBytes    *prometheus.HistogramVec
	SinkErrors    *prometheus.CounterVec
	ActiveStreams prometheus.Gauge
}

// NewMetrics registers the instruments on reg under namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Deltas: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_total",
			Help:      "Deltas written to streams by channel.",
		}, []string{"channel"}),
		Emissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emissions_total",
			Help:      "Batches emitted to the sink by channel.",
		}, []string{"channel"}),
		EmittedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emitted_bytes_total",
			Help:      "Bytes emitted to the sink by channel.",
		}, []string{"channel"}),
		BatchBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_bytes",
			Help:      "Size of emitted batches in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}, []string{"channel"}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink deliveries by channel.",
		}, []string{"channel"}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of open streams.",
		}),
	}
}

func (m *Metrics) delta(channel string) {
	if m == nil {
		return
	}
	m.Deltas.WithLabelValues(channel).Inc()
}

func (m *Metrics) emitted(channel string, n int) {
	if m == nil {
		return
	}
	m.Emissions.WithLabelValues(channel).Inc()
	m.EmittedBytes.WithLabelValues(channel).Add(float64(n))
	m.BatchBytes.WithLabelValues(channel).Observe(float64(n))
}

func (m *Metrics) sinkError(channel string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.ActiveStreams.Set(float64(n))
}
