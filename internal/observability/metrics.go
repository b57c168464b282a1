package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an Observer that exports operation counters, latencies and the
// size of the last purge.
type Metrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	entries    *prometheus.CounterVec
	lastPurge  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Number of store operations grouped by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "timeline",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations including executor round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timeline",
			Subsystem: "store",
			Name:      "entries_returned_total",
			Help:      "Number of entries returned or affected, grouped by operation.",
		}, []string{"op"}),
		lastPurge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "timeline",
			Subsystem: "purge",
			Name:      "last_deleted_entries",
			Help:      "Entries deleted by the most recent purge per namespace.",
		}, []string{"namespace"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.latency, m.entries, m.lastPurge} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Observe(_ context.Context, ev Event) {
	m.operations.WithLabelValues(ev.Op, ev.Outcome()).Inc()
	m.latency.WithLabelValues(ev.Op).Observe(ev.Duration.Seconds())
	if ev.Count > 0 {
		m.entries.WithLabelValues(ev.Op).Add(float64(ev.Count))
	}
	if ev.Op == OpPurge && ev.Err == nil {
		m.lastPurge.WithLabelValues(ev.Namespace).Set(float64(ev.Count))
	}
}
