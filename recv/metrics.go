package recv

import "github.com/prometheus/client_golang/prometheus"

// RecvMetrics is a set of prometheus collectors tracking one Stream's
// reassembly outcomes.
type RecvMetrics struct {
	completed    prometheus.Counter
	incomplete   prometheus.Counter
	parseErrors  prometheus.Counter
	partialHeaps prometheus.Gauge
}

// NewMetrics builds the collectors with the given constant labels
// (e.g. stream name) and registers them with reg.
func NewMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) *RecvMetrics {
	m := &RecvMetrics{
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "recv",
			Name:        "heaps_completed_total",
			Help:        "Heaps reassembled to completion and dispatched.",
			ConstLabels: constLabels,
		}),
		incomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "recv",
			Name:        "heaps_incomplete_total",
			Help:        "Heaps flushed incomplete, by LRU eviction or stream stop.",
			ConstLabels: constLabels,
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "recv",
			Name:        "parse_errors_total",
			Help:        "Packets dropped for failing header or mandatory-item validation.",
			ConstLabels: constLabels,
		}),
		partialHeaps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "spead2",
			Subsystem:   "recv",
			Name:        "partial_heaps_in_flight",
			Help:        "Current size of the partial-heap table.",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(m.completed, m.incomplete, m.parseErrors, m.partialHeaps)
	return m
}
