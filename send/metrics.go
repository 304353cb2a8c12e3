package send

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a set of prometheus collectors tracking one Stream's queue
// admission and completion counts. Registering the same *Metrics with
// more than one prometheus.Registerer will panic, as usual for
// prometheus collectors; construct one Metrics per Stream.
type Metrics struct {
	accepted  prometheus.Counter
	rejected  prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	bytesSent prometheus.Counter
}

// NewMetrics builds the counters with the given constant labels (e.g.
// stream name) and registers them with reg.
func NewMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	m := &Metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "send",
			Name:        "heaps_accepted_total",
			Help:        "Heaps accepted onto the send queue.",
			ConstLabels: constLabels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "send",
			Name:        "heaps_rejected_total",
			Help:        "Heaps rejected because the send queue was full.",
			ConstLabels: constLabels,
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "send",
			Name:        "heaps_completed_total",
			Help:        "Heaps whose completion callback fired with no error.",
			ConstLabels: constLabels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "send",
			Name:        "heaps_failed_total",
			Help:        "Heaps whose completion callback fired with an error.",
			ConstLabels: constLabels,
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "spead2",
			Subsystem:   "send",
			Name:        "bytes_total",
			Help:        "Packet bytes (header + pointers + payload) handed to the transport.",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(m.accepted, m.rejected, m.completed, m.failed, m.bytesSent)
	return m
}
