package recv

import "github.com/ajameson/spead2/internal/xatomic"

// Stats are always-on, lock-free counters for one Stream, independent
// of whether a prometheus RecvMetrics collector was attached via
// WithMetrics. Completed/Incomplete/ParseErrors mirror the equivalent
// RecvMetrics counters; BytesReceived has no RecvMetrics counterpart.
type Stats struct {
	BytesReceived xatomic.Int64 // raw bytes handed to HandlePacket, parsed or not
	Completed     xatomic.Int64 // heaps reassembled to completion
	Incomplete    xatomic.Int64 // heaps flushed incomplete (LRU eviction or Stop)
	ParseErrors   xatomic.Int64 // packets dropped for failing validation
}

// StatsSnapshot is a point-in-time copy of Stats, safe to log or compare.
type StatsSnapshot struct {
	BytesReceived, Completed, Incomplete, ParseErrors int64
}

// Snapshot reads every counter once; not a single consistent transaction.
func (st *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BytesReceived: st.BytesReceived.Load(),
		Completed:     st.Completed.Load(),
		Incomplete:    st.Incomplete.Load(),
		ParseErrors:   st.ParseErrors.Load(),
	}
}
