package send

import "github.com/ajameson/spead2/internal/xatomic"

// Stats are always-on, lock-free counters for one Stream, independent
// of whether a prometheus Metrics collector was attached via
// WithMetrics. Num/Size/Offset track packets/bytes/current-heap-offset
// the way a transport layer's own send counters do; Rejected/Completed/
// Failed add the heap-level accounting a byte-oriented transport
// doesn't need but a heap-oriented scheduler does.
type Stats struct {
	Num       xatomic.Int64 // packets successfully handed to the Transport
	Size      xatomic.Int64 // bytes (header+pointers+payload) successfully sent
	Offset    xatomic.Int64 // bytes sent so far for the heap at the front of the queue
	Rejected  xatomic.Int64 // heaps rejected because the queue was full
	Completed xatomic.Int64 // heaps whose callback fired without error
	Failed    xatomic.Int64 // heaps whose callback fired with an error
}

// StatsSnapshot is a point-in-time copy of Stats, safe to log or compare.
type StatsSnapshot struct {
	Num, Size, Offset           int64
	Rejected, Completed, Failed int64
}

// Snapshot reads every counter once: six independent atomic loads, not
// one consistent transaction.
func (st *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Num:       st.Num.Load(),
		Size:      st.Size.Load(),
		Offset:    st.Offset.Load(),
		Rejected:  st.Rejected.Load(),
		Completed: st.Completed.Load(),
		Failed:    st.Failed.Load(),
	}
}
