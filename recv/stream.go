package recv

import (
	"sync"

	"github.com/ajameson/spead2/internal/xlog"
	"github.com/ajameson/spead2/internal/xtime"
	"github.com/rs/xid"
)

// DispatchResult is delivered to a Stream's consumer once per
// completed or evicted heap, and once more as a terminal marker after
// Stop.
type DispatchResult struct {
	Frozen     *FrozenHeap
	Incomplete bool // true if Frozen was flushed incomplete (LRU eviction or Stop)
	Terminal   bool // true for the single marker sent after Stop drains the table
}

// Stream is the receive-side reassembly engine: packets in, completed
// (or flushed-incomplete) frozen heaps out. HandlePacket must be called
// serially -- by the transport's own read loop, or otherwise
// externally serialised -- so results are dispatched in the order
// their packets were handled. Parsing and reassembly run on the
// caller's goroutine and the consumer runs on the Executor, so a
// consumer callback can run at the same time as a later HandlePacket
// call. Stop is the only method safe to call concurrently with
// HandlePacket.
type Stream struct {
	id       xid.ID
	cfg      *Config
	table    *Table
	exec     Executor
	consumer func(DispatchResult)
	log      *xlog.Logger
	metrics  *RecvMetrics
	stats    Stats

	mu      sync.Mutex
	stopped bool
}

// StreamOption configures optional Stream fields.
type StreamOption func(*Stream)

func WithLogger(l *xlog.Logger) StreamOption { return func(s *Stream) { s.log = l } }
func WithMetrics(m *RecvMetrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// NewStream constructs a Stream bounded by cfg.MaxHeaps in-flight
// partial heaps, dispatching completions to consumer via exec.
func NewStream(cfg *Config, exec Executor, clock xtime.Clock, consumer func(DispatchResult), opts ...StreamOption) *Stream {
	s := &Stream{
		id:       xid.New(),
		cfg:      cfg,
		table:    NewTable(cfg.MaxHeaps(), clock),
		exec:     exec,
		consumer: consumer,
		log:      xlog.New("recv"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the Stream's process-unique identifier, assigned at
// construction for use in logs and metrics labels.
func (s *Stream) ID() xid.ID { return s.id }

// Stats returns a snapshot of the Stream's lock-free counters. Unlike
// the prometheus collectors attached via WithMetrics, these are always
// available and cost no registration.
func (s *Stream) Stats() StatsSnapshot { return s.stats.Snapshot() }

// HandlePacket parses and reassembles one raw packet -- a UDP
// datagram, or one payload yielded by a Framer. Parse errors are
// logged and the packet is dropped; the stream continues.
func (s *Stream) HandlePacket(buf []byte) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.stats.BytesReceived.Add(int64(len(buf)))
	pp, err := ParsePacket(buf)
	if err != nil {
		s.stats.ParseErrors.Inc()
		if s.metrics != nil {
			s.metrics.parseErrors.Inc()
		}
		s.log.Warningf("stream %s: dropping packet: %v", s.id, err)
		return
	}

	s.mu.Lock()
	completed, didComplete, evicted, didEvict := s.table.Ingest(pp)
	heapsInFlight := s.table.Len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.partialHeaps.Set(float64(heapsInFlight))
	}
	if didEvict {
		s.log.Warningf("evicted incomplete heap %d to admit heap %d", evicted.cnt, pp.HeapCnt)
		s.dispatch(evicted, true)
	}
	if didComplete {
		s.dispatch(completed, false)
	}
}

func (s *Stream) dispatch(ph *partialHeap, incomplete bool) {
	fh := Freeze(ph)
	if incomplete {
		s.stats.Incomplete.Inc()
	} else {
		s.stats.Completed.Inc()
	}
	if s.metrics != nil {
		if incomplete {
			s.metrics.incomplete.Inc()
		} else {
			s.metrics.completed.Inc()
		}
	}
	consumer := s.consumer
	s.exec.Post(func() { consumer(DispatchResult{Frozen: fh, Incomplete: incomplete}) })
}

// Stop flushes every in-flight partial heap to the consumer as
// incomplete, in an unspecified order, followed by a terminal marker.
// After Stop, HandlePacket is a no-op, and further Stop calls do nothing.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	leftover := s.table.Drain()
	s.mu.Unlock()

	for _, ph := range leftover {
		s.dispatch(ph, true)
	}
	consumer := s.consumer
	s.exec.Post(func() { consumer(DispatchResult{Terminal: true}) })
}
