package send

import (
	"context"
	"sync"
	"time"

	"github.com/ajameson/spead2/internal/xlog"
	"github.com/ajameson/spead2/internal/xtime"
	"github.com/ajameson/spead2/spead"
	"github.com/rs/xid"
)

// State is a Stream's position in its send state machine.
type State int

const (
	StateEmpty State = iota
	StateQueued
	StateSending
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateQueued:
		return "queued"
	case StateSending:
		return "sending"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Result is delivered to a heap's completion callback exactly once.
type Result struct {
	Bytes int
	Err   error
}

// queueItem tracks one heap from admission through completion. A single
// Generator is created lazily and lives for the item's whole time at the
// front of (or behind) the queue; it is never restarted.
type queueItem struct {
	heap *Heap
	cnt  uint64
	cb   func(Result)

	gen            *Generator
	err            error
	bytesSent      int
	pendingPackets int
	sawLast        bool
}

// Stream is the send-side scheduler and pacer: a bounded queue of heaps,
// fragmented by Generator and paced onto a Transport, with completion
// callbacks firing in enqueue order. One Stream serialises all its own
// state behind mu; NextPacket-style pulls are not exposed externally --
// the Stream itself drives the Transport once per burst.
type Stream struct {
	id        xid.ID
	mu        sync.Mutex
	cfg       *Config
	transport Transport
	exec      Executor
	clock     xtime.Clock
	log       *xlog.Logger
	metrics   *Metrics
	stats     Stats
	afterFunc func(time.Duration, func()) *time.Timer

	queue   []*queueItem
	state   State
	nextCnt uint64
	stepCnt uint64

	rateBytes       int64
	sendTimeBurst   time.Time
	sendTime        time.Time
	secPerByte      float64
	secPerByteBurst float64

	timer        *time.Timer
	flushWaiters []chan struct{}
}

// StreamOption configures optional Stream fields.
type StreamOption func(*Stream)

// WithLogger attaches a component logger.
func WithLogger(l *xlog.Logger) StreamOption {
	return func(s *Stream) { s.log = l }
}

// WithMetrics attaches a Metrics collector.
func WithMetrics(m *Metrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// withAfterFunc overrides the real-time timer for tests.
func withAfterFunc(f func(time.Duration, func()) *time.Timer) StreamOption {
	return func(s *Stream) { s.afterFunc = f }
}

// NewStream constructs a Stream bound to transport and paced according
// to cfg. clock supplies "now" for the pacer's virtual-clock math; pass
// xtime.Real in production and an xtime.Manual in tests, though note the
// pacer's actual sleeps still use real wall-clock timers regardless of
// clock (see advance's use of afterFunc).
func NewStream(cfg *Config, transport Transport, exec Executor, clock xtime.Clock, opts ...StreamOption) *Stream {
	now := clock.Now()
	s := &Stream{
		id:            xid.New(),
		cfg:           cfg,
		transport:     transport,
		exec:          exec,
		clock:         clock,
		log:           xlog.New("send"),
		afterFunc:     time.AfterFunc,
		nextCnt:       1,
		stepCnt:       1,
		sendTimeBurst: now,
		sendTime:      now,
	}
	if cfg.Rate() > 0 {
		s.secPerByte = 1.0 / cfg.Rate()
	}
	if cfg.BurstRate() > 0 {
		s.secPerByteBurst = 1.0 / cfg.BurstRate()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AsyncSendHeap enqueues heap for transmission. cb fires exactly once,
// either after the heap's last packet is accounted for (success) or
// after any packet of the heap fails (error) -- never both. If the
// queue is already at cfg.MaxHeaps(), the heap is rejected: cb fires
// with spead.ErrWouldBlock and 0 bytes, posted via the stream's
// Executor, and AsyncSendHeap returns false.
//
// explicitCnt, if given, overrides automatic heap-counter assignment.
// Callers mixing explicit and automatic counters are responsible for
// keeping them disjoint.
func (s *Stream) AsyncSendHeap(heap *Heap, cb func(Result), explicitCnt ...uint64) bool {
	s.mu.Lock()

	if len(s.queue) >= s.cfg.MaxHeaps() {
		s.mu.Unlock()
		s.log.Warningf("stream %s: queue full at %d heaps, rejecting", s.id, s.cfg.MaxHeaps())
		s.exec.Post(func() { cb(Result{Bytes: 0, Err: spead.ErrWouldBlock}) })
		s.stats.Rejected.Inc()
		if s.metrics != nil {
			s.metrics.rejected.Inc()
		}
		return false
	}

	cnt := s.nextCnt
	if len(explicitCnt) > 0 {
		cnt = explicitCnt[0]
	} else {
		s.nextCnt += s.stepCnt
	}

	item := &queueItem{heap: heap, cnt: cnt, cb: cb}
	wasEmpty := s.state == StateEmpty
	s.queue = append(s.queue, item)
	if s.metrics != nil {
		s.metrics.accepted.Inc()
	}

	if wasEmpty {
		now := s.clock.Now()
		s.sendTimeBurst = now
		s.sendTime = now
		s.rateBytes = 0
		s.state = StateQueued
		s.mu.Unlock()
		s.exec.Post(func() { s.advance(nil, nil) })
		return true
	}
	s.mu.Unlock()
	return true
}

// ID returns the Stream's process-unique identifier, assigned at
// construction for use in logs and metrics labels.
func (s *Stream) ID() xid.ID { return s.id }

// Stats returns a snapshot of the Stream's lock-free counters. Unlike
// the prometheus collectors attached via WithMetrics, these are always
// available and cost no registration.
func (s *Stream) Stats() StatsSnapshot { return s.stats.Snapshot() }

// SetCntSequence changes the automatic heap-counter assignment. step
// must be non-zero.
func (s *Stream) SetCntSequence(next, step uint64) error {
	if step == 0 {
		return cfgErr("step_cnt", step, errNotPositive)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCnt, s.stepCnt = next, step
	return nil
}

// Status returns the scheduler's current state, for monitoring.
func (s *Stream) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Flush blocks until the queue drains to State Empty, or ctx is done.
// If producers keep enqueuing heaps faster than they drain, Flush can
// block indefinitely; this mirrors the livelock documented for the
// blocking flush this is modelled on.
func (s *Stream) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateEmpty {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.flushWaiters = append(s.flushWaiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels any armed timer and fails every queued heap's callback
// with spead.ErrCancelled and the bytes sent so far. This includes heaps
// whose packets were already handed to the transport but not yet
// reported on; results the transport reports for them afterwards do not
// fire their callbacks again.
func (s *Stream) Stop() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.state = StateEmpty
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.wakeFlushWaitersLocked()
	s.mu.Unlock()

	for _, it := range pending {
		it := it
		s.exec.Post(func() {
			it.cb(Result{Bytes: it.bytesSent, Err: spead.ErrCancelled})
		})
	}
}

func (s *Stream) wakeFlushWaitersLocked() {
	for _, ch := range s.flushWaiters {
		close(ch)
	}
	s.flushWaiters = nil
}

// advance is the scheduler's single state-transition method, invoked
// (a) on enqueue when the stream was Empty, (b) on pacer timer fire
// from Sleeping, (c) on transport completion from Sending. owners/results
// describe the just-completed batch, or are nil if advance is running
// because of an enqueue or timer fire.
func (s *Stream) advance(owners []*queueItem, results []PacketResult) {
	s.mu.Lock()
	for {
		if results != nil {
			s.applyResults(owners, results)
			results, owners = nil, nil
		}
		s.finalizeFrontLocked()

		if s.rateBytes >= int64(s.cfg.BurstSize()) {
			target := s.updateSendTimesLocked()
			s.rateBytes = 0
			now := s.clock.Now()
			if target.After(now) {
				s.state = StateSleeping
				d := target.Sub(now)
				s.timer = s.afterFunc(d, func() {
					s.exec.Post(func() { s.advance(nil, nil) })
				})
				s.mu.Unlock()
				return
			}
			continue
		}

		if len(s.queue) == 0 {
			s.state = StateEmpty
			s.wakeFlushWaitersLocked()
			s.mu.Unlock()
			return
		}

		s.state = StateSending
		batch, batchOwners := s.buildBatchLocked()
		if len(batch) == 0 {
			// every generatable item errored during construction;
			// loop back around to finalize them.
			continue
		}

		transport, exec := s.transport, s.exec
		s.mu.Unlock()
		transport.AsyncSendPackets(batch, func(res []PacketResult) {
			exec.Post(func() { s.advance(batchOwners, res) })
		})
		return
	}
}

func (s *Stream) applyResults(owners []*queueItem, results []PacketResult) {
	front := s.queue
	for i, r := range results {
		item := owners[i]
		item.pendingPackets--
		if item.err != nil {
			continue
		}
		if r.Err != nil {
			item.err = r.Err
			continue
		}
		item.bytesSent += r.Bytes
		s.stats.Num.Inc()
		s.stats.Size.Add(int64(r.Bytes))
		if len(front) > 0 && item == front[0] {
			s.stats.Offset.Add(int64(r.Bytes))
		}
	}
}

func (s *Stream) finalizeFrontLocked() {
	for len(s.queue) > 0 {
		front := s.queue[0]
		finished := front.err != nil || (front.sawLast && front.pendingPackets == 0)
		if !finished {
			break
		}
		s.queue = s.queue[1:]
		if front.err != nil {
			s.stats.Failed.Inc()
		} else {
			s.stats.Completed.Inc()
		}
		s.stats.Offset.Store(0)
		if s.metrics != nil {
			if front.err != nil {
				s.metrics.failed.Inc()
			} else {
				s.metrics.completed.Inc()
			}
		}
		cb, res := front.cb, Result{Bytes: front.bytesSent, Err: front.err}
		s.exec.Post(func() { cb(res) })
	}
}

// buildBatchLocked pulls as many packets as fit in the remaining burst
// budget, never interleaving two heaps' packets: it fully drains one
// queueItem's generator before starting the next.
func (s *Stream) buildBatchLocked() ([]Packet, []*queueItem) {
	remaining := int64(s.cfg.BurstSize()) - s.rateBytes
	if remaining <= 0 {
		remaining = int64(s.cfg.BurstSize())
	}
	var batch []Packet
	var owners []*queueItem
	var added int64

	for _, item := range s.queue {
		if item.err != nil {
			continue
		}
		if added >= remaining {
			break
		}
		if item.gen == nil {
			gen, err := NewGenerator(item.heap, item.cnt, s.cfg.MaxPacketSize(), s.cfg.AddressBits())
			if err != nil {
				item.err = err
				continue
			}
			item.gen = gen
		}
		for item.gen.HasNext() && added < remaining {
			pkt, err := item.gen.Next()
			if err != nil {
				item.err = err
				break
			}
			batch = append(batch, pkt)
			owners = append(owners, item)
			item.pendingPackets++
			added += int64(pkt.Size())
			if pkt.Last {
				item.sawLast = true
			}
		}
		if item.gen.HasNext() {
			break // budget exhausted mid-heap
		}
	}
	s.rateBytes += added
	if s.metrics != nil {
		s.metrics.bytesSent.Add(float64(added))
	}
	return batch, owners
}

// updateSendTimesLocked advances the two virtual clocks by the bytes
// accumulated in rateBytes and returns the next permitted release time.
func (s *Stream) updateSendTimesLocked() time.Time {
	now := s.clock.Now()
	rb := float64(s.rateBytes)
	s.sendTimeBurst = s.sendTimeBurst.Add(secondsToDuration(rb * s.secPerByteBurst))
	s.sendTime = s.sendTime.Add(secondsToDuration(rb * s.secPerByte))
	target := s.sendTimeBurst
	if s.sendTime.After(target) {
		target = s.sendTime
	}
	if target.After(now) {
		s.sendTimeBurst = target
	} else {
		s.sendTimeBurst = now
	}
	return target
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
