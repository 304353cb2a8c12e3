package recv

import (
	"time"

	"github.com/ajameson/spead2/internal/xtime"
)

// byteRange is a half-open interval [Start, End) of payload bytes
// already written.
type byteRange struct {
	start, end int64
}

// partialHeap accumulates packets for one in-flight heap_cnt until its
// received ranges cover [0, heapLength) and at least one item pointer
// has arrived.
type partialHeap struct {
	cnt         uint64
	heapLength  int64 // -1 until a HeapLengthID pointer is seen
	addressBits int
	payload     []byte
	ranges      []byteRange
	pointers    []uint64
	lastUpdate  time.Time
}

func newPartialHeap(cnt uint64, now time.Time) *partialHeap {
	return &partialHeap{cnt: cnt, heapLength: -1, lastUpdate: now}
}

// write records pp's payload at pp.PayloadOffset, allocating the
// backing buffer once heapLength becomes known. Overlapping writes are
// permitted; the later write wins over already-written bytes, mirroring
// how an addressed item's payload is laid out regardless of arrival
// order.
func (p *partialHeap) write(pp ParsedPacket, now time.Time) {
	p.lastUpdate = now
	if pp.HeapLength >= 0 && p.heapLength < 0 {
		p.heapLength = pp.HeapLength
		buf := make([]byte, p.heapLength)
		copy(buf, p.payload)
		p.payload = buf
	}
	// heap_length may arrive on a later packet than the first payload
	// bytes; grow the buffer to fit what's seen so far in the meantime.
	end := pp.PayloadOffset + pp.PayloadLength
	if int64(len(p.payload)) < end {
		grown := make([]byte, end)
		copy(grown, p.payload)
		p.payload = grown
	}
	copy(p.payload[pp.PayloadOffset:end], pp.Payload)
	p.ranges = mergeRange(p.ranges, pp.PayloadOffset, end)
	p.pointers = append(p.pointers, pp.ItemPointers...)
	if p.addressBits == 0 {
		p.addressBits = pp.AddressBits
	}
}

// complete reports whether the union of received ranges covers
// [0, heapLength) and at least one item pointer has been seen.
func (p *partialHeap) complete() bool {
	if p.heapLength < 0 || len(p.pointers) == 0 {
		return false
	}
	return len(p.ranges) == 1 && p.ranges[0].start == 0 && p.ranges[0].end == p.heapLength
}

// mergeRange inserts [start, end) into ranges, keeping the slice sorted
// and coalescing overlapping or adjacent intervals.
func mergeRange(ranges []byteRange, start, end int64) []byteRange {
	if start >= end {
		return ranges
	}
	out := make([]byteRange, 0, len(ranges)+1)
	inserted := false
	for _, r := range ranges {
		switch {
		case r.end < start:
			out = append(out, r)
		case end < r.start:
			if !inserted {
				out = append(out, byteRange{start, end})
				inserted = true
			}
			out = append(out, r)
		default: // overlap or touch: merge into the pending interval
			if r.start < start {
				start = r.start
			}
			if r.end > end {
				end = r.end
			}
		}
	}
	if !inserted {
		out = append(out, byteRange{start, end})
	}
	return out
}

// Table is a bounded, LRU-by-last-update map of in-flight partial
// heaps, keyed by heap_cnt. It is not safe for concurrent use; callers
// serialise access themselves (Stream does so under its mutex).
type Table struct {
	maxHeaps int
	clock    xtime.Clock
	heaps    map[uint64]*partialHeap
}

// NewTable returns an empty Table bounded to maxHeaps entries.
func NewTable(maxHeaps int, clock xtime.Clock) *Table {
	return &Table{maxHeaps: maxHeaps, clock: clock, heaps: make(map[uint64]*partialHeap)}
}

// Len is the current number of in-flight partial heaps.
func (t *Table) Len() int { return len(t.heaps) }

// Ingest applies pp to its partial heap, creating one (evicting the
// LRU entry first if the table is full) if this is the first packet
// seen for pp.HeapCnt. It returns the now-complete heap and true if pp
// completed it, and/or the evicted incomplete heap and true if an
// eviction was needed to make room.
func (t *Table) Ingest(pp ParsedPacket) (completed *partialHeap, didComplete bool, evicted *partialHeap, didEvict bool) {
	now := t.clock.Now()
	ph, ok := t.heaps[pp.HeapCnt]
	if !ok {
		if len(t.heaps) >= t.maxHeaps {
			evicted, didEvict = t.evictOldestLocked()
		}
		ph = newPartialHeap(pp.HeapCnt, now)
		t.heaps[pp.HeapCnt] = ph
	}
	ph.write(pp, now)
	if ph.complete() {
		delete(t.heaps, pp.HeapCnt)
		return ph, true, evicted, didEvict
	}
	return nil, false, evicted, didEvict
}

func (t *Table) evictOldestLocked() (*partialHeap, bool) {
	var oldestCnt uint64
	var oldest *partialHeap
	first := true
	for cnt, ph := range t.heaps {
		if first || ph.lastUpdate.Before(oldest.lastUpdate) {
			oldestCnt, oldest, first = cnt, ph, false
		}
	}
	if oldest == nil {
		return nil, false
	}
	delete(t.heaps, oldestCnt)
	return oldest, true
}

// Drain removes and returns every remaining partial heap, in an
// unspecified order, for flushing as incomplete heaps at stream stop.
func (t *Table) Drain() []*partialHeap {
	out := make([]*partialHeap, 0, len(t.heaps))
	for cnt, ph := range t.heaps {
		out = append(out, ph)
		delete(t.heaps, cnt)
	}
	return out
}
