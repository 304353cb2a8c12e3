package recv

import (
	"sort"

	"github.com/ajameson/spead2/spead"
)

// Item is one entry of a frozen heap: either an immediate value,
// materialised into a private side buffer, or a reference to a byte
// range of the frozen heap's own payload buffer.
type Item struct {
	ID        uint64
	Immediate bool
	Data      []byte
}

// FrozenHeap is an immutable, completed heap: items sorted by
// (immediate_flag, address), immediates copied into a contiguous side
// buffer so every item exposes a uniform []byte view. Its memory is
// owned solely by the FrozenHeap; no other structure retains a
// reference into it after Freeze returns.
type FrozenHeap struct {
	Cnt   uint64
	Items []Item
}

// Freeze builds the immutable, sorted item table for a partial heap
// that Table.Ingest has reported complete. The four mandatory item IDs
// (heap_cnt, heap_length, payload_offset, payload_length) are
// protocol bookkeeping, repeated on every packet of the heap, and are
// never themselves surfaced as frozen items; id 0 (padding) is also
// dropped.
func Freeze(ph *partialHeap) *FrozenHeap {
	addressBits := ph.addressBits
	addressBytes := addressBits / 8

	type decoded struct {
		spead.ItemPointer
		key uint64
	}
	sorted := make([]decoded, 0, len(ph.pointers))
	for _, w := range ph.pointers {
		ptr := spead.DecodeItemPointer(w, addressBits)
		if isProtocolID(ptr.ID) {
			continue
		}
		sorted = append(sorted, decoded{ptr, spead.SortKey(w, addressBits)})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })

	addressedCount := 0
	for _, d := range sorted {
		if d.IsImmediate {
			break
		}
		addressedCount++
	}

	heapLen := ph.heapLength
	if heapLen < 0 {
		heapLen = int64(len(ph.payload))
	}

	items := make([]Item, 0, len(sorted))
	for i := 0; i < addressedCount; i++ {
		d := sorted[i]
		var length int64
		if i+1 < addressedCount {
			length = int64(sorted[i+1].Value) - int64(d.Value)
		} else {
			length = heapLen - int64(d.Value)
		}
		if length <= 0 {
			continue // zero/negative-length addressed items are dropped
		}
		start := int64(d.Value)
		end := start + length
		if end > int64(len(ph.payload)) {
			end = int64(len(ph.payload))
		}
		if start > end {
			start = end
		}
		items = append(items, Item{ID: d.ID, Data: ph.payload[start:end]})
	}

	immediates := sorted[addressedCount:]
	side := make([]byte, len(immediates)*addressBytes)
	for i, d := range immediates {
		buf := side[i*addressBytes : (i+1)*addressBytes]
		putUintBE(buf, d.Value)
		items = append(items, Item{ID: d.ID, Immediate: true, Data: buf})
	}

	return &FrozenHeap{Cnt: ph.cnt, Items: items}
}

func isProtocolID(id uint64) bool {
	switch id {
	case spead.NullID, spead.HeapCntID, spead.HeapLengthID, spead.PayloadOffsetID, spead.PayloadLengthID:
		return true
	default:
		return false
	}
}

// putUintBE writes the low len(b)*8 bits of v into b, big-endian.
func putUintBE(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// Get returns the first item with the given ID, if any.
func (fh *FrozenHeap) Get(id uint64) (Item, bool) {
	for _, it := range fh.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
