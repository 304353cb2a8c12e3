package send

// Item is one entry in an outbound Heap: either an inline immediate value
// or a reference to a byte range the caller owns until the heap's
// completion callback fires.
type Item struct {
	ID        uint64
	Immediate bool
	Value     uint64 // meaningful iff Immediate; low 48 bits used by convention
	Data      []byte // meaningful iff !Immediate; caller-owned, read-only
}

// Heap is a sequence of items to transmit as one SPEAD heap. Item IDs must
// be greater than zero; ID 0 is reserved for padding and must not appear
// here (the generator does not special-case it on the send side).
type Heap struct {
	Items []Item
}

// PayloadLength returns the sum of the addressed items' data lengths --
// the heap_length mandatory item value.
func (h *Heap) PayloadLength() int64 {
	var n int64
	for i := range h.Items {
		if !h.Items[i].Immediate {
			n += int64(len(h.Items[i].Data))
		}
	}
	return n
}
