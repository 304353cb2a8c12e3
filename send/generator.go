package send

import (
	"net"

	"github.com/pkg/errors"

	"github.com/ajameson/spead2/spead"
)

// minPacketSize is the smallest packet that can hold the four mandatory
// item pointers and nothing else.
const minPacketSize = spead.HeaderSize + 4*spead.PointerSize

// minUsefulPacketSize is the smallest max_packet_size that can make
// forward progress on a heap with at least one item: room for the
// mandatory pointers, one more item pointer to introduce the item, and
// at least one payload byte -- the strictest case, an addressed item
// sharing its packet with nothing else. A generator built below this
// floor for a non-empty heap could never emit that item's pointer and
// would loop producing identical mandatory-only packets forever.
const minUsefulPacketSize = minPacketSize + spead.PointerSize + 1

// ErrPacketTooSmall is returned by NewGenerator when maxPacketSize cannot
// even hold the mandatory item pointers, or (for a non-empty heap)
// cannot additionally fit one more item pointer and a payload byte.
var ErrPacketTooSmall = errors.Errorf("send: max_packet_size must be >= %d (>= %d for a non-empty heap)", minPacketSize, minUsefulPacketSize)

// ErrGeneratorExhausted is returned by Next after HasNext reports false.
var ErrGeneratorExhausted = errors.New("send: packet generator exhausted")

// Packet is one wire-ready SPEAD packet: a header, the item pointers that
// belong to it (mandatory ones first, in ID order, then any additional
// pointers introduced by items that first appear in this packet), and a
// scatter list of payload byte ranges borrowed from the heap's items.
type Packet struct {
	Header   [spead.HeaderSize]byte
	Pointers []uint64
	Payload  net.Buffers
	Last     bool
}

// Size is the total on-wire byte length of the packet.
func (p *Packet) Size() int {
	n := len(p.Header) + len(p.Pointers)*spead.PointerSize
	for _, b := range p.Payload {
		n += len(b)
	}
	return n
}

// Generator fragments one Heap into a finite, single-use lazy sequence of
// packets. It is not safe for
// concurrent use and cannot be restarted once exhausted.
type Generator struct {
	heap         *Heap
	cnt          uint64
	maxPacketSize int
	addressBits  int

	addrs      []int64 // per-item address, meaningful only for addressed items
	heapLength int64

	itemIdx    int
	itemOff    int64
	payloadOff int64
	done       bool
}

// NewGenerator validates maxPacketSize against the protocol minimum and
// precomputes the addressed items' offsets within the heap payload, in
// the order the items appear in h.
func NewGenerator(h *Heap, cnt uint64, maxPacketSize, addressBits int) (*Generator, error) {
	floor := minPacketSize
	if len(h.Items) > 0 {
		floor = minUsefulPacketSize
	}
	if maxPacketSize < floor {
		return nil, ErrPacketTooSmall
	}
	g := &Generator{
		heap:          h,
		cnt:           cnt,
		maxPacketSize: maxPacketSize,
		addressBits:   addressBits,
		addrs:         make([]int64, len(h.Items)),
	}
	var off int64
	for i := range h.Items {
		if !h.Items[i].Immediate {
			g.addrs[i] = off
			off += int64(len(h.Items[i].Data))
		}
	}
	g.heapLength = off
	return g, nil
}

// HasNext reports whether Next can be called again.
func (g *Generator) HasNext() bool { return !g.done }

// Next returns the next packet in the sequence. It is an error to call
// this once HasNext returns false.
func (g *Generator) Next() (Packet, error) {
	if g.done {
		return Packet{}, ErrGeneratorExhausted
	}

	pointers := make([]uint64, 0, 8)
	var payload net.Buffers
	var payloadLen int64
	packetPayloadOffset := g.payloadOff
	used := minPacketSize // bytes already committed to header + mandatory pointers

	for g.itemIdx < len(g.heap.Items) {
		it := &g.heap.Items[g.itemIdx]
		firstTouch := g.itemOff == 0

		if firstTouch && used+spead.PointerSize > g.maxPacketSize {
			break // no room for another item pointer; close this packet
		}

		if it.Immediate {
			if firstTouch {
				pointers = append(pointers, spead.EncodeItemPointer(true, it.ID, it.Value, g.addressBits))
				used += spead.PointerSize
			}
			g.itemIdx++
			continue
		}

		if firstTouch {
			pointers = append(pointers, spead.EncodeItemPointer(false, it.ID, uint64(g.addrs[g.itemIdx]), g.addressBits))
			used += spead.PointerSize
		}

		remainInItem := int64(len(it.Data)) - g.itemOff
		spaceLeft := int64(g.maxPacketSize-used) - payloadLen
		if spaceLeft <= 0 {
			if remainInItem == 0 {
				g.itemIdx++
				g.itemOff = 0
				continue
			}
			break
		}
		take := remainInItem
		if take > spaceLeft {
			take = spaceLeft
		}
		if take > 0 {
			payload = append(payload, it.Data[g.itemOff:g.itemOff+take])
			payloadLen += take
			g.itemOff += take
			g.payloadOff += take
		}
		if g.itemOff == int64(len(it.Data)) {
			g.itemIdx++
			g.itemOff = 0
			continue
		}
		break // item continues in a later packet; this one is full
	}

	last := g.itemIdx >= len(g.heap.Items)
	g.done = last

	mandatory := [4]uint64{
		spead.EncodeItemPointer(true, spead.HeapCntID, g.cnt, g.addressBits),
		spead.EncodeItemPointer(true, spead.HeapLengthID, uint64(g.heapLength), g.addressBits),
		spead.EncodeItemPointer(true, spead.PayloadOffsetID, uint64(packetPayloadOffset), g.addressBits),
		spead.EncodeItemPointer(true, spead.PayloadLengthID, uint64(payloadLen), g.addressBits),
	}
	allPointers := make([]uint64, 0, 4+len(pointers))
	allPointers = append(allPointers, mandatory[:]...)
	allPointers = append(allPointers, pointers...)

	hdr, err := spead.EncodeHeader(g.addressBits, len(allPointers))
	if err != nil {
		return Packet{}, err
	}
	return Packet{Header: hdr, Pointers: allPointers, Payload: payload, Last: last}, nil
}
