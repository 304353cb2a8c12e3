package send

import (
	"bytes"
	"io"
	"testing"

	"github.com/ajameson/spead2/spead"
)

func payloadLen(pkt Packet) int {
	n := 0
	for _, b := range pkt.Payload {
		n += len(b)
	}
	return n
}

func TestGeneratorRejectsUndersizedPacket(t *testing.T) {
	h := &Heap{}
	if _, err := NewGenerator(h, 1, minPacketSize-1, 40); err != ErrPacketTooSmall {
		t.Fatalf("want ErrPacketTooSmall, got %v", err)
	}
}

func TestGeneratorEmptyHeapProducesOnePacket(t *testing.T) {
	h := &Heap{}
	g, err := NewGenerator(h, 7, 1472, 40)
	if err != nil {
		t.Fatal(err)
	}
	if !g.HasNext() {
		t.Fatal("expected at least one packet")
	}
	pkt, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !pkt.Last {
		t.Fatal("sole packet of an empty heap must be Last")
	}
	if len(pkt.Pointers) != 4 {
		t.Fatalf("want 4 mandatory pointers, got %d", len(pkt.Pointers))
	}
	if n := payloadLen(pkt); n != 0 {
		t.Fatalf("empty heap must carry zero payload, got %d", n)
	}
	if g.HasNext() {
		t.Fatal("generator should be exhausted after the sole packet")
	}
}

func TestGeneratorMandatoryPointerValues(t *testing.T) {
	h := &Heap{Items: []Item{
		{ID: 0x1000, Immediate: true, Value: 0xDEADBEEF},
		{ID: 0x2000, Data: []byte("hello")},
	}}
	g, err := NewGenerator(h, 42, 1472, 40)
	if err != nil {
		t.Fatal(err)
	}
	pkt, err := g.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !pkt.Last {
		t.Fatal("expected single packet for a small heap")
	}
	cntPtr := spead.DecodeItemPointer(pkt.Pointers[0], 40)
	if cntPtr.ID != spead.HeapCntID || cntPtr.Value != 42 {
		t.Fatalf("bad heap_cnt pointer: %+v", cntPtr)
	}
	lenPtr := spead.DecodeItemPointer(pkt.Pointers[1], 40)
	if lenPtr.ID != spead.HeapLengthID || lenPtr.Value != 5 {
		t.Fatalf("bad heap_length pointer: %+v", lenPtr)
	}
	offPtr := spead.DecodeItemPointer(pkt.Pointers[2], 40)
	if offPtr.ID != spead.PayloadOffsetID || offPtr.Value != 0 {
		t.Fatalf("bad payload_offset pointer: %+v", offPtr)
	}
	plenPtr := spead.DecodeItemPointer(pkt.Pointers[3], 40)
	if plenPtr.ID != spead.PayloadLengthID || plenPtr.Value != 5 {
		t.Fatalf("bad payload_length pointer: %+v", plenPtr)
	}

	var got bytes.Buffer
	if _, err := io.Copy(&got, &pkt.Payload); err != nil {
		t.Fatal(err)
	}
	if got.String() != "hello" {
		t.Fatalf("payload = %q, want %q", got.String(), "hello")
	}
}

func TestGeneratorRejectsPacketSizeWithNoRoomForAnyItem(t *testing.T) {
	h := &Heap{Items: []Item{{ID: 0x2000, Data: []byte("x")}}}
	// minPacketSize fits only the four mandatory pointers: there is no
	// room left for this item's own pointer, let alone a payload byte,
	// so NewGenerator must reject rather than hand back a generator
	// that can never make progress.
	if _, err := NewGenerator(h, 1, minPacketSize, 40); err != ErrPacketTooSmall {
		t.Fatalf("want ErrPacketTooSmall at max_packet_size=minPacketSize for a non-empty heap, got %v", err)
	}
	// The same size is fine for an empty heap: the sole packet carries
	// only the mandatory pointers.
	if _, err := NewGenerator(&Heap{}, 1, minPacketSize, 40); err != nil {
		t.Fatalf("unexpected error for an empty heap at max_packet_size=minPacketSize: %v", err)
	}
}

func TestGeneratorFragmentsLargeItemAcrossPackets(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	h := &Heap{Items: []Item{{ID: 0x2000, Data: data}}}
	g, err := NewGenerator(h, 1, 80, 40)
	if err != nil {
		t.Fatal(err)
	}

	var reassembled bytes.Buffer
	var packets int
	for g.HasNext() {
		pkt, err := g.Next()
		if err != nil {
			t.Fatal(err)
		}
		if pkt.Size() > 80 {
			t.Fatalf("packet %d exceeds max_packet_size: %d", packets, pkt.Size())
		}
		if _, err := io.Copy(&reassembled, &pkt.Payload); err != nil {
			t.Fatal(err)
		}
		packets++
		if packets > 1000 {
			t.Fatal("generator did not terminate")
		}
	}
	if packets < 2 {
		t.Fatalf("expected fragmentation across multiple packets, got %d", packets)
	}
	if !bytes.Equal(reassembled.Bytes(), data) {
		t.Fatal("reassembled payload does not match original")
	}
}
