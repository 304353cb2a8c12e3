package send

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
)

// PacketResult reports the outcome of one packet handed to a Transport.
type PacketResult struct {
	// Err is nil on success. A non-nil Err aborts the heap the packet
	// belongs to; later packets of the same heap that were already
	// in flight are still reported but the heap finalizes with Err.
	Err error
	// Bytes is the number of payload+header bytes the transport
	// actually wrote for this packet when Err is nil.
	Bytes int
}

// Transport is the external collaborator that actually moves bytes --
// a UDP socket, a TCP connection, an in-memory sink for tests. The
// scheduler never opens a socket itself; it only calls this method.
type Transport interface {
	// AsyncSendPackets arranges for batch to be written and calls done
	// exactly once with one PacketResult per packet, in the same order.
	// done may be called synchronously before AsyncSendPackets returns,
	// from another goroutine, or not at all if the transport is torn
	// down first -- the Stream itself defers the resulting scheduler
	// re-entry onto its Executor, so implementations do not need to.
	AsyncSendPackets(batch []Packet, done func([]PacketResult))
}

// CompressionMode selects whether a FramedTransport wraps each
// serialized packet in an LZ4 frame before writing it to the wire.
// This never touches the SPEAD header/item-pointer encoding -- only the
// transport envelope -- so the item pointers and heap payload a
// receiver decodes are unaffected either way.
type CompressionMode int

const (
	CompressNever CompressionMode = iota
	CompressAlways
)

// FramedTransport is a synchronous Transport that serialises each
// packet with PacketReader -- optionally through a CompressedWriter --
// and writes it to w as an 8-byte big-endian length-prefixed frame: the
// send-side counterpart to recv.Framer. AsyncSendPackets calls done
// synchronously, before returning, with one PacketResult per packet; a
// write error fails that packet and every packet after it in the same
// batch, matching the "abort the rest of the batch" contract Stream
// already assumes of a Transport.
type FramedTransport struct {
	mu       sync.Mutex
	w        io.Writer
	compress CompressionMode
}

// NewFramedTransport wraps w. compress selects whether each frame's
// payload is passed through an LZ4 frame writer before the length
// prefix is computed; a receiver must run the matching decompression
// before handing the frame's bytes to ParsePacket.
func NewFramedTransport(w io.Writer, compress CompressionMode) *FramedTransport {
	return &FramedTransport{w: w, compress: compress}
}

func (t *FramedTransport) AsyncSendPackets(batch []Packet, done func([]PacketResult)) {
	t.mu.Lock()
	results := make([]PacketResult, len(batch))
	var failed error
	for i, pkt := range batch {
		if failed != nil {
			results[i] = PacketResult{Err: failed}
			continue
		}
		n, err := t.writeOne(pkt)
		results[i] = PacketResult{Bytes: n, Err: err}
		if err != nil {
			failed = err
		}
	}
	t.mu.Unlock()
	done(results)
}

func (t *FramedTransport) writeOne(pkt Packet) (int, error) {
	var buf bytes.Buffer
	if t.compress == CompressAlways {
		cw := NewCompressedWriter(&buf)
		if _, err := cw.WritePacket(pkt); err != nil {
			return 0, err
		}
		if err := cw.Close(); err != nil {
			return 0, err
		}
	} else if _, err := io.Copy(&buf, PacketReader(pkt)); err != nil {
		return 0, err
	}

	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(buf.Len()))
	if _, err := t.w.Write(prefix[:]); err != nil {
		return 0, err
	}
	return t.w.Write(buf.Bytes())
}
