package send

import (
	"io"

	"github.com/pierrec/lz4/v3"
)

// PacketReader streams one Packet's wire bytes -- header, then item
// pointers, then payload -- without copying the payload into a single
// contiguous buffer, mirroring the way an outbound object's header and
// body are streamed through one io.Reader on the send side.
func PacketReader(pkt Packet) io.Reader {
	readers := make([]io.Reader, 0, 2+len(pkt.Payload))
	readers = append(readers, bytesReader(pkt.Header[:]))
	for _, ptr := range pkt.Pointers {
		var b [8]byte
		putUint64(b[:], ptr)
		readers = append(readers, bytesReader(b[:]))
	}
	for _, chunk := range pkt.Payload {
		readers = append(readers, bytesReader(chunk))
	}
	return io.MultiReader(readers...)
}

func bytesReader(b []byte) io.Reader {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &sliceReader{b: cp}
}

type sliceReader struct {
	b   []byte
	off int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.off >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.off:])
	r.off += n
	return n, nil
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// CompressedWriter wraps an underlying byte sink in an LZ4 frame
// writer. It never touches the SPEAD header or item-pointer encoding
// -- it only changes what a Transport implementation writes to the
// wire. FramedTransport is the concrete Transport that uses it, opted
// into via CompressionMode.
type CompressedWriter struct {
	zw *lz4.Writer
}

// NewCompressedWriter wraps dst.
func NewCompressedWriter(dst io.Writer) *CompressedWriter {
	zw := lz4.NewWriter(dst)
	return &CompressedWriter{zw: zw}
}

// WritePacket streams pkt through the LZ4 frame writer.
func (c *CompressedWriter) WritePacket(pkt Packet) (int64, error) {
	return io.Copy(c.zw, PacketReader(pkt))
}

// Flush flushes any buffered LZ4 output without closing the frame, so
// a receiver can decode packets as they arrive rather than waiting for
// the whole stream.
func (c *CompressedWriter) Flush() error { return c.zw.Flush() }

// Close ends the LZ4 frame.
func (c *CompressedWriter) Close() error { return c.zw.Close() }
