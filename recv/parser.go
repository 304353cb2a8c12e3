package recv

import "github.com/ajameson/spead2/spead"

// ParsedPacket is the structured form of one raw packet -- a UDP
// datagram, or one TCP-framed payload handed over by Framer.
type ParsedPacket struct {
	HeapCnt        uint64
	HeapLength     int64 // from HeapLengthID; ParsePacket rejects packets without it
	PayloadOffset  int64
	PayloadLength  int64
	ItemPointers   []uint64 // every pointer in the packet, mandatory ones included
	Payload        []byte   // the packet's payload slice; aliases the input buffer
	AddressBits    int
}

// ParsePacket validates the header and mandatory item pointers of buf
// and slices out its payload. buf is not retained past the call other
// than via the returned Payload slice, which aliases it.
func ParsePacket(buf []byte) (ParsedPacket, error) {
	hdr, err := spead.DecodeHeader(buf)
	if err != nil {
		return ParsedPacket{}, err
	}

	pointersStart := spead.HeaderSize
	pointersEnd := pointersStart + hdr.NumItems*spead.PointerSize
	if len(buf) < pointersEnd {
		return ParsedPacket{}, spead.ErrTooShort
	}

	pp := ParsedPacket{
		HeapLength:   -1,
		ItemPointers: make([]uint64, hdr.NumItems),
		AddressBits:  hdr.AddressBits,
	}

	haveCnt, haveHeapLen, haveOff, haveLen := false, false, false, false
	for i := 0; i < hdr.NumItems; i++ {
		w := spead.GetItemPointer(buf[pointersStart+i*spead.PointerSize:])
		pp.ItemPointers[i] = w
		ptr := spead.DecodeItemPointer(w, hdr.AddressBits)
		if !ptr.IsImmediate {
			continue
		}
		switch ptr.ID {
		case spead.HeapCntID:
			pp.HeapCnt = ptr.Value
			haveCnt = true
		case spead.HeapLengthID:
			pp.HeapLength = int64(ptr.Value)
			haveHeapLen = true
		case spead.PayloadOffsetID:
			pp.PayloadOffset = int64(ptr.Value)
			haveOff = true
		case spead.PayloadLengthID:
			pp.PayloadLength = int64(ptr.Value)
			haveLen = true
		}
	}
	if !haveCnt || !haveHeapLen || !haveOff || !haveLen {
		return ParsedPacket{}, spead.ErrMissingMandatoryItem
	}

	payloadEnd := pointersEnd + int(pp.PayloadLength)
	if pp.PayloadLength < 0 || len(buf) < payloadEnd {
		return ParsedPacket{}, spead.ErrTooShort
	}
	pp.Payload = buf[pointersEnd:payloadEnd]
	return pp, nil
}
