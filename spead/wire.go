// Package spead implements the pure, allocation-light wire codec for the
// SPEAD (Streaming Protocol for Exchanging Astronomical Data) item-pointer
// and packet-header formats. It does no I/O: callers supply and receive
// plain byte slices.
package spead

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire constants.
const (
	Magic   byte = 0x53
	Version byte = 0x04

	// HeaderSize is the fixed 8-byte packet header preceding the item pointers.
	HeaderSize = 8

	// PointerSize is the width in bytes of one item pointer on the wire.
	PointerSize = 8
)

// Mandatory item IDs.
const (
	HeapCntID        = 0x0001
	HeapLengthID     = 0x0002
	PayloadOffsetID  = 0x0003
	PayloadLengthID  = 0x0004
	StreamCtrlID     = 0x0005
	DescriptorID     = 0x0006
	NullID           = 0x0000 // padding; must be skipped
)

// Stream control values carried by an item with ID StreamCtrlID.
const (
	StreamCtrlStart = 0
	StreamCtrlEnd   = 2
)

// Reserved descriptor sub-item IDs.
const (
	DescriptorNameID        = 0x0010
	DescriptorDescriptionID = 0x0011
	DescriptorShapeID       = 0x0012
	DescriptorFormatID      = 0x0013
	DescriptorIDID          = 0x0014
	DescriptorDtypeID       = 0x0015
)

// Errors returned by the decoders. Compare with errors.Is.
var (
	ErrBadMagic         = errors.New("spead: bad magic byte")
	ErrBadVersion       = errors.New("spead: unsupported protocol version")
	ErrTooShort         = errors.New("spead: packet shorter than its header, item pointers or payload")
	ErrInvalidItemBits  = errors.New("spead: address_bits must be a multiple of 8 in [8,56]")
)

// Header is the decoded form of the fixed 8-byte packet header.
type Header struct {
	AddressBits int // heap_address_bits; a multiple of 8, in [8, 56]
	NumItems    int // number of item pointers that follow
}

// AddressBytes is AddressBits/8, the "heap_address_bits / 8" wire byte.
func (h Header) AddressBytes() int { return h.AddressBits / 8 }

// EncodeHeader writes the 8-byte SPEAD packet header for a packet carrying
// numItems item pointers, using addressBits bits of address space per
// item pointer.
func EncodeHeader(addressBits, numItems int) ([HeaderSize]byte, error) {
	var out [HeaderSize]byte
	if addressBits <= 0 || addressBits >= 64 || addressBits%8 != 0 {
		return out, ErrInvalidItemBits
	}
	addressBytes := addressBits / 8
	out[0] = Magic
	out[1] = Version
	out[2] = byte(8 - addressBytes)
	out[3] = byte(addressBytes)
	out[4] = 0
	out[5] = 0
	binary.BigEndian.PutUint16(out[6:8], uint16(numItems))
	return out, nil
}

// DecodeHeader parses the fixed 8-byte header. It never assumes the input
// is aligned; bytes are read individually / via binary.BigEndian so this
// is safe on any buffer.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, ErrTooShort
	}
	if b[0] != Magic {
		return h, ErrBadMagic
	}
	if b[1] != Version {
		return h, ErrBadVersion
	}
	itemPointerWidth := int(b[2])
	addressBytes := int(b[3])
	if itemPointerWidth+addressBytes != 8 || addressBytes <= 0 || addressBytes >= 8 {
		return h, ErrInvalidItemBits
	}
	h.AddressBits = addressBytes * 8
	h.NumItems = int(binary.BigEndian.Uint16(b[6:8]))
	return h, nil
}

// ItemPointer is the decoded form of one 8-byte item pointer.
type ItemPointer struct {
	IsImmediate bool
	ID          uint64
	Value       uint64 // address offset, or the immediate value, per IsImmediate
}

// EncodeItemPointer packs an item pointer into its 64-bit wire form.
// id must fit in (63-addressBits) bits and value must fit in addressBits
// bits; callers that violate this produce a silently truncated pointer,
// matching the C++ original's lack of runtime range checks on this hot path.
func EncodeItemPointer(isImmediate bool, id, value uint64, addressBits int) uint64 {
	idBits := uint(63 - addressBits)
	var w uint64
	if isImmediate {
		w = uint64(1) << 63
	}
	w |= (id & ((uint64(1) << idBits) - 1)) << uint(addressBits)
	w |= value & ((uint64(1) << uint(addressBits)) - 1)
	return w
}

// DecodeItemPointer unpacks a 64-bit wire word into its fields.
func DecodeItemPointer(w uint64, addressBits int) ItemPointer {
	idBits := uint(63 - addressBits)
	addrMask := (uint64(1) << uint(addressBits)) - 1
	return ItemPointer{
		IsImmediate: w&(uint64(1)<<63) != 0,
		ID:          (w >> uint(addressBits)) & ((uint64(1) << idBits) - 1),
		Value:       w & addrMask,
	}
}

// PutItemPointer writes the big-endian encoding of p into b[:8].
func PutItemPointer(b []byte, w uint64) {
	binary.BigEndian.PutUint64(b, w)
}

// GetItemPointer reads a big-endian 64-bit item pointer from b[:8].
// It loads byte-by-byte via binary.BigEndian.Uint64, so b need not be aligned.
func GetItemPointer(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// SortKey is the composite key used to stably sort a heap's item pointers
// at freeze time: (immediate_flag, address_or_immediate & address_mask).
// Addressed items with equal masked value are sorted before/after according
// to stable sort semantics applied by the caller.
func SortKey(w uint64, addressBits int) uint64 {
	mask := (uint64(1) << 63) | ((uint64(1) << uint(addressBits)) - 1)
	return w & mask
}
