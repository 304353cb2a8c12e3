package recv

import (
	"encoding/binary"

	"github.com/ajameson/spead2/spead"
)

// FormatField is one (type_code, bit_length) pair from a descriptor's
// format list.
type FormatField struct {
	Code byte
	Bits int64
}

// ShapeDim is one dimension from a descriptor's shape list.
type ShapeDim struct {
	Size     int64
	Variable bool
}

// Descriptor is the decoded form of a DescriptorID item's payload: the
// human-facing metadata a sender attaches to an item ID so a consumer
// can interpret its bytes. If Dtype is non-empty it supersedes Format
// and Shape, which are left nil.
type Descriptor struct {
	ItemID      uint64
	Name        string
	Description string
	Format      []FormatField
	Shape       []ShapeDim
	Dtype       string
}

// ToDescriptor decodes a frozen heap produced by re-parsing a
// DescriptorID item's payload (see Descriptors) into a Descriptor
// record, honoring cfg's bug-compatibility toggles for the historical
// field-width and shape-bit quirks.
func ToDescriptor(fh *FrozenHeap, addressBytes int, cfg *Config) Descriptor {
	var d Descriptor
	if it, ok := fh.Get(spead.DescriptorIDID); ok {
		d.ItemID = beToUint(it.Data)
	}
	if it, ok := fh.Get(spead.DescriptorNameID); ok {
		d.Name = string(it.Data)
	}
	if it, ok := fh.Get(spead.DescriptorDescriptionID); ok {
		d.Description = string(it.Data)
	}
	if it, ok := fh.Get(spead.DescriptorDtypeID); ok && len(it.Data) > 0 {
		d.Dtype = string(it.Data)
		return d // dtype supersedes format/shape
	}
	if it, ok := fh.Get(spead.DescriptorFormatID); ok {
		d.Format = decodeFormat(it.Data, addressBytes, cfg)
	}
	if it, ok := fh.Get(spead.DescriptorShapeID); ok {
		d.Shape = decodeShape(it.Data, addressBytes, cfg)
	}
	return d
}

func decodeFormat(data []byte, addressBytes int, cfg *Config) []FormatField {
	width := 9 - addressBytes
	if cfg.Has(BugCompatDescriptorWidths) {
		width = 4
	}
	entry := 1 + width
	var out []FormatField
	for off := 0; off+entry <= len(data); off += entry {
		out = append(out, FormatField{
			Code: data[off],
			Bits: int64(beToUint(data[off+1 : off+entry])),
		})
	}
	return out
}

func decodeShape(data []byte, addressBytes int, cfg *Config) []ShapeDim {
	width := 1 + addressBytes
	if cfg.Has(BugCompatDescriptorWidths) {
		width = 8
	}
	variableBit := uint64(1) << 0
	if cfg.Has(BugCompatShapeBit1) {
		variableBit = uint64(1) << 1
	}
	var out []ShapeDim
	for off := 0; off+width <= len(data); off += width {
		raw := beToUint(data[off : off+width])
		out = append(out, ShapeDim{
			Size:     int64(raw &^ variableBit),
			Variable: raw&variableBit != 0,
		})
	}
	return out
}

// beToUint reads up to 8 big-endian bytes into a uint64.
func beToUint(b []byte) uint64 {
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:])
}

// Descriptors re-parses every DescriptorID item embedded in fh's
// payload as a self-contained single packet: a descriptor item's bytes
// are themselves SPEAD-encoded (their own header and item pointers)
// rather than a flat struct.
func Descriptors(fh *FrozenHeap, cfg *Config) ([]Descriptor, error) {
	var out []Descriptor
	for _, it := range fh.Items {
		if it.ID != spead.DescriptorID {
			continue
		}
		d, err := decodeEmbeddedDescriptor(it.Data, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeEmbeddedDescriptor(payload []byte, cfg *Config) (Descriptor, error) {
	pp, err := ParsePacket(payload)
	if err != nil {
		return Descriptor{}, err
	}
	ph := &partialHeap{
		addressBits: pp.AddressBits,
		heapLength:  pp.HeapLength,
		payload:     pp.Payload,
		pointers:    pp.ItemPointers,
	}
	fh := Freeze(ph)
	return ToDescriptor(fh, pp.AddressBits/8, cfg), nil
}
