package bloom

import (
	"encoding/binary"
	"fmt"
)

// MetadataBytes is the size of the metadata block that prefixes a full dump.
//
//	+------------------+  0
//	| mode       u32LE |
//	+------------------+  4
//	| hashCount  u32LE |
//	+------------------+  8
//	| bufferLen  u32LE |
//	+------------------+  12
//	| buffer bytes ... |
//
// Hash functions are not persisted; they must be supplied again on load.
const MetadataBytes = 12

// Metadata is the fixed-width description of a Filter stored in a full dump.
type Metadata struct {
	Mode      Mode
	HashCount uint32
	Size      uint32
}

// Metadata describes f in its dump form.
func (f *Filter) Metadata() Metadata {
	return Metadata{
		Mode:      f.Mode(),
		HashCount: uint32(f.HashCount()),
		Size:      uint32(f.Size()),
	}
}

// Validate checks that m could describe a constructed Filter.
func (m Metadata) Validate() error {
	if !m.Mode.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, m.Mode)
	}
	if m.HashCount == 0 {
		return ErrNoHashFuncs
	}
	if m.Size == 0 {
		return fmt.Errorf("%w: 0", ErrInvalidBufferSize)
	}
	return nil
}

// EncodeMetadata writes m into the first MetadataBytes of b.
func EncodeMetadata(b []byte, m Metadata) error {
	if len(b) < MetadataBytes {
		return ErrShortMetadata
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.Mode))
	binary.LittleEndian.PutUint32(b[4:8], m.HashCount)
	binary.LittleEndian.PutUint32(b[8:12], m.Size)
	return nil
}

// DecodeMetadata reads and validates the metadata block at the start of b.
func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) < MetadataBytes {
		return Metadata{}, ErrShortMetadata
	}
	m := Metadata{
		Mode:      Mode(binary.LittleEndian.Uint32(b[0:4])),
		HashCount: binary.LittleEndian.Uint32(b[4:8]),
		Size:      binary.LittleEndian.Uint32(b[8:12]),
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}
