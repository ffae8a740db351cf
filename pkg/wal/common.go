package wal

import (
	"encoding/binary"
	"fmt"
)

const (
	EntryInsert byte = 0
	EntryReset  byte = 1
)

// Entry is a single filter mutation recorded in the log.
type Entry struct {
	Type byte
	Data []byte
}

var (
	ErrSegmentFull = fmt.Errorf("wal: segment full")
	ErrClosed      = fmt.Errorf("wal: closed")
	ErrNotFound    = fmt.Errorf("wal: not found")
	ErrTornEntry   = fmt.Errorf("wal: torn entry")
	ErrBadEntry    = fmt.Errorf("wal: unknown entry type")
)

const (
	// DefaultSegmentSize is the default max size for segments.
	DefaultSegmentSize = 16 * 1024 * 1024
	// headerSize covers [Type:1][DataLen:4].
	headerSize = 5
	// segmentShift determines bits for offset.
	segmentShift = 32
	offsetMask   = (1 << segmentShift) - 1
)

// PackOffset combines segment ID and file offset into a single int64.
func PackOffset(segmentID uint64, offset int64) int64 {
	return int64((segmentID << segmentShift) | uint64(offset))
}

func UnpackOffset(packed int64) (uint64, int64) {
	id := uint64(packed) >> segmentShift
	offset := packed & offsetMask
	return id, offset
}

// EncodeEntry binary encodes an entry.
// [Type:1][DataLen:4][Data:N]
func EncodeEntry(e Entry) []byte {
	buf := make([]byte, headerSize+len(e.Data))
	buf[0] = e.Type
	binary.BigEndian.PutUint32(buf[1:], uint32(len(e.Data)))
	copy(buf[headerSize:], e.Data)
	return buf
}

func decodeHeader(header []byte) (typ byte, dataLen uint32, err error) {
	typ = header[0]
	if typ != EntryInsert && typ != EntryReset {
		return 0, 0, fmt.Errorf("%w: %d", ErrBadEntry, typ)
	}
	return typ, binary.BigEndian.Uint32(header[1:]), nil
}
