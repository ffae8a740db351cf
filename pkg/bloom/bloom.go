// Package bloom implements a fixed-size bloom filter with two membership
// encodings and a binary dump format.
//
// In BitMark mode every hash strategy sets one bit. In Counter mode every
// hash strategy increments one byte-wide saturating counter. The two modes
// derive their buffer offsets differently, see bitOffsets and counterOffset.
//
// A Filter is not safe for concurrent use. Callers that share one across
// goroutines must serialize access, for example with engine.Engine.
package bloom

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/mirkobrombin/go-bloomstream/pkg/hash"
	"github.com/mirkobrombin/go-foundation/pkg/options"
)

// MaxBufferSize is the largest buffer a Filter can own. The dump metadata
// stores the buffer length as a uint32.
const MaxBufferSize = math.MaxUint32

// Mode selects how membership is encoded in the buffer.
type Mode uint32

const (
	ModeUnknown Mode = iota
	ModeBitMark
	ModeCounter
)

func (m Mode) Valid() bool {
	return m == ModeBitMark || m == ModeCounter
}

func (m Mode) String() string {
	switch m {
	case ModeBitMark:
		return "bitmark"
	case ModeCounter:
		return "counter"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// Membership is the answer to a Query.
type Membership uint8

const (
	DefinitelyAbsent Membership = iota
	PossiblyPresent
)

func (m Membership) String() string {
	if m == PossiblyPresent {
		return "possibly present"
	}
	return "definitely absent"
}

// Filter is a probabilistic membership set backed by a fixed byte buffer.
type Filter struct {
	mode   Mode
	buf    []byte
	hashes []hash.Func
	logger *slog.Logger
}

// New creates a Filter with a zeroed buffer of size bytes. The hashes slice
// is copied; every strategy in it is applied, in order, on each operation.
func New(mode Mode, size int, hashes []hash.Func, opts ...Option) (*Filter, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, size)
	}
	if uint64(size) > MaxBufferSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrAllocationFailed, size, uint64(MaxBufferSize))
	}
	if len(hashes) == 0 {
		return nil, ErrNoHashFuncs
	}
	for i, h := range hashes {
		if h == nil {
			return nil, fmt.Errorf("%w at index %d", ErrNilHashFunc, i)
		}
	}

	f := &Filter{
		mode:   mode,
		buf:    make([]byte, size),
		hashes: slices.Clone(hashes),
		logger: slog.Default(),
	}
	options.Apply(f, opts...)

	f.logger.Debug("bloom: filter created", "mode", mode, "size", size, "hashes", len(hashes))
	return f, nil
}

func (f *Filter) ready() error {
	if f == nil || f.buf == nil {
		return ErrNullFilter
	}
	return nil
}

// Insert marks entry as present. It never reports whether entry was already
// present.
//
// In Counter mode a saturated cell aborts the call with ErrCounterExceeded;
// cells incremented earlier in the same call keep their new value.
func (f *Filter) Insert(entry []byte) error {
	if err := f.ready(); err != nil {
		return err
	}

	switch f.mode {
	case ModeBitMark:
		for _, h := range f.hashes {
			idx, bit := bitOffsets(h(entry), len(f.buf))
			setBit(f.buf, idx, bit)
		}
	case ModeCounter:
		for i, h := range f.hashes {
			idx := counterOffset(h(entry), len(f.buf))
			if !incrementCell(f.buf, idx) {
				f.logger.Warn("bloom: counter saturated", "cell", idx, "hash", i)
				return fmt.Errorf("%w: cell %d", ErrCounterExceeded, idx)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMode, f.mode)
	}
	return nil
}

// Query reports whether entry is definitely absent or possibly present.
func (f *Filter) Query(entry []byte) (Membership, error) {
	if err := f.ready(); err != nil {
		return DefinitelyAbsent, err
	}

	switch f.mode {
	case ModeBitMark:
		for _, h := range f.hashes {
			idx, bit := bitOffsets(h(entry), len(f.buf))
			if !testBit(f.buf, idx, bit) {
				return DefinitelyAbsent, nil
			}
		}
	case ModeCounter:
		for _, h := range f.hashes {
			if f.buf[counterOffset(h(entry), len(f.buf))] == 0 {
				return DefinitelyAbsent, nil
			}
		}
	default:
		return DefinitelyAbsent, fmt.Errorf("%w: %s", ErrInvalidMode, f.mode)
	}
	return PossiblyPresent, nil
}

// MayContain is Query reduced to a bool. Errors count as absent.
func (f *Filter) MayContain(entry []byte) bool {
	m, err := f.Query(entry)
	return err == nil && m == PossiblyPresent
}

// Reset zeroes the buffer. Mode, hashes and size are unchanged.
func (f *Filter) Reset() error {
	if err := f.ready(); err != nil {
		return err
	}
	clear(f.buf)
	return nil
}

// Destroy releases the buffer and the hash list. Any later call, including a
// second Destroy, returns ErrNullFilter.
func (f *Filter) Destroy() error {
	if err := f.ready(); err != nil {
		return err
	}
	f.buf = nil
	f.hashes = nil
	f.logger.Debug("bloom: filter destroyed", "mode", f.mode)
	return nil
}

func (f *Filter) Mode() Mode {
	if f == nil {
		return ModeUnknown
	}
	return f.mode
}

// Size returns the buffer length in bytes, 0 once destroyed.
func (f *Filter) Size() int {
	if f == nil {
		return 0
	}
	return len(f.buf)
}

func (f *Filter) HashCount() int {
	if f == nil {
		return 0
	}
	return len(f.hashes)
}

// Bytes returns a copy of the buffer.
func (f *Filter) Bytes() []byte {
	if f == nil {
		return nil
	}
	return slices.Clone(f.buf)
}
