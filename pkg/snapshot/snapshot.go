// Package snapshot stores a filter's full dump compressed and checksummed.
//
// A snapshot file is laid out as
//
//	+---------------------+  0
//	| magic "BFS1"        |
//	+---------------------+  4
//	| version u8          |
//	| reserved [3]byte    |
//	+---------------------+  8
//	| xxhash64 u64LE      |  checksum of the uncompressed payload
//	+---------------------+  16
//	| seq u64LE           |  caller-defined position, see Save
//	+---------------------+  24
//	| zstd(payload) ...   |  payload = bloom.Filter.MarshalBinary()
//
// Save replaces the target atomically, so a reader sees either the previous
// snapshot or the new one.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/mirkobrombin/go-bloomstream/pkg/bloom"
	"github.com/mirkobrombin/go-bloomstream/pkg/hash"
)

const (
	Magic       = "BFS1"
	Version     = uint8(1)
	HeaderBytes = 24
)

var (
	ErrBadMagic   = errors.New("snapshot: header magic invalid")
	ErrBadVersion = errors.New("snapshot: header version invalid")
	ErrChecksum   = errors.New("snapshot: checksum mismatch")
	ErrTruncated  = errors.New("snapshot: file truncated")
)

var (
	encPool = sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil)
			return enc
		},
	}
	decPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(bloom.MetadataBytes+bloom.MaxBufferSize))
			return dec
		},
	}
)

// Encode returns the snapshot bytes for f, tagged with seq.
func Encode(f *bloom.Filter, seq uint64) ([]byte, error) {
	payload, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderBytes, HeaderBytes+len(payload)/4)
	copy(out[0:4], Magic)
	out[4] = Version
	binary.LittleEndian.PutUint64(out[8:16], xxhash.Sum64(payload))
	binary.LittleEndian.PutUint64(out[16:24], seq)

	enc := encPool.Get().(*zstd.Encoder)
	out = enc.EncodeAll(payload, out)
	encPool.Put(enc)
	return out, nil
}

// Decode rebuilds a filter from snapshot bytes. hashes must match the
// strategies of the filter that was saved.
func Decode(data []byte, hashes []hash.Func, opts ...bloom.Option) (*bloom.Filter, uint64, error) {
	payload, seq, err := openPayload(data)
	if err != nil {
		return nil, 0, err
	}
	f, err := bloom.Unmarshal(payload, hashes, opts...)
	if err != nil {
		return nil, 0, err
	}
	return f, seq, nil
}

// openPayload validates the header and returns the decompressed payload.
func openPayload(data []byte) ([]byte, uint64, error) {
	if len(data) < HeaderBytes {
		return nil, 0, ErrTruncated
	}
	if string(data[0:4]) != Magic {
		return nil, 0, ErrBadMagic
	}
	if data[4] != Version {
		return nil, 0, fmt.Errorf("%w: %d", ErrBadVersion, data[4])
	}
	sum := binary.LittleEndian.Uint64(data[8:16])
	seq := binary.LittleEndian.Uint64(data[16:24])

	dec := decPool.Get().(*zstd.Decoder)
	payload, err := dec.DecodeAll(data[HeaderBytes:], nil)
	decPool.Put(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	if xxhash.Sum64(payload) != sum {
		return nil, 0, ErrChecksum
	}
	return payload, seq, nil
}

// Save writes a snapshot of f to path via a temporary file and a rename.
// seq is stored verbatim and handed back by Load and Restore; engine.Engine
// uses it for the first WAL segment not reflected in the snapshot.
func Save(path string, f *bloom.Filter, seq uint64) error {
	data, err := Encode(f, seq)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	fd, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmp, err)
	}
	if _, err = fd.Write(data); err == nil {
		err = fd.Sync()
	}
	if cerr := fd.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("snapshot: save %s: %w", path, err)
	}
	return nil
}

// Load reads the snapshot at path. A missing file is reported with an error
// matching os.ErrNotExist.
func Load(path string, hashes []hash.Func, opts ...bloom.Option) (*bloom.Filter, uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: load %s: %w", path, err)
	}
	return Decode(data, hashes, opts...)
}

// Restore loads the snapshot at path into an existing filter whose mode, hash
// count and size match the saved one.
func Restore(path string, f *bloom.Filter) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("snapshot: restore %s: %w", path, err)
	}
	payload, seq, err := openPayload(data)
	if err != nil {
		return 0, err
	}
	if err := f.UnmarshalBinary(payload); err != nil {
		return 0, err
	}
	return seq, nil
}
