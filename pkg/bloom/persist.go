package bloom

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mirkobrombin/go-bloomstream/pkg/hash"
)

// dumpFile is the subset of *os.File the dump writers rely on.
type dumpFile interface {
	io.Writer
	Sync() error
	Close() error
}

var createDumpFile = func(path string) (dumpFile, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

// DumpBuffer writes the raw buffer, without metadata, to path.
func (f *Filter) DumpBuffer(path string) error {
	if err := f.ready(); err != nil {
		return err
	}
	return writeDump(path, f.buf)
}

// DumpFull writes the metadata block followed by the buffer to path.
func (f *Filter) DumpFull(path string) error {
	blob, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return writeDump(path, blob)
}

// MarshalBinary returns the full dump form of f: metadata then buffer.
func (f *Filter) MarshalBinary() ([]byte, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	blob := make([]byte, MetadataBytes+len(f.buf))
	if err := EncodeMetadata(blob, f.Metadata()); err != nil {
		return nil, err
	}
	copy(blob[MetadataBytes:], f.buf)
	return blob, nil
}

// writeDump writes blob to path in a single write. Any failure after the file
// was opened removes it so no truncated dump is left behind.
func writeDump(path string, blob []byte) error {
	if path == "" {
		return ErrInvalidFilePath
	}

	fd, err := createDumpFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenFileFailed, err)
	}

	n, err := fd.Write(blob)
	if err == nil && n < len(blob) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = fd.Sync()
	}
	if cerr := fd.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrDumpFailed, n, len(blob), err)
	}
	return nil
}

// RestoreBuffer overwrites the existing buffer with the first Size() bytes of
// path. It never allocates, and never touches mode or hash functions.
//
// On a short read the buffer is left partially overwritten; the caller
// should Reset or discard the filter.
func (f *Filter) RestoreBuffer(path string) error {
	if f != nil && f.buf == nil && !f.mode.Valid() {
		// A zero Filter that never went through New.
		return ErrNullBuffer
	}
	if err := f.ready(); err != nil {
		return err
	}
	if path == "" {
		return ErrInvalidFilePath
	}

	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenFileFailed, err)
	}
	defer fd.Close()

	return readBuffer(fd, f.buf)
}

// RestoreFull restores a DumpFull file into f. The stored metadata must match
// f exactly.
func (f *Filter) RestoreFull(path string) error {
	if err := f.ready(); err != nil {
		return err
	}
	if path == "" {
		return ErrInvalidFilePath
	}

	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenFileFailed, err)
	}
	defer fd.Close()

	return f.restoreFull(fd)
}

// UnmarshalBinary restores a MarshalBinary blob into f. The blob's metadata
// must match f exactly.
func (f *Filter) UnmarshalBinary(blob []byte) error {
	if err := f.ready(); err != nil {
		return err
	}
	return f.restoreFull(bytes.NewReader(blob))
}

func (f *Filter) restoreFull(r io.Reader) error {
	m, err := readMetadata(r)
	if err != nil {
		return err
	}
	if m != f.Metadata() {
		return fmt.Errorf("%w: dump has %+v, filter has %+v", ErrMetadataMismatch, m, f.Metadata())
	}
	return readBuffer(r, f.buf)
}

// ReadMetadata returns the metadata block of a DumpFull file.
func ReadMetadata(path string) (Metadata, error) {
	if path == "" {
		return Metadata{}, ErrInvalidFilePath
	}
	fd, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrOpenFileFailed, err)
	}
	defer fd.Close()

	return readMetadata(fd)
}

// Load constructs a new Filter from a DumpFull file. hashes must be the same
// strategies, in the same order, as those of the dumped filter; only their
// count can be checked.
func Load(path string, hashes []hash.Func, opts ...Option) (*Filter, error) {
	if path == "" {
		return nil, ErrInvalidFilePath
	}
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFileFailed, err)
	}
	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}
	return decode(fd, info.Size(), hashes, opts...)
}

// Unmarshal is Load for a blob produced by MarshalBinary.
func Unmarshal(blob []byte, hashes []hash.Func, opts ...Option) (*Filter, error) {
	return decode(bytes.NewReader(blob), int64(len(blob)), hashes, opts...)
}

// decode reads a full dump of avail bytes from r. The buffer size claimed by
// the metadata is checked against avail before anything is allocated.
func decode(r io.Reader, avail int64, hashes []hash.Func, opts ...Option) (*Filter, error) {
	m, err := readMetadata(r)
	if err != nil {
		return nil, err
	}
	if need := int64(MetadataBytes) + int64(m.Size); avail < need {
		return nil, fmt.Errorf("%w: metadata claims %d bytes, only %d available", ErrRestoreFailed, need, avail)
	}
	if int(m.HashCount) != len(hashes) {
		return nil, fmt.Errorf("%w: dump uses %d hash functions, got %d", ErrMetadataMismatch, m.HashCount, len(hashes))
	}

	f, err := New(m.Mode, int(m.Size), hashes, opts...)
	if err != nil {
		return nil, err
	}
	if err := readBuffer(r, f.buf); err != nil {
		_ = f.Destroy()
		return nil, err
	}
	return f, nil
}

func readMetadata(r io.Reader) (Metadata, error) {
	var b [MetadataBytes]byte
	if n, err := io.ReadFull(r, b[:]); err != nil {
		return Metadata{}, fmt.Errorf("%w: read %d of %d metadata bytes: %w", ErrRestoreFailed, n, MetadataBytes, err)
	}
	return DecodeMetadata(b[:])
}

func readBuffer(r io.Reader, buf []byte) error {
	if n, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: read %d of %d bytes: %w", ErrRestoreFailed, n, len(buf), err)
	}
	return nil
}
