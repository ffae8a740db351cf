package bloom

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mirkobrombin/go-bloomstream/pkg/hash"
	"github.com/stretchr/testify/require"
)

var words = []string{"hello", "world", "earth", "moon"}

func populated(t *testing.T, mode Mode) *Filter {
	t.Helper()
	f := newFilter(t, mode, 128)
	for _, w := range words {
		require.NoError(t, f.Insert([]byte(w)))
	}
	return f
}

func TestDumpBuffer(t *testing.T) {
	f := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "buf.bin")

	require.NoError(t, f.DumpBuffer(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, f.Bytes(), data)
}

func TestDumpBufferTruncatesExisting(t *testing.T) {
	f := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "buf.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0644))

	require.NoError(t, f.DumpBuffer(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(128), info.Size())
}

func TestDumpFullLayout(t *testing.T) {
	f := populated(t, ModeCounter)
	path := filepath.Join(t.TempDir(), "full.bin")

	require.NoError(t, f.DumpFull(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, MetadataBytes+128)

	// mode=2, hashCount=3, size=128, little-endian.
	require.Equal(t, []byte{2, 0, 0, 0, 3, 0, 0, 0, 128, 0, 0, 0}, data[:MetadataBytes])
	require.Equal(t, f.Bytes(), data[MetadataBytes:])

	m, err := ReadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, Metadata{Mode: ModeCounter, HashCount: 3, Size: 128}, m)
}

func TestDumpErrors(t *testing.T) {
	f := populated(t, ModeBitMark)

	require.ErrorIs(t, f.DumpBuffer(""), ErrInvalidFilePath)
	require.ErrorIs(t, f.DumpFull(""), ErrInvalidFilePath)

	missingDir := filepath.Join(t.TempDir(), "nope", "buf.bin")
	require.ErrorIs(t, f.DumpBuffer(missingDir), ErrOpenFileFailed)
	require.ErrorIs(t, f.DumpFull(missingDir), ErrOpenFileFailed)

	require.NoError(t, f.Destroy())
	require.ErrorIs(t, f.DumpBuffer(filepath.Join(t.TempDir(), "x")), ErrNullFilter)
	require.ErrorIs(t, f.DumpFull(filepath.Join(t.TempDir(), "x")), ErrNullFilter)
}

// shortFile writes at most limit bytes per call and reports no error, like a
// full disk that accepts a partial write.
type shortFile struct {
	*os.File
	limit int
}

func (s *shortFile) Write(p []byte) (int, error) {
	if len(p) > s.limit {
		p = p[:s.limit]
	}
	return s.File.Write(p)
}

type failingFile struct {
	*os.File
}

func (failingFile) Sync() error { return errors.New("sync: device gone") }

func withDumpFile(t *testing.T, wrap func(*os.File) dumpFile) {
	t.Helper()
	orig := createDumpFile
	createDumpFile = func(path string) (dumpFile, error) {
		fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		return wrap(fd), nil
	}
	t.Cleanup(func() { createDumpFile = orig })
}

func TestDumpShortWriteRemovesFile(t *testing.T) {
	withDumpFile(t, func(fd *os.File) dumpFile { return &shortFile{File: fd, limit: 10} })

	f := populated(t, ModeBitMark)
	dir := t.TempDir()

	bufPath := filepath.Join(dir, "buf.bin")
	require.ErrorIs(t, f.DumpBuffer(bufPath), ErrDumpFailed)
	require.NoFileExists(t, bufPath)

	fullPath := filepath.Join(dir, "full.bin")
	require.ErrorIs(t, f.DumpFull(fullPath), ErrDumpFailed)
	require.NoFileExists(t, fullPath)
}

func TestDumpSyncFailureRemovesFile(t *testing.T) {
	withDumpFile(t, func(fd *os.File) dumpFile { return failingFile{File: fd} })

	f := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "buf.bin")

	require.ErrorIs(t, f.DumpBuffer(path), ErrDumpFailed)
	require.NoFileExists(t, path)
}

func TestRestoreBuffer(t *testing.T) {
	src := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "buf.bin")
	require.NoError(t, src.DumpBuffer(path))

	dst := newFilter(t, ModeBitMark, 128)
	require.NoError(t, dst.RestoreBuffer(path))
	require.Equal(t, src.Bytes(), dst.Bytes())
	for _, w := range words {
		require.True(t, dst.MayContain([]byte(w)), w)
	}
}

func TestRestoreBufferTruncatedFile(t *testing.T) {
	src := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "buf.bin")
	require.NoError(t, src.DumpBuffer(path))
	require.NoError(t, os.Truncate(path, 64))

	dst := newFilter(t, ModeBitMark, 128)
	require.ErrorIs(t, dst.RestoreBuffer(path), ErrRestoreFailed)

	// The first 64 bytes were overwritten, the rest untouched.
	want := make([]byte, 128)
	copy(want, src.Bytes()[:64])
	require.Equal(t, want, dst.Bytes())
}

func TestRestoreBufferCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.bin")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	dst := newFilter(t, ModeCounter, 128)
	require.ErrorIs(t, dst.RestoreBuffer(path), ErrRestoreFailed)
}

func TestRestoreBufferErrors(t *testing.T) {
	dst := newFilter(t, ModeBitMark, 128)

	require.ErrorIs(t, dst.RestoreBuffer(""), ErrInvalidFilePath)
	require.ErrorIs(t, dst.RestoreBuffer(filepath.Join(t.TempDir(), "missing")), ErrOpenFileFailed)

	var nilFilter *Filter
	require.ErrorIs(t, nilFilter.RestoreBuffer("x"), ErrNullFilter)

	require.NoError(t, dst.Destroy())
	require.ErrorIs(t, dst.RestoreBuffer("x"), ErrNullFilter)

	require.ErrorIs(t, (&Filter{}).RestoreBuffer("x"), ErrNullBuffer)
}

func TestRoundTripFull(t *testing.T) {
	for _, mode := range []Mode{ModeBitMark, ModeCounter} {
		t.Run(mode.String(), func(t *testing.T) {
			src := populated(t, mode)
			dir := t.TempDir()
			fullPath := filepath.Join(dir, "full.bin")
			bufPath := filepath.Join(dir, "buf.bin")
			require.NoError(t, src.DumpFull(fullPath))
			require.NoError(t, src.DumpBuffer(bufPath))

			// Construct from the stored metadata, then restore the buffer.
			m, err := ReadMetadata(fullPath)
			require.NoError(t, err)
			dst, err := New(m.Mode, int(m.Size), rsJsDek)
			require.NoError(t, err)
			require.NoError(t, dst.RestoreBuffer(bufPath))
			requireSameAnswers(t, src, dst)

			loaded, err := Load(fullPath, rsJsDek)
			require.NoError(t, err)
			requireSameAnswers(t, src, loaded)

			restored := newFilter(t, mode, 128)
			require.NoError(t, restored.RestoreFull(fullPath))
			requireSameAnswers(t, src, restored)
		})
	}
}

func requireSameAnswers(t *testing.T, want, got *Filter) {
	t.Helper()
	require.Equal(t, want.Metadata(), got.Metadata())
	require.Equal(t, want.Bytes(), got.Bytes())
	for _, w := range append(words, "HELLO", "sun", "mars") {
		wm, err := want.Query([]byte(w))
		require.NoError(t, err)
		gm, err := got.Query([]byte(w))
		require.NoError(t, err)
		require.Equal(t, wm, gm, w)
	}
}

func TestRestoreFullMismatch(t *testing.T) {
	src := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "full.bin")
	require.NoError(t, src.DumpFull(path))

	wrongMode := newFilter(t, ModeCounter, 128)
	require.ErrorIs(t, wrongMode.RestoreFull(path), ErrMetadataMismatch)

	wrongSize := newFilter(t, ModeBitMark, 64)
	require.ErrorIs(t, wrongSize.RestoreFull(path), ErrMetadataMismatch)

	wrongHashes := newFilter(t, ModeBitMark, 128, hash.RSHash)
	require.ErrorIs(t, wrongHashes.RestoreFull(path), ErrMetadataMismatch)

	_, err := Load(path, []hash.Func{hash.RSHash})
	require.ErrorIs(t, err, ErrMetadataMismatch)
}

func TestLoadTruncated(t *testing.T) {
	src := populated(t, ModeBitMark)
	path := filepath.Join(t.TempDir(), "full.bin")
	require.NoError(t, src.DumpFull(path))

	require.NoError(t, os.Truncate(path, MetadataBytes+10))
	_, err := Load(path, rsJsDek)
	require.ErrorIs(t, err, ErrRestoreFailed)

	require.NoError(t, os.Truncate(path, 5))
	_, err = Load(path, rsJsDek)
	require.ErrorIs(t, err, ErrRestoreFailed)
	_, err = ReadMetadata(path)
	require.ErrorIs(t, err, ErrRestoreFailed)
}

func TestMetadataCodec(t *testing.T) {
	b := make([]byte, MetadataBytes)
	require.NoError(t, EncodeMetadata(b, Metadata{Mode: ModeBitMark, HashCount: 5, Size: 1 << 20}))

	m, err := DecodeMetadata(b)
	require.NoError(t, err)
	require.Equal(t, Metadata{Mode: ModeBitMark, HashCount: 5, Size: 1 << 20}, m)

	require.ErrorIs(t, EncodeMetadata(make([]byte, 4), m), ErrShortMetadata)
	_, err = DecodeMetadata(b[:11])
	require.ErrorIs(t, err, ErrShortMetadata)

	_, err = DecodeMetadata(make([]byte, MetadataBytes))
	require.ErrorIs(t, err, ErrInvalidMode)

	require.NoError(t, EncodeMetadata(b, Metadata{Mode: ModeCounter, HashCount: 0, Size: 8}))
	_, err = DecodeMetadata(b)
	require.ErrorIs(t, err, ErrNoHashFuncs)

	require.NoError(t, EncodeMetadata(b, Metadata{Mode: ModeCounter, HashCount: 1, Size: 0}))
	_, err = DecodeMetadata(b)
	require.ErrorIs(t, err, ErrInvalidBufferSize)
}

func TestUnmarshal(t *testing.T) {
	src := populated(t, ModeCounter)
	blob, err := src.MarshalBinary()
	require.NoError(t, err)

	dst, err := Unmarshal(blob, rsJsDek)
	require.NoError(t, err)
	requireSameAnswers(t, src, dst)

	_, err = Unmarshal(blob[:len(blob)-1], rsJsDek)
	require.ErrorIs(t, err, ErrRestoreFailed)
}

func TestUnmarshalBinaryIntoExisting(t *testing.T) {
	src := populated(t, ModeBitMark)
	blob, err := src.MarshalBinary()
	require.NoError(t, err)

	dst := newFilter(t, ModeBitMark, 128)
	require.NoError(t, dst.UnmarshalBinary(blob))
	requireSameAnswers(t, src, dst)

	other := newFilter(t, ModeBitMark, 256)
	require.ErrorIs(t, other.UnmarshalBinary(blob), ErrMetadataMismatch)
}

// hugeHeader is a bare metadata block claiming a 2 GiB buffer.
func hugeHeader(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, MetadataBytes)
	require.NoError(t, EncodeMetadata(b, Metadata{Mode: ModeBitMark, HashCount: 3, Size: 1 << 31}))
	return b
}

func allocatedDuring(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestUnmarshalOversizedClaim(t *testing.T) {
	blob := hugeHeader(t)

	var err error
	n := allocatedDuring(func() { _, err = Unmarshal(blob, rsJsDek) })
	require.ErrorIs(t, err, ErrRestoreFailed)
	require.Less(t, n, uint64(1<<20))
}

func TestLoadOversizedClaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.bin")
	require.NoError(t, os.WriteFile(path, hugeHeader(t), 0644))

	var err error
	n := allocatedDuring(func() { _, err = Load(path, rsJsDek) })
	require.ErrorIs(t, err, ErrRestoreFailed)
	require.Less(t, n, uint64(1<<20))
}
