package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// segmentFile is the subset of *os.File a segment relies on.
type segmentFile interface {
	io.Writer
	io.ReaderAt
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

var openSegmentFile = func(path string) (segmentFile, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
}

// Segment represents a single file in the segmented WAL. Its size limit is
// enforced by the Manager.
type Segment struct {
	mu     sync.RWMutex
	id     uint64
	path   string
	file   segmentFile
	size   int64
	closed bool
	// failed is set when a torn write could not be rolled back.
	failed error
}

// NewSegment creates or opens a segment.
func NewSegment(id uint64, path string) (*Segment, error) {
	f, err := openSegmentFile(path)
	if err != nil {
		return nil, fmt.Errorf("segment: failed to open: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Segment{
		id:   id,
		path: path,
		file: f,
		size: stat.Size(),
	}, nil
}

// Write appends data to the segment and returns the offset it was written at.
// A failed write is truncated away, so the next record starts where this one
// would have.
func (s *Segment) Write(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.failed != nil {
		return 0, s.failed
	}

	n, err := s.file.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 {
			if terr := s.file.Truncate(s.size); terr != nil {
				s.failed = fmt.Errorf("segment %d: torn write at %d not rolled back: %w", s.id, s.size, terr)
				return 0, errors.Join(err, s.failed)
			}
		}
		return 0, err
	}

	offset := s.size
	s.size += int64(n)
	return offset, nil
}

// ReadAt reads size bytes at offset, reopening a sealed segment read-only on
// first use.
func (s *Segment) ReadAt(offset int64, size int) ([]byte, error) {
	f, err := s.handle()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Segment) handle() (segmentFile, error) {
	s.mu.RLock()
	f := s.file
	s.mu.RUnlock()
	if f != nil {
		return f, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		// Rely on OS page cache for read speed
		f, err := os.Open(s.path)
		if err != nil {
			return nil, err
		}
		s.file = f
	}
	return s.file, nil
}

func (s *Segment) truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.file == nil {
		return ErrClosed
	}
	if err := s.file.Truncate(size); err != nil {
		return fmt.Errorf("segment: truncate to %d: %w", size, err)
	}
	s.size = size
	return nil
}

func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

func (s *Segment) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

func (s *Segment) ID() uint64 {
	return s.id
}

func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
