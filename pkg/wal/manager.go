package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Manager handles a collection of WAL segments.
type Manager struct {
	mu      sync.RWMutex
	dir     string
	active  *Segment
	sealed  []*Segment
	maxSize int64
	closed  bool
}

// NewManager opens the log in dir, creating the directory if needed. The
// segment with the highest ID becomes the active one.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	m := &Manager{
		dir:     dir,
		maxSize: DefaultSegmentSize,
	}

	if err := m.loadSegments(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) segmentPath(id uint64) string {
	return filepath.Join(m.dir, fmt.Sprintf("%016x.log", id))
}

func (m *Manager) loadSegments() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}

	var segmentIDs []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}

		name := strings.TrimSuffix(e.Name(), ".log")
		id, err := strconv.ParseUint(name, 16, 64)
		if err != nil {
			continue // Skip malformed files
		}
		segmentIDs = append(segmentIDs, id)
	}

	sort.Slice(segmentIDs, func(i, j int) bool {
		return segmentIDs[i] < segmentIDs[j]
	})

	for i, id := range segmentIDs {
		seg, err := NewSegment(id, m.segmentPath(id))
		if err != nil {
			return err
		}

		if i == len(segmentIDs)-1 {
			m.active = seg
		} else {
			seg.Close()
			m.sealed = append(m.sealed, seg)
		}
	}

	if m.active == nil {
		seg, err := NewSegment(0, m.segmentPath(0))
		if err != nil {
			return err
		}
		m.active = seg
	}

	return nil
}

// Append writes an entry to the active segment, rotating if necessary, and
// returns its packed offset.
func (m *Manager) Append(entry Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	data := EncodeEntry(entry)
	if int64(len(data)) > m.maxSize {
		return 0, fmt.Errorf("%w: entry of %d bytes exceeds segment size %d", ErrSegmentFull, len(data), m.maxSize)
	}

	if m.active.Size()+int64(len(data)) > m.maxSize {
		if err := m.rotate(); err != nil {
			return 0, err
		}
	}

	offset, err := m.active.Write(data)
	if err != nil {
		return 0, err
	}

	return PackOffset(m.active.ID(), offset), nil
}

// Rotate seals the active segment and starts a new, empty one. Everything
// appended before Rotate is then reachable through SealedSegments.
func (m *Manager) Rotate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	return m.rotate()
}

func (m *Manager) rotate() error {
	if err := m.active.Sync(); err != nil {
		return err
	}
	m.active.Close()

	m.sealed = append(m.sealed, m.active)

	newID := m.active.ID() + 1
	seg, err := NewSegment(newID, m.segmentPath(newID))
	if err != nil {
		return err
	}
	m.active = seg
	return nil
}

// ReadEntryAt reads back the entry Append stored at packedOffset.
func (m *Manager) ReadEntryAt(packedOffset int64) (Entry, error) {
	segID, offset := UnpackOffset(packedOffset)

	m.mu.RLock()
	var target *Segment
	if m.active.ID() == segID {
		target = m.active
	} else {
		for _, s := range m.sealed {
			if s.ID() == segID {
				target = s
				break
			}
		}
	}
	m.mu.RUnlock()

	if target == nil {
		return Entry{}, ErrNotFound
	}

	e, _, err := readEntry(target, offset, target.Size())
	return e, err
}

// readEntry decodes the entry at offset and returns the offset right after
// it. Records that would run past limit are torn.
func readEntry(seg *Segment, offset, limit int64) (Entry, int64, error) {
	if offset+headerSize > limit {
		return Entry{}, 0, ErrTornEntry
	}
	header, err := seg.ReadAt(offset, headerSize)
	if err != nil {
		return Entry{}, 0, err
	}
	typ, dataLen, err := decodeHeader(header)
	if err != nil {
		return Entry{}, 0, err
	}

	next := offset + headerSize + int64(dataLen)
	if next > limit {
		return Entry{}, 0, ErrTornEntry
	}

	var data []byte
	if dataLen > 0 {
		data, err = seg.ReadAt(offset+headerSize, int(dataLen))
		if err != nil {
			return Entry{}, 0, err
		}
	}
	return Entry{Type: typ, Data: data}, next, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.active.Close(); err != nil {
		return err
	}
	for _, s := range m.sealed {
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ActiveSegmentID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.ID()
}

func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Sync()
}

func (m *Manager) SealedSegments() []*Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]*Segment, len(m.sealed))
	copy(cp, m.sealed)
	return cp
}

// RemoveSegment deletes a sealed segment from disk.
func (m *Manager) RemoveSegment(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, s := range m.sealed {
		if s.ID() == id {
			idx = i
			break
		}
	}

	if idx == -1 {
		return ErrNotFound
	}

	seg := m.sealed[idx]
	if err := seg.Close(); err != nil {
		return fmt.Errorf("wal: failed to close segment %d: %w", seg.ID(), err)
	}

	m.sealed = append(m.sealed[:idx], m.sealed[idx+1:]...)

	return os.Remove(seg.path)
}

// IterateSegment calls fn for every entry of seg in append order. A record cut
// short at the end of the segment yields ErrTornEntry.
func (m *Manager) IterateSegment(seg *Segment, fn func(e Entry, offset int64) error) error {
	_, err := iterate(seg, fn)
	return err
}

func iterate(seg *Segment, fn func(e Entry, offset int64) error) (int64, error) {
	offset := int64(0)
	size := seg.Size()

	for offset < size {
		entry, next, err := readEntry(seg, offset, size)
		if err != nil {
			return offset, err
		}
		if err := fn(entry, PackOffset(seg.ID(), offset)); err != nil {
			return offset, err
		}
		offset = next
	}
	return offset, nil
}

// SetMaxSegmentSize changes the rotation threshold. It takes effect on the
// next Append, including for the segment currently active.
func (m *Manager) SetMaxSegmentSize(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSize = size
}

// IterateActiveSegment is IterateSegment for the active segment. A torn tail
// there is what a crash during Append leaves behind, so it is truncated away
// instead of being reported.
func (m *Manager) IterateActiveSegment(fn func(e Entry, offset int64) error) error {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	good, err := iterate(active, fn)
	if errors.Is(err, ErrTornEntry) {
		return active.truncate(good)
	}
	return err
}
