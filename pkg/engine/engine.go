// Package engine makes a bloom.Filter durable. Every mutation is appended to
// a write-ahead log before it reaches the filter, Checkpoint folds the log
// into a compressed snapshot, and Recover rebuilds the filter after a restart.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mirkobrombin/go-bloomstream/pkg/bloom"
	"github.com/mirkobrombin/go-bloomstream/pkg/snapshot"
	"github.com/mirkobrombin/go-bloomstream/pkg/wal"
	"github.com/mirkobrombin/go-foundation/pkg/options"
)

var (
	ErrClosed         = fmt.Errorf("engine: closed")
	ErrNoSnapshotPath = fmt.Errorf("engine: no snapshot path configured")
	ErrLogBehind      = fmt.Errorf("engine: log is older than snapshot")
	ErrBadLogEntry    = fmt.Errorf("engine: unexpected log entry")
)

// Engine serialises access to a filter and journals its mutations. A nil
// log turns it into a plain locked filter.
type Engine struct {
	mu           sync.RWMutex
	closed       bool
	filter       *bloom.Filter
	wal          *wal.Manager
	snapshotPath string
	logger       *slog.Logger
}

// New wraps f and w. The engine owns both from now on: Close closes the log
// and destroys the filter.
func New(f *bloom.Filter, w *wal.Manager, opts ...Option) *Engine {
	e := &Engine{
		filter: f,
		wal:    w,
		logger: slog.Default(),
	}
	options.Apply(e, opts...)
	return e
}

// Insert journals entry and adds it to the filter. In counter mode a
// saturated cell yields bloom.ErrCounterExceeded; the entry stays journaled,
// so replay reaches the same saturated state.
func (e *Engine) Insert(ctx context.Context, entry []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.wal != nil {
		if _, err := e.wal.Append(wal.Entry{Type: wal.EntryInsert, Data: entry}); err != nil {
			return err
		}
	}
	return e.filter.Insert(entry)
}

func (e *Engine) Query(ctx context.Context, entry []byte) (bloom.Membership, error) {
	if err := ctx.Err(); err != nil {
		return bloom.DefinitelyAbsent, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return bloom.DefinitelyAbsent, ErrClosed
	}
	return e.filter.Query(entry)
}

// MayContain reports false on any error, including a closed engine.
func (e *Engine) MayContain(ctx context.Context, entry []byte) bool {
	m, err := e.Query(ctx, entry)
	return err == nil && m == bloom.PossiblyPresent
}

// Reset journals a reset marker and zeroes the filter.
func (e *Engine) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.wal != nil {
		if _, err := e.wal.Append(wal.Entry{Type: wal.EntryReset}); err != nil {
			return err
		}
	}
	return e.filter.Reset()
}

// Sync flushes the log to stable storage.
func (e *Engine) Sync() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	if e.wal == nil {
		return nil
	}
	return e.wal.Sync()
}

// Metadata describes the wrapped filter.
func (e *Engine) Metadata() (bloom.Metadata, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return bloom.Metadata{}, ErrClosed
	}
	return e.filter.Metadata(), nil
}

// Recover rebuilds the filter from the snapshot, when one is configured and
// present, followed by every log segment the snapshot does not cover. It is
// meant to run once, on a freshly constructed filter, before any Insert.
func (e *Engine) Recover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	var from uint64
	if e.snapshotPath != "" {
		seq, err := snapshot.Restore(e.snapshotPath, e.filter)
		switch {
		case errors.Is(err, os.ErrNotExist):
			e.logger.Debug("engine: no snapshot, replaying full log", "path", e.snapshotPath)
		case err != nil:
			return err
		default:
			from = seq
			e.logger.Debug("engine: snapshot restored", "path", e.snapshotPath, "seq", seq)
		}
	}

	if e.wal == nil {
		return nil
	}
	if active := e.wal.ActiveSegmentID(); active < from {
		return fmt.Errorf("%w: active segment %d, snapshot covers up to %d", ErrLogBehind, active, from)
	}

	replayed := 0
	apply := func(entry wal.Entry, _ int64) error {
		replayed++
		return e.apply(entry)
	}

	for _, seg := range e.wal.SealedSegments() {
		if seg.ID() < from {
			// Covered by the snapshot; left over from an interrupted checkpoint.
			if err := e.wal.RemoveSegment(seg.ID()); err != nil {
				return err
			}
			continue
		}
		if err := e.wal.IterateSegment(seg, apply); err != nil {
			return fmt.Errorf("engine: replay segment %d: %w", seg.ID(), err)
		}
	}
	if err := e.wal.IterateActiveSegment(apply); err != nil {
		return fmt.Errorf("engine: replay active segment: %w", err)
	}

	e.logger.Info("engine: recovered", "entries", replayed, "from_segment", from)
	return nil
}

func (e *Engine) apply(entry wal.Entry) error {
	switch entry.Type {
	case wal.EntryInsert:
		err := e.filter.Insert(entry.Data)
		if errors.Is(err, bloom.ErrCounterExceeded) {
			e.logger.Debug("engine: replayed insert hit a saturated counter")
			return nil
		}
		return err
	case wal.EntryReset:
		return e.filter.Reset()
	default:
		return fmt.Errorf("%w: type %d", ErrBadLogEntry, entry.Type)
	}
}

// Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.wal != nil {
		err = e.wal.Close()
	}
	return errors.Join(err, e.filter.Destroy())
}
