package engine

import (
	"context"
	"errors"
	"time"

	"github.com/mirkobrombin/go-bloomstream/pkg/snapshot"
)

// StartCheckpointer runs Checkpoint every interval until ctx is done or the
// engine is closed.
func (e *Engine) StartCheckpointer(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := e.Checkpoint()
			if errors.Is(err, ErrClosed) {
				return
			}
			if err != nil {
				e.logger.Error("engine: checkpoint failed", "error", err)
			}
		}
	}()
}

// Checkpoint seals the active log segment, snapshots the filter and drops
// the sealed segments the snapshot now covers.
//
// The snapshot records the ID of the new active segment. If the process dies
// before the old segments are removed, Recover skips and removes them, so
// counter-mode cells are never incremented twice.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.snapshotPath == "" {
		return ErrNoSnapshotPath
	}

	if e.wal == nil {
		return snapshot.Save(e.snapshotPath, e.filter, 0)
	}

	if err := e.wal.Rotate(); err != nil {
		return err
	}
	seq := e.wal.ActiveSegmentID()
	if err := snapshot.Save(e.snapshotPath, e.filter, seq); err != nil {
		return err
	}

	removed := 0
	for _, seg := range e.wal.SealedSegments() {
		if seg.ID() >= seq {
			continue
		}
		if err := e.wal.RemoveSegment(seg.ID()); err != nil {
			return err
		}
		removed++
	}

	e.logger.Debug("engine: checkpoint", "path", e.snapshotPath, "seq", seq, "segments_removed", removed)
	return nil
}
