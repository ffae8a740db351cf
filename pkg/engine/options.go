package engine

import (
	"log/slog"

	"github.com/mirkobrombin/go-foundation/pkg/options"
)

// Option defines a functional configuration for the Engine.
type Option = options.Option[Engine]

// WithSnapshotPath enables snapshots: Checkpoint writes to path and Recover
// starts from it.
func WithSnapshotPath(path string) Option {
	return func(e *Engine) {
		e.snapshotPath = path
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
