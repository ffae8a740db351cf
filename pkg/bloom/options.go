package bloom

import (
	"log/slog"

	"github.com/mirkobrombin/go-foundation/pkg/options"
)

// Option defines a functional configuration for a Filter.
type Option = options.Option[Filter]

// WithLogger sets the logger used for lifecycle and saturation events.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}
