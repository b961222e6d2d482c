package throttle

import (
	"fmt"
	"log/slog"
	"time"
)

// Option defines optional settings for a Throttler.
//
// WithInterval sets how long deltas accumulate before a timed flush.
// WithLogger enables debug logging of each emitted batch.
type Option func(*options) error

type options struct {
	interval time.Duration
	logger   *slog.Logger
}

func WithInterval(d time.Duration) Option {
	return func(opts *options) error {
		if d <= 0 {
			return fmt.Errorf("interval[%s] %w", d, ErrMustNotBeZero)
		}
		opts.interval = d
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		opts.logger = logger
		return nil
	}
}
