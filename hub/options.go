package hub

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Hub.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	bufferSize   int
	writeTimeout time.Duration
	pingInterval time.Duration
	checkOrigin  func(r *http.Request) bool
}

// WithLogger sets the logger used for subscriber lifecycle events.
// Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithBufferSize sets how many messages may queue per subscriber before
// it is considered too slow and disconnected. Non-positive values are
// ignored.
func WithBufferSize(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.bufferSize = n
		}
	}
}

// WithWriteTimeout bounds each websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(opts *options) {
		if d > 0 {
			opts.writeTimeout = d
		}
	}
}

// WithPingInterval sets how often subscribers are pinged. A subscriber
// that does not answer within two intervals is dropped.
func WithPingInterval(d time.Duration) Option {
	return func(opts *options) {
		if d > 0 {
			opts.pingInterval = d
		}
	}
}

// WithCheckOrigin replaces the default same-origin check applied to
// browser clients.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(opts *options) {
		opts.checkOrigin = fn
	}
}
