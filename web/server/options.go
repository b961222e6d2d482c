package server

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	host            string
	readTimeout     time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []shutdownFunc
	tlsCertFile     string
	tlsKeyFile      string
}

type shutdownFunc func(ctx context.Context) error

// WithHost sets the address Run listens on. Default is ":8080".
func WithHost(host string) Option {
	return func(opts *options) {
		if host != "" {
			opts.host = host
		}
	}
}

// WithReadTimeout bounds reading request headers. Default is 5s.
func WithReadTimeout(d time.Duration) Option {
	return func(opts *options) {
		if d > 0 {
			opts.readTimeout = d
		}
	}
}

// WithIdleTimeout sets the keep-alive idle timeout. Default is 120s.
func WithIdleTimeout(d time.Duration) Option {
	return func(opts *options) {
		if d > 0 {
			opts.idleTimeout = d
		}
	}
}

// WithShutdownTimeout bounds the graceful shutdown started when the
// Run or Serve context ends. Default is 20s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(opts *options) {
		if d > 0 {
			opts.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger used for server lifecycle events.
// Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithShutdownFunc registers a function to call during graceful
// shutdown, before in-flight requests are drained. Functions run in
// registration order. Closing a stream registry here delivers its
// pending batches while subscribers are still connected.
func WithShutdownFunc(fn func(ctx context.Context) error) Option {
	return func(opts *options) {
		opts.shutdownFuncs = append(opts.shutdownFuncs, fn)
	}
}

// WithTLS serves TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(opts *options) {
		opts.tlsCertFile = certFile
		opts.tlsKeyFile = keyFile
	}
}
