package mux

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type Option func(*options)

type options struct {
	tracer trace.Tracer
	logger *slog.Logger
	mw     []Middleware
}

// WithMiddleware appends middleware applied to every route, outermost
// first.
func WithMiddleware(mw ...Middleware) Option {
	return func(opts *options) {
		opts.mw = append(opts.mw, mw...)
	}
}

// WithTracer injects the given tracer into the App.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = tracer
	}
}

// WithLogger sets the logger used by the App for internal errors.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}
