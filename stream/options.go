package stream

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// WithLogger sets the logger for delivery failures and stream lifecycle
// events. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithTracer records a span around every sink delivery. Default is a
// no-op tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = tracer
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(opts *options) {
		opts.metrics = m
	}
}
