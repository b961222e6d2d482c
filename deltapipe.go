// Package deltapipe exposes the throttler, registry and client builders.
package deltapipe

import (
	"github.com/adamwoolhether/deltapipe/client"
	"github.com/adamwoolhether/deltapipe/stream"
	"github.com/adamwoolhether/deltapipe/throttle"
)

// NewThrottler instantiates a *throttle.Throttler calling emit with each
// batch. Without options the window is throttle.DefaultInterval.
func NewThrottler(emit throttle.EmitFunc, opts ...throttle.Option) (*throttle.Throttler, error) {
	return throttle.New(emit, opts...)
}

// NewRegistry instantiates a *stream.Registry delivering to sink with
// stream.DefaultConfig.
func NewRegistry(sink stream.Sink, opts ...stream.Option) (*stream.Registry, error) {
	return stream.New(sink, stream.DefaultConfig(), opts...)
}

// NewClient instantiates a *client.Client for the server at baseURL.
func NewClient(baseURL string, opts ...client.Option) (*client.Client, error) {
	return client.New(baseURL, opts...)
}
