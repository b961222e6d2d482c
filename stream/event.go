package stream

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSinkClosed is returned by a Sink whose destination is gone.
	// The Registry drops the batch without reporting a failure.
	ErrSinkClosed = errors.New("sink closed")

	ErrClosed           = errors.New("registry closed")
	ErrStreamIDRequired = errors.New("stream id required")
	ErrTooManyStreams   = errors.New("too many streams")
)

// Event is one batch of coalesced output for a stream.
type Event struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	Data      string    `json:"data"`
	Time      time.Time `json:"time"`
}

// Sink receives batched events.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Stat describes an active stream.
type Stat struct {
	SessionID string `json:"sessionId"`
	Buffered  int    `json:"buffered"`
	Pending   bool   `json:"pending"`
	Emitted   uint64 `json:"emitted"`
}
