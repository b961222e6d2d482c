package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/adamwoolhether/deltapipe/throttle"
)

// Registry owns one Throttler per stream and delivers each stream's
// batches to a Sink as Events.
type Registry struct {
	sink    Sink
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
	errLog  rate.Sometimes

	mu      sync.Mutex
	streams map[string]*entry
	closed  bool
}

type entry struct {
	id  string
	th  *throttle.Throttler
	seq atomic.Uint64
}

// New creates a Registry delivering to sink. cfg is validated.
func New(sink Sink, cfg Config, optFns ...Option) (*Registry, error) {
	if sink == nil {
		return nil, errors.New("sink must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}

	r := Registry{
		sink:    sink,
		cfg:     cfg,
		logger:  opts.logger,
		tracer:  opts.tracer,
		metrics: opts.metrics,
		errLog:  rate.Sometimes{Interval: time.Second},
		streams: make(map[string]*entry),
	}

	return &r, nil
}

// Config returns the configuration the Registry was built with.
func (r *Registry) Config() Config {
	return r.cfg
}

// Write appends data to the stream identified by sessionID, opening
// the stream on first use.
func (r *Registry) Write(sessionID, data string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return ErrStreamIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	e, ok := r.streams[id]
	if !ok {
		if r.cfg.MaxStreams > 0 && len(r.streams) >= r.cfg.MaxStreams {
			return fmt.Errorf("stream[%s] max[%d]: %w", id, r.cfg.MaxStreams, ErrTooManyStreams)
		}

		var err error
		e, err = r.open(id)
		if err != nil {
			return err
		}
		r.streams[id] = e
		r.metrics.setActive(len(r.streams))
		r.logger.Debug("stream opened", "session", id, "channel", r.cfg.Channel)
	}

	e.th.AddDelta(data)
	r.metrics.delta(r.cfg.Channel)

	return nil
}

// Flush emits the pending output of a stream immediately. It reports
// false when the stream is unknown.
func (r *Registry) Flush(sessionID string) bool {
	e := r.lookup(sessionID)
	if e == nil {
		return false
	}

	e.th.Flush()

	return true
}

// End flushes a stream and forgets it. A later Write opens a fresh
// stream whose sequence numbers restart at 1.
func (r *Registry) End(sessionID string) bool {
	id := strings.TrimSpace(sessionID)

	r.mu.Lock()
	e, ok := r.streams[id]
	if ok {
		delete(r.streams, id)
		r.metrics.setActive(len(r.streams))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	e.th.Flush()
	r.logger.Debug("stream ended", "session", id, "emitted", e.seq.Load())

	return true
}

// Close refuses further writes, then flushes and forgets every stream.
// Close is safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := make([]*entry, 0, len(r.streams))
	for _, e := range r.streams {
		entries = append(entries, e)
	}
	clear(r.streams)
	r.metrics.setActive(0)
	r.mu.Unlock()

	for _, e := range entries {
		e.th.Flush()
	}
}

// Sessions reports the open streams ordered by session ID.
func (r *Registry) Sessions() []Stat {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.streams))
	for _, e := range r.streams {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	stats := make([]Stat, len(entries))
	for i, e := range entries {
		stats[i] = Stat{
			SessionID: e.id,
			Buffered:  e.th.Buffered(),
			Pending:   e.th.Pending(),
			Emitted:   e.seq.Load(),
		}
	}

	slices.SortFunc(stats, func(a, b Stat) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})

	return stats
}

func (r *Registry) lookup(sessionID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.streams[strings.TrimSpace(sessionID)]
}

func (r *Registry) open(id string) (*entry, error) {
	e := entry{id: id}

	th, err := throttle.New(func(content string) {
		r.deliver(&e, content)
	}, throttle.WithInterval(r.cfg.Interval), throttle.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("stream[%s] throttle: %w", id, err)
	}
	e.th = th

	return &e, nil
}

// deliver runs on the throttler's emit path for a stream.
func (r *Registry) deliver(e *entry, content string) {
	ev := Event{
		ID:        uuid.NewString(),
		Channel:   r.cfg.Channel,
		SessionID: e.id,
		Seq:       e.seq.Add(1),
		Data:      content,
		Time:      time.Now().UTC(),
	}

	ctx := context.Background()
	if r.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SendTimeout)
		defer cancel()
	}

	ctx, span := r.tracer.Start(ctx, "stream.emit")
	span.SetAttributes(
		attribute.String("channel", ev.Channel),
		attribute.String("session", ev.SessionID),
		attribute.Int64("seq", int64(ev.Seq)),
		attribute.Int("bytes", len(content)),
	)
	defer span.End()

	err := r.sink.Send(ctx, ev)
	switch {
	case err == nil:
		r.metrics.emitted(ev.Channel, len(content))

	case errors.Is(err, ErrSinkClosed):
		r.logger.Debug("sink closed, batch dropped", "session", ev.SessionID, "bytes", len(content))

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "sink send")
		r.metrics.sinkError(ev.Channel)
		r.errLog.Do(func() {
			r.logger.Error("sink send", "session", ev.SessionID, "seq", ev.Seq, "error", err)
		})
	}
}
