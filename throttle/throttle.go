package throttle

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is used when WithInterval is not supplied.
const DefaultInterval = 50 * time.Millisecond

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrNilEmit       = errors.New("emit func must not be nil")
)

// EmitFunc receives the content accumulated since the previous emission.
type EmitFunc func(content string)

// Throttler accumulates text deltas and hands them to an EmitFunc in
// batches, either when the interval elapses or when Flush is called.
type Throttler struct {
	emit     EmitFunc
	interval time.Duration
	logger   *slog.Logger

	// emitMu serializes deliveries so batches reach emit in the order
	// they were taken from the buffer.
	emitMu sync.Mutex

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer // nil when no flush is scheduled
	epoch uint64      // bumped each time the buffer is taken
}

// New returns a Throttler delivering batches to emit. The interval
// defaults to DefaultInterval.
func New(emit EmitFunc, optFns ...Option) (*Throttler, error) {
	if emit == nil {
		return nil, ErrNilEmit
	}

	opts := options{interval: DefaultInterval}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying throttle option: %w", err)
		}
	}

	t := Throttler{
		emit:     emit,
		interval: opts.interval,
		logger:   opts.logger,
	}

	return &t, nil
}

// AddDelta appends delta to the buffer. If no flush is scheduled, one
// is scheduled to fire after the interval; otherwise the pending flush
// will pick the delta up.
func (t *Throttler) AddDelta(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.WriteString(delta)

	if t.timer != nil {
		return
	}

	epoch := t.epoch
	t.timer = time.AfterFunc(t.interval, func() {
		t.fire(epoch)
	})
}

// Flush cancels any scheduled flush and emits the buffered content
// immediately. Nothing is emitted when the buffer is empty.
//
// Flush must not be called from within the EmitFunc.
func (t *Throttler) Flush() {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	content := t.take()
	t.mu.Unlock()

	t.deliver(content, "flush")
}

// Buffered reports the number of bytes waiting to be emitted.
func (t *Throttler) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.buf.Len()
}

// Pending reports whether a timed flush is scheduled.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.timer != nil
}

// Interval returns the configured throttle interval.
func (t *Throttler) Interval() time.Duration {
	return t.interval
}

// fire is the timer callback. A timer whose accumulation cycle was
// already closed by Flush does nothing.
func (t *Throttler) fire(epoch uint64) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		return
	}
	content := t.take()
	t.mu.Unlock()

	t.deliver(content, "timer")
}

// take closes the current accumulation cycle and returns its content.
// Callers must hold mu.
func (t *Throttler) take() string {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.epoch++

	content := t.buf.String()
	t.buf.Reset()

	return content
}

func (t *Throttler) deliver(content, trigger string) {
	if content == "" {
		return
	}

	if t.logger != nil {
		t.logger.Debug("delta batch emitted", "trigger", trigger, "bytes", len(content))
	}

	t.emit(content)
}
