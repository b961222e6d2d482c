package stream

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *memSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)

	return nil
}

func (s *memSink) got() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

var ignoreVolatile = cmpopts.IgnoreFields(Event{}, "ID", "Time")

func newTestRegistry(t *testing.T, sink Sink, cfg Config, opts ...Option) *Registry {
	t.Helper()

	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	reg, err := New(sink, cfg, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return reg
}

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		sink    Sink
		cfg     Config
		wantErr string
	}{
		{
			name:    "Nil sink",
			sink:    nil,
			cfg:     DefaultConfig(),
			wantErr: "sink must not be nil",
		},
		{
			name:    "Missing channel",
			sink:    &memSink{},
			cfg:     Config{Interval: time.Millisecond},
			wantErr: `channel failed "required"`,
		},
		{
			name:    "Zero interval",
			sink:    &memSink{},
			cfg:     Config{Channel: "c"},
			wantErr: `interval failed "gt"`,
		},
		{
			name:    "Negative max streams",
			sink:    &memSink{},
			cfg:     Config{Channel: "c", Interval: time.Millisecond, MaxStreams: -1},
			wantErr: `maxstreams failed "gte"`,
		},
		{
			name: "Default config",
			sink: &memSink{},
			cfg:  DefaultConfig(),
		},
		{
			name: "PTY config",
			sink: &memSink{},
			cfg:  PTYConfig(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg, err := New(tc.sink, tc.cfg)

			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("exp err containing %q; got: %v", tc.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("exp nil err, got: %v", err)
			}
			if reg == nil {
				t.Fatal("exp non-nil Registry")
			}
		})
	}
}

func TestRegistry_BatchesPerStream(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sink := &memSink{}
		reg := newTestRegistry(t, sink, PTYConfig())

		for _, data := range []string{"hello ", "world"} {
			if err := reg.Write("s1", data); err != nil {
				t.Fatal(err)
			}
		}
		if err := reg.Write("s2", "other"); err != nil {
			t.Fatal(err)
		}

		if got := sink.got(); len(got) != 0 {
			t.Fatalf("emitted before interval: %+v", got)
		}

		time.Sleep(16 * time.Millisecond)
		synctest.Wait()

		want := []Event{
			{Channel: ChannelPTY, SessionID: "s1", Seq: 1, Data: "hello world"},
			{Channel: ChannelPTY, SessionID: "s2", Seq: 1, Data: "other"},
		}
		got := sink.got()
		sortEvents := cmpopts.SortSlices(func(a, b Event) bool { return a.SessionID < b.SessionID })
		if diff := cmp.Diff(want, got, ignoreVolatile, sortEvents); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}

		for _, ev := range got {
			if ev.ID == "" {
				t.Error("exp event ID to be set")
			}
			if ev.Time.IsZero() {
				t.Error("exp event time to be set")
			}
		}
	})
}

func TestRegistry_FlushImmediately(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sink := &memSink{}
		reg := newTestRegistry(t, sink, PTYConfig())

		if err := reg.Write("s2", "partial"); err != nil {
			t.Fatal(err)
		}
		if !reg.Flush("s2") {
			t.Fatal("exp Flush to find stream")
		}

		want := []Event{{Channel: ChannelPTY, SessionID: "s2", Seq: 1, Data: "partial"}}
		if diff := cmp.Diff(want, sink.got(), ignoreVolatile); diff != "" {
			t.Fatalf("events mismatch (-want +got):\n%s", diff)
		}

		time.Sleep(16 * time.Millisecond)
		synctest.Wait()
		if n := len(sink.got()); n != 1 {
			t.Errorf("sink called %d times, want 1", n)
		}

		stats := reg.Sessions()
		if diff := cmp.Diff([]Stat{{SessionID: "s2", Emitted: 1}}, stats); diff != "" {
			t.Errorf("stats mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestRegistry_SequenceIncreases(t *testing.T) {
	sink := &memSink{}
	reg := newTestRegistry(t, sink, Config{Channel: "c", Interval: time.Hour})

	for _, data := range []string{"a", "b", "c"} {
		if err := reg.Write("s", data); err != nil {
			t.Fatal(err)
		}
		reg.Flush("s")
	}

	want := []Event{
		{Channel: "c", SessionID: "s", Seq: 1, Data: "a"},
		{Channel: "c", SessionID: "s", Seq: 2, Data: "b"},
		{Channel: "c", SessionID: "s", Seq: 3, Data: "c"},
	}
	if diff := cmp.Diff(want, sink.got(), ignoreVolatile); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_WriteErrors(t *testing.T) {
	cfg := Config{Channel: "c", Interval: time.Hour, MaxStreams: 1}

	testCases := []struct {
		name    string
		prepare func(reg *Registry)
		session string
		expErr  error
	}{
		{
			name:    "Empty session",
			session: "",
			expErr:  ErrStreamIDRequired,
		},
		{
			name:    "Whitespace session",
			session: "   ",
			expErr:  ErrStreamIDRequired,
		},
		{
			name: "Too many streams",
			prepare: func(reg *Registry) {
				_ = reg.Write("first", "x")
			},
			session: "second",
			expErr:  ErrTooManyStreams,
		},
		{
			name: "Existing stream under cap",
			prepare: func(reg *Registry) {
				_ = reg.Write("first", "x")
			},
			session: "first",
		},
		{
			name: "Closed registry",
			prepare: func(reg *Registry) {
				reg.Close()
			},
			session: "first",
			expErr:  ErrClosed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newTestRegistry(t, &memSink{}, cfg)
			if tc.prepare != nil {
				tc.prepare(reg)
			}

			err := reg.Write(tc.session, "data")
			if tc.expErr == nil {
				if err != nil {
					t.Errorf("exp nil err, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.expErr) {
				t.Errorf("exp err %v; got: %v", tc.expErr, err)
			}
		})
	}
}

func TestRegistry_EndFlushesAndForgets(t *testing.T) {
	sink := &memSink{}
	reg := newTestRegistry(t, sink, Config{Channel: "c", Interval: time.Hour})

	if err := reg.Write("s", "tail"); err != nil {
		t.Fatal(err)
	}
	if !reg.End("s") {
		t.Fatal("exp End to find stream")
	}
	if reg.End("s") {
		t.Error("exp second End to report unknown stream")
	}
	if reg.Flush("s") {
		t.Error("exp Flush of ended stream to report unknown")
	}
	if n := len(reg.Sessions()); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}

	// A reopened stream starts a fresh sequence.
	if err := reg.Write("s", "again"); err != nil {
		t.Fatal(err)
	}
	reg.Flush("s")

	want := []Event{
		{Channel: "c", SessionID: "s", Seq: 1, Data: "tail"},
		{Channel: "c", SessionID: "s", Seq: 1, Data: "again"},
	}
	if diff := cmp.Diff(want, sink.got(), ignoreVolatile); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_CloseFlushesAll(t *testing.T) {
	sink := &memSink{}
	reg := newTestRegistry(t, sink, Config{Channel: "c", Interval: time.Hour})

	for _, id := range []string{"b", "a", "c"} {
		if err := reg.Write(id, id+"-data"); err != nil {
			t.Fatal(err)
		}
	}

	stats := reg.Sessions()
	wantStats := []Stat{
		{SessionID: "a", Buffered: 6, Pending: true},
		{SessionID: "b", Buffered: 6, Pending: true},
		{SessionID: "c", Buffered: 6, Pending: true},
	}
	if diff := cmp.Diff(wantStats, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	reg.Close()
	reg.Close()

	if n := len(sink.got()); n != 3 {
		t.Errorf("sink received %d events, want 3", n)
	}
	if n := len(reg.Sessions()); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestRegistry_SinkErrors(t *testing.T) {
	testCases := []struct {
		name       string
		sinkErr    error
		wantLog    bool
		wantErrors float64
	}{
		{
			name:       "Closed sink is quiet",
			sinkErr:    ErrSinkClosed,
			wantLog:    false,
			wantErrors: 0,
		},
		{
			name:       "Wrapped closed sink is quiet",
			sinkErr:    errors.Join(errors.New("window destroyed"), ErrSinkClosed),
			wantLog:    false,
			wantErrors: 0,
		},
		{
			name:       "Failure is logged and counted",
			sinkErr:    errors.New("boom"),
			wantLog:    true,
			wantErrors: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))
			metrics := NewMetrics("test", prometheus.NewRegistry())

			reg, err := New(&memSink{err: tc.sinkErr}, Config{Channel: "c", Interval: time.Hour},
				WithLogger(log), WithMetrics(metrics))
			if err != nil {
				t.Fatal(err)
			}

			if err := reg.Write("s", "data"); err != nil {
				t.Fatal(err)
			}
			reg.Flush("s")

			logged := strings.Contains(buf.String(), "sink send")
			if logged != tc.wantLog {
				t.Errorf("logged = %v, want %v: %s", logged, tc.wantLog, buf.String())
			}

			if got := testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("c")); got != tc.wantErrors {
				t.Errorf("sink errors = %v, want %v", got, tc.wantErrors)
			}
			if got := testutil.ToFloat64(metrics.Emissions.WithLabelValues("c")); got != 0 {
				t.Errorf("emissions = %v, want 0", got)
			}
		})
	}
}

func TestRegistry_SinkErrorLogIsSampled(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	reg, err := New(&memSink{err: errors.New("boom")}, Config{Channel: "c", Interval: time.Hour}, WithLogger(log))
	if err != nil {
		t.Fatal(err)
	}

	for range 10 {
		_ = reg.Write("s", "x")
		reg.Flush("s")
	}

	if n := strings.Count(buf.String(), "sink send"); n != 1 {
		t.Errorf("logged %d sink errors, want 1", n)
	}
}

func TestRegistry_Metrics(t *testing.T) {
	metrics := NewMetrics("test", prometheus.NewRegistry())
	reg := newTestRegistry(t, &memSink{}, Config{Channel: "c", Interval: time.Hour}, WithMetrics(metrics))

	_ = reg.Write("a", "12")
	_ = reg.Write("a", "345")
	_ = reg.Write("b", "6")

	if got := testutil.ToFloat64(metrics.ActiveStreams); got != 2 {
		t.Errorf("active streams = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Deltas.WithLabelValues("c")); got != 3 {
		t.Errorf("deltas = %v, want 3", got)
	}

	reg.End("a")
	reg.Flush("b")

	if got := testutil.ToFloat64(metrics.Emissions.WithLabelValues("c")); got != 2 {
		t.Errorf("emissions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.EmittedBytes.WithLabelValues("c")); got != 6 {
		t.Errorf("emitted bytes = %v, want 6", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveStreams); got != 1 {
		t.Errorf("active streams = %v, want 1", got)
	}
}

func TestRegistry_SendTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	sink := SinkFunc(func(ctx context.Context, ev Event) error {
		deadline, hasDeadline = ctx.Deadline()
		return nil
	})

	reg := newTestRegistry(t, sink, Config{Channel: "c", Interval: time.Hour, SendTimeout: time.Minute})

	before := time.Now()
	_ = reg.Write("s", "x")
	reg.Flush("s")

	if !hasDeadline {
		t.Fatal("exp sink context to carry a deadline")
	}
	if deadline.Before(before.Add(time.Minute)) {
		t.Errorf("deadline %v earlier than expected", deadline)
	}
}
