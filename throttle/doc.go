// Package throttle coalesces frequently arriving text deltas into
// batches, reducing how often a downstream consumer is updated.
//
// # Usage
//
// Create a Throttler with the function that receives each batch:
//
//	t, err := throttle.New(func(content string) {
//		conn.Send(content)
//	}, throttle.WithInterval(16*time.Millisecond))
//
// Feed it fragments as they arrive and flush at the end of the stream:
//
//	for fragment := range fragments {
//		t.AddDelta(fragment)
//	}
//	t.Flush()
//
// The first AddDelta of a cycle schedules a flush after the interval.
// Whichever comes first, the timer or an explicit [Throttler.Flush],
// emits the accumulated content exactly once and starts a new cycle.
// An empty buffer never produces an emission.
//
// The emit function runs on the timer's goroutine for timed flushes
// and on the caller's goroutine for explicit ones. Emissions never
// overlap and arrive in order. A panic in emit is not recovered.
package throttle
