// Package stream batches the output of many independent streams, such
// as agent sessions or terminal instances, and delivers each batch to a
// [Sink] as an [Event].
//
// Every stream gets its own [throttle.Throttler], created on the first
// [Registry.Write] for its session ID and discarded by [Registry.End]
// or [Registry.Close]. Streams never share buffers or timers.
//
//	reg, err := stream.New(sink, stream.PTYConfig(),
//		stream.WithMetrics(stream.NewMetrics("deltapipe", prometheus.DefaultRegisterer)),
//	)
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	w := reg.Writer(sessionID)
//	_, err = io.Copy(w, ptyOutput)
//	w.Close()
//
// A Sink returning [ErrSinkClosed] signals that its destination is
// gone; such batches are dropped quietly. Other Sink errors are counted
// and logged at most once per second.
package stream
