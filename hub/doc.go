// Package hub fans batched stream events out to websocket subscribers.
//
// A [Hub] is both the [stream.Sink] of a [stream.Registry] and the
// [http.Handler] subscribers connect to:
//
//	h := hub.New()
//	reg, _ := stream.New(h, stream.DefaultConfig())
//	mux.Handle("GET /v1/ws", h)
//
// Each Event is delivered as one JSON text message. Subscribers may
// pass ?session=<id> to receive a single stream.
package hub
