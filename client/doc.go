// Package client is a typed HTTP client for a deltapipe server.
//
// # Building a Client
//
//	c, err := client.New("http://localhost:8080",
//		client.WithTimeout(10*time.Second),
//		client.WithRateLimit(20, 5),
//	)
//
// # Pushing Output
//
//	err = c.PostDelta(ctx, "sess-1", "partial ", false)
//	err = c.PostDelta(ctx, "sess-1", "output", true)
//	err = c.End(ctx, "sess-1")
//
// A [Client] is also a [stream.Sink], so a local [stream.Registry] can
// coalesce chatty producers before anything reaches the network:
//
//	reg, err := stream.New(c, stream.DefaultConfig())
//
// Status codes other than the one an endpoint documents are reported as
// [*UnexpectedStatusError]; 401 and 403 also match [ErrAuthFailure].
package client
