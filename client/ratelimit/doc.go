// Package ratelimit provides an [http.RoundTripper] that rate-limits
// outbound HTTP requests using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// # Usage
//
//	rt, err := ratelimit.NewRoundTripper(
//		ratelimit.Config{RPS: 20, Burst: 5},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// When tokens run out, requests wait until one is available or the
// request context ends.
package ratelimit
