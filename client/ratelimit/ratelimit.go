package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("rate limit context ended")
)

// Config defines the Requests Per Second and Burst of a limiter.
type Config struct {
	RPS   int
	Burst int
}

// Validate reports whether both values are positive.
func (c Config) Validate() error {
	if c.RPS <= 0 || c.Burst <= 0 {
		return fmt.Errorf("rps[%d] and burst[%d] %w", c.RPS, c.Burst, ErrMustNotBeZero)
	}
	return nil
}

// roundTripper is an http.RoundTripper holding outbound calls back
// with a token bucket.
type roundTripper struct {
	limiter *rate.Limiter
	cfg     Config
	next    http.RoundTripper
	logFn   func() *slog.Logger
}

// NewRoundTripper returns an http.RoundTripper that waits for a token
// before passing each request to next. logFn is resolved at request
// time; when it returns nil, waits are not logged.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	rt := roundTripper{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		next:    next,
		logFn:   logFn,
	}

	return &rt, nil
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	// Reserve rather than Allow so a logged wait does not cost a token.
	res := rt.limiter.Reserve()
	if !res.OK() {
		return nil, fmt.Errorf("%w: burst %d exceeded", ErrWaitingFailed, rt.cfg.Burst)
	}

	if delay := res.Delay(); delay > 0 {
		if logger := rt.logFn(); logger != nil {
			logger.Debug("rate limit wait", "delay", delay.String(), "rate", rt.cfg.RPS, "burst", rt.cfg.Burst, "path", r.URL.Path)
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			res.Cancel()
			return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, ctx.Err())
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return rt.next.RoundTrip(r)
}
