package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server wraps an [http.Server] with context-driven graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []shutdownFunc
	tlsCertFile     string
	tlsKeyFile      string
}

// New creates a Server for the given handler. A default host of ":8080",
// sensible timeouts, and the default slog logger are used unless
// overridden via options.
func New(handler http.Handler, opts ...Option) *Server {
	o := options{
		host:            ":8080",
		readTimeout:     5 * time.Second,
		idleTimeout:     120 * time.Second,
		shutdownTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	// No WriteTimeout: websocket subscribers hold their response open.
	srv := http.Server{
		Addr:              o.host,
		Handler:           handler,
		ReadHeaderTimeout: o.readTimeout,
		IdleTimeout:       o.idleTimeout,
		ErrorLog:          slog.NewLogLogger(o.logger.Handler(), slog.LevelWarn),
	}

	return &Server{
		srv:             &srv,
		shutdownTimeout: o.shutdownTimeout,
		logger:          o.logger,
		shutdownFuncs:   o.shutdownFuncs,
		tlsCertFile:     o.tlsCertFile,
		tlsKeyFile:      o.tlsKeyFile,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully. It returns nil on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErrs := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", ln.Addr().String())

		if s.tlsCertFile != "" {
			serverErrs <- s.srv.ServeTLS(ln, s.tlsCertFile, s.tlsKeyFile)
		} else {
			serverErrs <- s.srv.Serve(ln)
		}
	}()

	select {
	case err := <-serverErrs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown started", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}

		s.logger.Info("shutdown complete")

		return nil
	}
}

// Shutdown runs the registered shutdown functions in order, then drains
// in-flight requests. Callers should set a deadline on ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, fn := range s.shutdownFuncs {
		if err := fn(ctx); err != nil {
			s.logger.Error("shutdown func", "error", err)
		}
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		s.srv.Close()
		return fmt.Errorf("server didn't stop gracefully: %w", err)
	}

	return nil
}
