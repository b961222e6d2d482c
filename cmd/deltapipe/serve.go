package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/adamwoolhether/deltapipe/api"
	"github.com/adamwoolhether/deltapipe/hub"
	"github.com/adamwoolhether/deltapipe/stream"
	"github.com/adamwoolhether/deltapipe/web/middleware"
	"github.com/adamwoolhether/deltapipe/web/server"
)

func serveCmd(a *app) *cobra.Command {
	var (
		addrFlag    string
		stdinFlag   bool
		sessionFlag string
		ptyFlag     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stream API and websocket hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addrFlag
			}
			if ptyFlag {
				cfg.Stream = withPTY(cfg.Stream)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var stdin io.Reader
			if stdinFlag {
				stdin = cmd.InOrStdin()
			}

			return runServe(ctx, cfg, a.logger, stdin, sessionFlag)
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", ":8080", "Listen address")
	cmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Stream stdin into the session given by --session")
	cmd.Flags().StringVar(&sessionFlag, "session", "stdin", "Session receiving stdin")
	cmd.Flags().BoolVar(&ptyFlag, "pty", false, "Emit on the pty:data channel at terminal frame rate")

	return cmd
}

// withPTY switches cfg to the pty channel and frame rate, keeping the
// rest of the configured stream settings.
func withPTY(cfg stream.Config) stream.Config {
	pty := stream.PTYConfig()
	cfg.Channel = pty.Channel
	cfg.Interval = pty.Interval

	return cfg
}

type service struct {
	srv *server.Server
	reg *stream.Registry
	hub *hub.Hub
}

// newService wires the hub, registry and routes behind one server.
// Shutdown closes the registry before the hub so buffered output is
// broadcast before subscribers are dropped.
func newService(cfg Config, log *slog.Logger) (*service, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracer := otel.Tracer("github.com/adamwoolhether/deltapipe")

	hubOpts := []hub.Option{
		hub.WithLogger(log),
		hub.WithBufferSize(cfg.Hub.BufferSize),
		hub.WithWriteTimeout(cfg.Hub.WriteTimeout),
		hub.WithPingInterval(cfg.Hub.PingInterval),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		hubOpts = append(hubOpts, hub.WithCheckOrigin(middleware.CheckOrigin(cfg.Server.AllowedOrigins)))
	}
	h := hub.New(hubOpts...)

	reg, err := stream.New(h, cfg.Stream,
		stream.WithLogger(log),
		stream.WithTracer(tracer),
		stream.WithMetrics(stream.NewMetrics("deltapipe", promReg)),
	)
	if err != nil {
		return nil, fmt.Errorf("stream registry: %w", err)
	}

	routes := api.Routes(api.Config{
		Registry: reg,
		Hub:      h,
		Gatherer: promReg,
		Logger:   log,
		Tracer:   tracer,

		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := server.New(routes,
		server.WithHost(cfg.Server.Addr),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithIdleTimeout(cfg.Server.IdleTimeout),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithLogger(log),
		server.WithShutdownFunc(func(context.Context) error {
			reg.Close()
			return nil
		}),
		server.WithShutdownFunc(func(context.Context) error {
			return h.Close()
		}),
	)

	return &service{srv: srv, reg: reg, hub: h}, nil
}

func runServe(ctx context.Context, cfg Config, log *slog.Logger, stdin io.Reader, session string) error {
	svc, err := newService(cfg, log)
	if err != nil {
		return err
	}

	if stdin != nil {
		go func() {
			w := svc.reg.Writer(session)
			if _, err := io.Copy(w, stdin); err != nil {
				log.Warn("stdin copy stopped", "session", session, "error", err)
			}
			if err := w.Close(); err != nil {
				log.Debug("stdin stream close", "session", session, "error", err)
			}
		}()
	}

	log.Info("serving", "addr", svc.srv.Addr(), "channel", cfg.Stream.Channel, "interval", cfg.Stream.Interval.String())

	return svc.srv.Run(ctx)
}
