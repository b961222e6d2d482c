// Command deltapipe batches streamed output. It can coalesce stdin
// locally, serve the HTTP and websocket API, or push stdin to a server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// app holds state shared by every subcommand once flags are parsed.
type app struct {
	cfg    Config
	logger *slog.Logger
}

func main() {
	if err := rootCmd(os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(logOut io.Writer) *cobra.Command {
	var (
		a          app
		configFlag string
		levelFlag  string
	)

	root := &cobra.Command{
		Use:     "deltapipe",
		Short:   "deltapipe: coalesce streamed output into batches",
		Long:    "Buffers rapid output fragments and emits them at most once per interval, locally or over HTTP.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configFlag)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = levelFlag
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(logOut, cfg.Log)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logger
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a yaml config file")
	root.PersistentFlags().StringVar(&levelFlag, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		catCmd(&a),
		serveCmd(&a),
		pushCmd(&a),
	)

	return root
}

func newLogger(w io.Writer, cfg LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("service", "deltapipe"), nil
}
