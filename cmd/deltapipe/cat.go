package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/deltapipe/throttle"
)

func catCmd(a *app) *cobra.Command {
	var intervalFlag time.Duration

	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Copy stdin to stdout in coalesced batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := a.cfg.Stream.Interval
			if cmd.Flags().Changed("interval") {
				interval = intervalFlag
			}
			return runCat(cmd.InOrStdin(), cmd.OutOrStdout(), interval, a.logger)
		},
	}
	cmd.Flags().DurationVar(&intervalFlag, "interval", throttle.DefaultInterval, "Throttle window")

	return cmd
}

// runCat copies in to out through a Throttler, flushing at EOF. Write
// errors on out stop the copy.
func runCat(in io.Reader, out io.Writer, interval time.Duration, log *slog.Logger) error {
	// Emissions are serialized, and the final Flush orders them before
	// writeErr is read.
	var writeErr error
	emit := func(content string) {
		if writeErr != nil {
			return
		}
		if _, err := io.WriteString(out, content); err != nil {
			writeErr = err
		}
	}

	th, err := throttle.New(emit, throttle.WithInterval(interval), throttle.WithLogger(log))
	if err != nil {
		return err
	}

	buf := make([]byte, 32<<10)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			th.AddDelta(string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			th.Flush()
			return fmt.Errorf("reading input: %w", err)
		}
	}
	th.Flush()

	if writeErr != nil {
		return fmt.Errorf("writing output: %w", writeErr)
	}

	return nil
}
