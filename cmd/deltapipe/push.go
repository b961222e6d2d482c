package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/deltapipe/client"
	"github.com/adamwoolhether/deltapipe/stream"
)

func pushCmd(a *app) *cobra.Command {
	var (
		urlFlag     string
		sessionFlag string
		rpsFlag     int
		burstFlag   int
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push stdin to a deltapipe server in coalesced batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Push
			if cmd.Flags().Changed("url") {
				cfg.URL = urlFlag
			}
			if cmd.Flags().Changed("rps") {
				cfg.RPS = rpsFlag
			}
			if cmd.Flags().Changed("burst") {
				cfg.Burst = burstFlag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("pushing", "url", cfg.URL, "session", sessionFlag)

			return runPush(ctx, cfg, a.cfg.Stream, a.logger, cmd.InOrStdin(), sessionFlag)
		},
	}
	cmd.Flags().StringVar(&urlFlag, "url", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVar(&sessionFlag, "session", envOr("DELTAPIPE_SESSION", uuid.NewString()), "Remote session id")
	cmd.Flags().IntVar(&rpsFlag, "rps", 20, "Requests per second")
	cmd.Flags().IntVar(&burstFlag, "burst", 5, "Request burst")

	return cmd
}

// runPush coalesces in locally and forwards each batch to the server,
// ending the remote stream once in is drained. The first batch the
// server rejects is reported once in has been drained.
func runPush(ctx context.Context, cfg PushConfig, streamCfg stream.Config, log *slog.Logger, in io.Reader, session string) error {
	c, err := client.New(cfg.URL,
		client.WithTimeout(cfg.Timeout),
		client.WithRateLimit(cfg.RPS, cfg.Burst),
		client.WithUserAgent("deltapipe/"+version),
		client.WithLogger(log),
	)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		attempts int
		sendErr  error
	)
	sink := stream.SinkFunc(func(ctx context.Context, ev stream.Event) error {
		err := c.Send(ctx, ev)

		mu.Lock()
		defer mu.Unlock()
		attempts++
		if err != nil && sendErr == nil && !errors.Is(err, stream.ErrSinkClosed) {
			sendErr = fmt.Errorf("pushing batch %d: %w", ev.Seq, err)
		}

		return err
	})

	reg, err := stream.New(sink, streamCfg, stream.WithLogger(log))
	if err != nil {
		return err
	}
	defer reg.Close()

	w := reg.Writer(session)

	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(w, in)
		copyErr <- err
	}()

	select {
	case err = <-copyErr:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if cerr := w.Close(); cerr != nil && !errors.Is(cerr, stream.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	reg.Close() // a copy still in flight now fails instead of reopening the stream

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading input: %w", err)
	}

	mu.Lock()
	pushed, pushErr := attempts > 0, sendErr
	mu.Unlock()

	endErr := c.End(context.WithoutCancel(ctx), session)
	if statusErr, ok := errors.AsType[*client.UnexpectedStatusError](endErr); ok && statusErr.StatusCode == http.StatusNotFound {
		// The server never opened the stream: either nothing was pushed
		// or every batch was rejected, which pushErr already reports.
		if !pushed || pushErr != nil {
			endErr = nil
		}
	}
	if endErr != nil {
		endErr = fmt.Errorf("ending remote stream: %w", endErr)
	}

	return errors.Join(pushErr, endErr)
}
