// Package middleware holds the request middleware shared by every route.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adamwoolhether/deltapipe/web/mux"
)

// Logger logs the start and completion of every request. Requests
// addressing a stream also carry its session ID and the body size.
func Logger(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := mux.GetValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			attrs := []any{"trace_id", v.TraceID, "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr}
			if id := sessionID(r); id != "" {
				attrs = append(attrs, "session", id)
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, "bytes", r.ContentLength)
			}

			log.Debug("request started", attrs...)

			err := handler(ctx, w, r)

			log.Info("request completed", append(attrs, "statusCode", v.StatusCode, "since", time.Since(v.Now).String())...)

			return err
		}

		return h
	}

	return m
}

// sessionID is the stream a request addresses, trimmed the way the
// registry trims it. Empty for routes without a session.
func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("session"))
}
