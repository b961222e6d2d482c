package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/adamwoolhether/deltapipe/web/mux"
)

// Panics converts a panic in the handler chain into an error so the
// Errors middleware can answer with a 500. A panicking sink surfaces
// here when a request flushes its stream.
func Panics() mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(debug.Stack()))
					if id := sessionID(r); id != "" {
						err = fmt.Errorf("stream[%s]: %w", id, err)
					}
				}
			}()

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
