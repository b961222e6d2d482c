package middleware

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/adamwoolhether/deltapipe/web"
	"github.com/adamwoolhether/deltapipe/web/errs"
	"github.com/adamwoolhether/deltapipe/web/mux"
)

var corsHeaders = strings.Join([]string{"Accept", "Authorization", "Content-Type"}, ", ")

// CORS answers requests carrying an Origin header from allowedOrigins,
// including OPTIONS preflights, and rejects other origins with a 403.
// Requests without an Origin header pass through untouched.
func CORS(allowedOrigins []string) mux.Middleware {
	allowed := OriginMatcher(allowedOrigins)

	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return handler(ctx, w, r)
			}

			if !allowed(origin) {
				return errs.New(http.StatusForbidden, fmt.Errorf("origin[%s] not allowed", origin))
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions {
				return web.RespondJSON(ctx, w, http.StatusNoContent, nil)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// CheckOrigin adapts OriginMatcher to a websocket upgrader check. A
// request without an Origin header is not a browser and is accepted.
func CheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := OriginMatcher(allowedOrigins)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed(origin)
	}
}

// OriginMatcher reports whether an origin is allowed. Entries may be
// "*", an exact origin, or a path.Match pattern such as
// "https://*.example.com". Comma separated entries are split.
func OriginMatcher(allowedOrigins []string) func(origin string) bool {
	exact := make(map[string]bool)
	var patterns []string

	for _, entry := range allowedOrigins {
		for o := range strings.SplitSeq(entry, ",") {
			o = strings.TrimSpace(o)
			switch {
			case o == "":
			case strings.Contains(o, "*"):
				patterns = append(patterns, o)
			default:
				exact[o] = true
			}
		}
	}

	allowAll := false
	for _, p := range patterns {
		if p == "*" {
			allowAll = true
		}
	}

	return func(origin string) bool {
		if allowAll || exact[origin] {
			return true
		}
		for _, p := range patterns {
			if ok, err := path.Match(p, origin); ok && err == nil {
				return true
			}
		}
		return false
	}
}
