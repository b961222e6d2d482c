// Package api binds a stream.Registry to HTTP routes.
package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/deltapipe/stream"
	"github.com/adamwoolhether/deltapipe/web/middleware"
	"github.com/adamwoolhether/deltapipe/web/mux"
)

// Config holds the dependencies of the routes. Registry is required;
// a nil Hub or Gatherer leaves its route unregistered.
type Config struct {
	Registry *stream.Registry
	Hub      http.Handler
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Tracer   trace.Tracer

	// AllowedOrigins enables CORS for browser producers. Empty means
	// same-origin only.
	AllowedOrigins []string
}

type route struct {
	method string
	path   string
	fn     mux.Handler
}

// Routes builds the HTTP handler for cfg.
func Routes(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	cors := len(cfg.AllowedOrigins) > 0

	mw := []mux.Middleware{middleware.Logger(log), middleware.Errors(log), middleware.Panics()}
	if cors {
		mw = append(mw, middleware.CORS(cfg.AllowedOrigins))
	}

	opts := []mux.Option{mux.WithLogger(log), mux.WithMiddleware(mw...)}
	if cfg.Tracer != nil {
		opts = append(opts, mux.WithTracer(cfg.Tracer))
	}
	app := mux.New(opts...)

	h := handlers{reg: cfg.Registry}

	routes := []route{
		{http.MethodGet, "/healthz", h.health},
		{http.MethodGet, "/v1/streams", h.streams},
		{http.MethodPost, "/v1/streams/{session}/deltas", h.postDelta},
		{http.MethodPost, "/v1/streams/{session}/flush", h.flush},
		{http.MethodDelete, "/v1/streams/{session}", h.end},
	}
	if cfg.Hub != nil {
		routes = append(routes, route{http.MethodGet, "/v1/ws", mux.Adapt(cfg.Hub)})
	}

	preflight := make(map[string]bool)
	for _, rt := range routes {
		app.Handle(rt.method, rt.path, rt.fn)

		// The CORS middleware answers preflights before this runs.
		if cors && !preflight[rt.path] {
			preflight[rt.path] = true
			app.Handle(http.MethodOptions, rt.path, h.noContent)
		}
	}

	if cfg.Gatherer != nil {
		app.HandleRaw(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return app
}
