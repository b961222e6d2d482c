package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adamwoolhether/deltapipe/web/errs"
	"github.com/adamwoolhether/deltapipe/web/middleware"
	"github.com/adamwoolhether/deltapipe/web/mux"
)

var discard = slog.New(slog.DiscardHandler)

func okHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(http.StatusOK)
	return nil
}

func serve(t *testing.T, h mux.Handler, r *http.Request) (*httptest.ResponseRecorder, error) {
	t.Helper()

	w := httptest.NewRecorder()
	err := h(r.Context(), w, r)

	return w, err
}

func TestErrors(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		expCode int
		expBody string
	}{
		{name: "No error", expCode: http.StatusOK},
		{
			name:    "App error",
			err:     errs.New(http.StatusNotFound, errors.New("stream[s1] not found")),
			expCode: http.StatusNotFound,
			expBody: `{"code":404,"message":"stream[s1] not found"}`,
		},
		{
			name:    "Internal error is obscured",
			err:     errs.NewInternal(errors.New("sink exploded")),
			expCode: http.StatusInternalServerError,
			expBody: `{"code":500,"message":"Internal Server Error"}`,
		},
		{
			name:    "Plain error is obscured",
			err:     errors.New("leaky detail"),
			expCode: http.StatusInternalServerError,
			expBody: `{"code":500,"message":"Internal Server Error"}`,
		},
		{
			name:    "Field errors",
			err:     errs.NewFieldsError("session", errors.New("session is required")),
			expCode: http.StatusUnprocessableEntity,
			expBody: `{"errors":[{"field":"session","error":"session is required"}]}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := middleware.Errors(discard)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				if tc.err != nil {
					return tc.err
				}
				return okHandler(ctx, w, r)
			})

			w, err := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
			if err != nil {
				t.Fatalf("middleware must absorb errors, got: %v", err)
			}
			if w.Code != tc.expCode {
				t.Errorf("status = %d, want %d", w.Code, tc.expCode)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tc.expBody {
				t.Errorf("body = %s, want %s", got, tc.expBody)
			}
		})
	}
}

func TestPanics(t *testing.T) {
	h := middleware.Panics()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("something broke")
	})

	_, err := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if err == nil {
		t.Fatal("exp error from recovered panic")
	}
	for _, want := range []string{"PANIC", "something broke", "TRACE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should contain %q, got: %s", want, err)
		}
	}

	h = middleware.Errors(discard)(middleware.Panics()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("again")
	}))
	w, err := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	app := mux.New(mux.WithLogger(discard), mux.WithMiddleware(middleware.Logger(log)))
	app.Post("/v1/streams/{session}/flush", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		mux.SetStatusCode(ctx, http.StatusNoContent)
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	r := httptest.NewRequest(http.MethodPost, "/v1/streams/s1/flush?x=1", nil)
	app.ServeHTTP(httptest.NewRecorder(), r)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %s", len(lines), buf.String())
	}

	var started, completed map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &started); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &completed); err != nil {
		t.Fatal(err)
	}

	if started["msg"] != "request started" || started["level"] != "DEBUG" {
		t.Errorf("started = %v", started)
	}
	if completed["msg"] != "request completed" || completed["level"] != "INFO" {
		t.Errorf("completed = %v", completed)
	}
	if completed["path"] != "/v1/streams/s1/flush?x=1" {
		t.Errorf("path = %v", completed["path"])
	}
	if completed["statusCode"] != float64(http.StatusNoContent) {
		t.Errorf("statusCode = %v, want %d", completed["statusCode"], http.StatusNoContent)
	}
	if started["trace_id"] == "" || started["trace_id"] != completed["trace_id"] {
		t.Errorf("trace ids = %v / %v, want one non-empty id", started["trace_id"], completed["trace_id"])
	}
	if started["session"] != "s1" || completed["session"] != "s1" {
		t.Errorf("session = %v / %v, want s1", started["session"], completed["session"])
	}
}

func TestErrors_LogLevel(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expLevel string
	}{
		{name: "Client error", err: errs.New(http.StatusTooManyRequests, errors.New("too many streams")), expLevel: "WARN"},
		{name: "Server error", err: errs.NewInternal(errors.New("sink exploded")), expLevel: "ERROR"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))

			h := middleware.Errors(log)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				return tc.err
			})

			r := httptest.NewRequest(http.MethodPost, "/v1/streams/s1/deltas", nil)
			r.SetPathValue("session", " s1 ")
			if _, err := serve(t, h, r); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if line["level"] != tc.expLevel {
				t.Errorf("level = %v, want %s", line["level"], tc.expLevel)
			}
			if line["session"] != "s1" {
				t.Errorf("session = %v, want s1", line["session"])
			}
		})
	}
}

func TestPanics_NamesStream(t *testing.T) {
	h := middleware.Panics()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("sink exploded")
	})

	r := httptest.NewRequest(http.MethodPost, "/v1/streams/s1/flush", nil)
	r.SetPathValue("session", "s1")

	_, err := serve(t, h, r)
	if err == nil || !strings.HasPrefix(err.Error(), "stream[s1]: PANIC [sink exploded]") {
		t.Errorf("err = %v, want it prefixed with the stream", err)
	}
}

func TestCORS(t *testing.T) {
	testCases := []struct {
		name        string
		method      string
		origin      string
		expCode     int
		expAllow    string
		expReachesH bool
	}{
		{name: "No origin", method: http.MethodGet, expCode: http.StatusOK, expReachesH: true},
		{name: "Exact origin", method: http.MethodGet, origin: "https://app.example.com", expCode: http.StatusOK, expAllow: "https://app.example.com", expReachesH: true},
		{name: "Wildcard origin", method: http.MethodPost, origin: "https://tty.dev.example.com", expCode: http.StatusOK, expAllow: "https://tty.dev.example.com", expReachesH: true},
		{name: "Preflight", method: http.MethodOptions, origin: "https://app.example.com", expCode: http.StatusNoContent, expAllow: "https://app.example.com"},
		{name: "Rejected origin", method: http.MethodGet, origin: "https://evil.test", expCode: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			h := middleware.Errors(discard)(middleware.CORS([]string{"https://app.example.com", "https://*.dev.example.com"})(
				func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					reached = true
					return okHandler(ctx, w, r)
				}))

			r := httptest.NewRequest(tc.method, "/v1/streams", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}

			w, err := serve(t, h, r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w.Code != tc.expCode {
				t.Errorf("status = %d, want %d", w.Code, tc.expCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.expAllow {
				t.Errorf("allow origin = %q, want %q", got, tc.expAllow)
			}
			if reached != tc.expReachesH {
				t.Errorf("handler reached = %t, want %t", reached, tc.expReachesH)
			}
		})
	}
}

func TestOriginMatcher(t *testing.T) {
	testCases := []struct {
		name    string
		allowed []string
		origin  string
		exp     bool
	}{
		{name: "Allow all", allowed: []string{"*"}, origin: "https://any.test", exp: true},
		{name: "Comma separated", allowed: []string{"https://a.test, https://b.test"}, origin: "https://b.test", exp: true},
		{name: "Pattern", allowed: []string{"http://localhost:*"}, origin: "http://localhost:5173", exp: true},
		{name: "Pattern miss", allowed: []string{"https://*.example.com"}, origin: "https://example.com", exp: false},
		{name: "Empty list", origin: "https://a.test", exp: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := middleware.OriginMatcher(tc.allowed)(tc.origin); got != tc.exp {
				t.Errorf("match(%q) = %t, want %t", tc.origin, got, tc.exp)
			}
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	check := middleware.CheckOrigin([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
	if !check(r) {
		t.Error("a request without Origin must be accepted")
	}

	r.Header.Set("Origin", "https://evil.test")
	if check(r) {
		t.Error("unlisted origin must be rejected")
	}
}
