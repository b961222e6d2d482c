package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/adamwoolhether/deltapipe/web"
	"github.com/adamwoolhether/deltapipe/web/errs"
	"github.com/adamwoolhether/deltapipe/web/mux"
)

// Errors handles errors coming out of the call chain. Client errors,
// such as a producer past the stream limit, log at warn level.
func Errors(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			if fieldErr, ok := errors.AsType[errs.FieldErrors](err); ok {
				return web.RespondJSON(ctx, w, http.StatusUnprocessableEntity, fieldErr)
			}

			appErr, ok := errors.AsType[*errs.Error](err)
			if !ok { // obscure anything that escaped without a status
				appErr = errs.NewInternal(err)
			}

			reqLog := log.With("trace_id", mux.GetTraceID(ctx))
			if id := sessionID(r); id != "" {
				reqLog = reqLog.With("session", id)
			}

			level := slog.LevelError
			if appErr.Code < http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			reqLog.Log(ctx, level, err.Error(), "status", appErr.Code, "source_err_file", path.Base(appErr.FileName), "source_err_func", path.Base(appErr.FuncName))

			if appErr.InnerErr {
				appErr.Message = http.StatusText(appErr.Code)
			}

			return web.RespondJSON(ctx, w, appErr.Code, appErr)
		}

		return h
	}

	return m
}
