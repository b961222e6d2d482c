package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/deltapipe/stream"
	"github.com/adamwoolhether/deltapipe/web"
	"github.com/adamwoolhether/deltapipe/web/errs"
)

// MaxDeltaBytes bounds the data of a single DeltaRequest.
const MaxDeltaBytes = 1 << 20

// DeltaRequest is the body accepted when appending to a stream.
type DeltaRequest struct {
	Data  string `json:"data"`
	Flush bool   `json:"flush"`
}

type handlers struct {
	reg *stream.Registry
}

func (h handlers) health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status := struct {
		Status string `json:"status"`
	}{
		Status: "ok",
	}

	return web.RespondJSON(ctx, w, http.StatusOK, status)
}

func (h handlers) streams(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.RespondJSON(ctx, w, http.StatusOK, h.reg.Sessions())
}

func (h handlers) postDelta(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := web.Param(r, "session")
	if err != nil {
		return err
	}

	var req DeltaRequest
	if err := web.Decode(r, &req); err != nil {
		return err
	}
	if len(req.Data) > MaxDeltaBytes {
		return errs.NewFieldsError("data", fmt.Errorf("data[%d bytes] exceeds %d bytes", len(req.Data), MaxDeltaBytes))
	}

	if err := h.reg.Write(id, req.Data); err != nil {
		return registryError(err)
	}
	if req.Flush {
		h.reg.Flush(id)
	}

	return web.RespondJSON(ctx, w, http.StatusAccepted, nil)
}

func (h handlers) flush(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := web.Param(r, "session")
	if err != nil {
		return err
	}

	if !h.reg.Flush(id) {
		return errs.New(http.StatusNotFound, fmt.Errorf("stream[%s] not found", id))
	}

	return web.RespondJSON(ctx, w, http.StatusNoContent, nil)
}

func (h handlers) end(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := web.Param(r, "session")
	if err != nil {
		return err
	}

	if !h.reg.End(id) {
		return errs.New(http.StatusNotFound, fmt.Errorf("stream[%s] not found", id))
	}

	return web.RespondJSON(ctx, w, http.StatusNoContent, nil)
}

func (h handlers) noContent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.RespondJSON(ctx, w, http.StatusNoContent, nil)
}

func registryError(err error) error {
	switch {
	case errors.Is(err, stream.ErrStreamIDRequired):
		return errs.New(http.StatusBadRequest, err)
	case errors.Is(err, stream.ErrTooManyStreams):
		return errs.New(http.StatusTooManyRequests, err)
	case errors.Is(err, stream.ErrClosed):
		return errs.New(http.StatusServiceUnavailable, err)
	default:
		return errs.NewInternal(err)
	}
}
