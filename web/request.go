package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adamwoolhether/deltapipe/web/errs"
)

// DefaultMaxBodyBytes bounds the request bodies read by Decode.
const DefaultMaxBodyBytes = 2 << 20 // 2MiB

// Param extracts a path parameter by key, trimming surrounding spaces.
func Param(r *http.Request, key string) (string, error) {
	val := strings.TrimSpace(r.PathValue(key))
	if val == "" {
		return "", errs.NewFieldsError(key, fmt.Errorf("path param[%s] not found", key))
	}

	return val, nil
}

// Decode reads a JSON document of at most DefaultMaxBodyBytes from the
// request body into val, rejecting unknown fields, and then validates
// val against its declared tags.
func Decode[T any](r *http.Request, val *T) error {
	body := http.MaxBytesReader(nil, r.Body, DefaultMaxBodyBytes)

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.New(http.StatusBadRequest, errors.New("decode: empty body"))
		}
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			return errs.New(http.StatusRequestEntityTooLarge, fmt.Errorf("decode: %w", err))
		}
		return errs.New(http.StatusBadRequest, fmt.Errorf("decode: %w", err))
	}

	if err := Validate(val); err != nil {
		return err
	}

	return nil
}
