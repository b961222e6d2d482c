// Package errs defines errors that handlers return to the Errors
// middleware for translation into HTTP responses.
package errs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error is an error with the HTTP status it should be reported as. The
// cause stays reachable through Unwrap.
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
	FuncName string `json:"-"`
	FileName string `json:"-"`
	InnerErr bool   `json:"-"`
}

// New constructs an Error reported to the caller as-is.
func New(code int, err error) *Error {
	return newError(code, err, false)
}

// NewInternal constructs a 500 Error whose message is logged but not
// shown to the caller.
func NewInternal(err error) *Error {
	return newError(http.StatusInternalServerError, err, true)
}

func newError(code int, err error, internal bool) *Error {
	pc, filename, line, _ := runtime.Caller(2)

	return &Error{
		Code:     code,
		Message:  err.Error(),
		Err:      err,
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
		InnerErr: internal,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInternal returns true if the error is internal.
func (e *Error) IsInternal() bool {
	return e.InnerErr
}

// FieldError reports a problem with one request field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors is returned when request validation fails; the Errors
// middleware answers it with 422.
type FieldErrors []FieldError

// NewFieldsError creates a fields error for a single field.
func NewFieldsError(field string, err error) error {
	return FieldErrors{{Field: field, Err: err.Error()}}
}

// Error implements the error interface, returning a human-readable
// summary of all field errors.
func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

// MarshalJSON encodes the field errors under an "errors" key.
func (fe FieldErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Errors []FieldError `json:"errors"`
	}{Errors: []FieldError(fe)})
}

// Fields returns the fields that failed validation.
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string, len(fe))
	for _, fld := range fe {
		m[fld.Field] = fld.Err
	}
	return m
}
