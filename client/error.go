package client

import (
	"errors"
	"fmt"
)

// maxErrBodySize caps how much of an unexpected response is kept.
const maxErrBodySize = 4 << 10

var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrAuthFailure          = errors.New("authentication failed")
)

// UnexpectedStatusError is returned when the server answers with a
// status other than the one the call expects.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}
