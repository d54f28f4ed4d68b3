package client

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code. This prevents
// unbounded memory usage when a large response arrives with a
// wrong status.
const maxErrBodySize = 4 << 10 // 4KB

// execFn represents a func to operate on a response.
type execFn func(response *http.Response) error

var (
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")

	// ErrInvalidArgument marks a caller configuration error, such as a
	// missing URL or file attachment. It is always returned synchronously,
	// before anything reaches the network.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCanceled is the cause attached to a call cancelled through
	// [Call.Cancel] or [Client.CancelTag].
	ErrCanceled = errors.New("call canceled")
	// ErrWriteTimeout is the cause attached to a call whose request body
	// stalled for longer than the write timeout.
	ErrWriteTimeout = errors.New("write timeout")
	// ErrReadTimeout is the cause attached to a call whose response stalled
	// for longer than the read timeout.
	ErrReadTimeout = errors.New("read timeout")
	// ErrShutdown is returned for calls admitted after [Client.Shutdown].
	ErrShutdown = errors.New("client shut down")
)

// UnexpectedStatusError is returned when the HTTP response status code
// does not match the expected value.
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

// statusError reads a capped portion of resp's body and builds the
// matching *UnexpectedStatusError.
func statusError(resp *http.Response) *UnexpectedStatusError {
	b, err := readCapped(resp.Body)
	if err != nil {
		b = []byte("unable to read body")
	}

	sErr := ErrUnexpectedStatusCode
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sErr = fmt.Errorf("%w: %w", ErrAuthFailure, ErrUnexpectedStatusCode)
	}

	return &UnexpectedStatusError{
		StatusCode: resp.StatusCode,
		Body:       string(b),
		Err:        sErr,
	}
}
