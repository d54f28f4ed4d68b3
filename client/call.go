package client

import (
	"context"
	"net/http"

	"github.com/adamwoolhether/httpplus/client/progress"
)

// Call represents an in-flight or completed asynchronous call.
// The caller owns the handle; the client forgets it once the call
// reaches its terminal event.
type Call struct {
	id     string
	tag    any
	method string
	done   chan struct{}
	err    error
	cancel context.CancelCauseFunc
	guard  *guard
}

// ID returns the unique identifier of the call, as used in logs and spans.
func (c *Call) ID() string { return c.id }

// Tag returns the opaque value the call was submitted with.
func (c *Call) Tag() any { return c.tag }

// Done returns a channel that is closed after the call's terminal event
// has been delivered.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err blocks until the call completes and returns its error.
func (c *Call) Err() error {
	<-c.done
	return c.err
}

// Cancel cancels the call. No progress or response is delivered after
// Cancel returns; the listener receives a failure wrapping [ErrCanceled]
// unless the call had already finished.
func (c *Call) Cancel() {
	c.guard.cancel()
	c.cancel(ErrCanceled)
}

// finish records err as the call's result and delivers it to the
// listener if no terminal event has fired yet.
func (c *Call) finish(err error) {
	c.err = err
	if err != nil {
		c.guard.fail(err)
	}
}

// ResponseHandler consumes a response inside a call, before the
// listener's OnResponse. ctx ends with the call and report forwards
// progress to the listener.
type ResponseHandler func(ctx context.Context, resp *http.Response, report progress.Func) error
