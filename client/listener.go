package client

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/adamwoolhether/httpplus/client/progress"
)

// Listener receives the lifecycle events of a single call.
//
// OnResponse and OnFailure are required; exactly one of them is invoked
// per submitted call. OnStart, when set, runs synchronously inside
// [Client.Enqueue] before the call is handed to the dispatcher.
// OnProgress, when set, receives upload progress (or download progress
// for response handlers that report it) strictly before the terminal
// event, in increasing percentage order.
//
// The response passed to OnResponse is only valid for the duration of
// the callback; its body is drained and closed afterwards.
type Listener struct {
	OnStart    func()
	OnProgress func(progress.Event)
	OnResponse func(*http.Response)
	OnFailure  func(error)
}

func (l Listener) validate() error {
	if l.OnResponse == nil {
		return fmt.Errorf("%w: listener OnResponse must not be nil", ErrInvalidArgument)
	}
	if l.OnFailure == nil {
		return fmt.Errorf("%w: listener OnFailure must not be nil", ErrInvalidArgument)
	}

	return nil
}

// ListenerFunc adapts a single completion function into a Listener.
// fn receives either a response or an error, never both.
func ListenerFunc(fn func(*http.Response, error)) Listener {
	return Listener{
		OnResponse: func(resp *http.Response) { fn(resp, nil) },
		OnFailure:  func(err error) { fn(nil, err) },
	}
}

// /////////////////////////////////////////////////////////////////

type callState int

const (
	stateActive callState = iota
	stateCanceled
	stateFinished
)

// guard serialises the hooks of one call. Progress is dropped once the
// call is cancelled or finished, and exactly one terminal hook fires.
type guard struct {
	mu          sync.Mutex
	l           Listener
	state       callState
	lastPercent int
}

func newGuard(l Listener) *guard {
	return &guard{l: l, lastPercent: -1}
}

func (g *guard) progress(e progress.Event) {
	if g.l.OnProgress == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// A rewound body restarts its own count; never report backwards.
	if g.state != stateActive || e.Percent <= g.lastPercent {
		return
	}
	g.lastPercent = e.Percent

	g.l.OnProgress(e)
}

func (g *guard) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateActive {
		g.state = stateCanceled
	}
}

// succeed delivers resp unless the call was cancelled, in which case the
// cancellation is reported as a failure. It reports whether OnResponse ran.
func (g *guard) succeed(resp *http.Response) bool {
	g.mu.Lock()
	state := g.state
	g.state = stateFinished
	g.mu.Unlock()

	switch state {
	case stateActive:
		g.l.OnResponse(resp)
		return true
	case stateCanceled:
		g.l.OnFailure(ErrCanceled)
	}

	return false
}

func (g *guard) fail(err error) {
	g.mu.Lock()
	state := g.state
	g.state = stateFinished
	g.mu.Unlock()

	if state != stateFinished {
		g.l.OnFailure(err)
	}
}
