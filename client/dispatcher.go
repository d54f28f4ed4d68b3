package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamwoolhether/httpplus/client/metrics"
	"github.com/adamwoolhether/httpplus/client/throttle"
)

// defaultMaxConcurrent bounds the calls a client runs at once.
const defaultMaxConcurrent = 64

// workFunc is the signature for the async part of a call.
type workFunc func(ctx context.Context) error

// dispatcher runs calls on their own goroutines, bounded by a semaphore
// and an optional rate gate. It is shared by a Client and its clones.
type dispatcher struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	sem      chan struct{}
	gate     *throttle.Gate
	metrics  *metrics.Metrics
	logger   *slog.Logger
	shutdown atomic.Bool
	running  map[*Call]struct{}
	errs     []error
}

// newDispatcher creates a dispatcher with the given concurrency limit.
// If maxConcurrent <= 0, concurrency is unlimited.
func newDispatcher(maxConcurrent int, gate *throttle.Gate, m *metrics.Metrics, logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		gate:    gate,
		metrics: m,
		logger:  logger,
		running: make(map[*Call]struct{}),
	}
	if maxConcurrent > 0 {
		d.sem = make(chan struct{}, maxConcurrent)
	}

	return d
}

// start launches fn for call in a new goroutine managed by the dispatcher.
func (d *dispatcher) start(ctx context.Context, call *Call, fn workFunc) {
	d.mu.Lock()
	d.running[call] = struct{}{}
	d.mu.Unlock()

	d.metrics.Started()
	began := time.Now()

	d.wg.Add(1)
	go func() {
		defer func() {
			call.cancel(nil)
			d.release(call, began)
			close(call.done)
			d.wg.Done()
		}()

		if d.sem != nil {
			select {
			case d.sem <- struct{}{}:
				defer func() {
					<-d.sem
				}()
			case <-ctx.Done():
				call.finish(annotate(ctx, ctx.Err()))
				return
			}
		}

		if d.shutdown.Load() {
			call.finish(ErrShutdown)
			return
		}

		if d.gate != nil {
			if err := d.gate.Wait(ctx, call.id); err != nil {
				call.finish(annotate(ctx, err))
				return
			}
		}

		call.finish(fn(ctx))
	}()
}

// release forgets call and records its outcome.
func (d *dispatcher) release(call *Call, began time.Time) {
	d.mu.Lock()
	delete(d.running, call)
	if call.err != nil {
		d.errs = append(d.errs, call.err)
	}
	d.mu.Unlock()

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(call.err, ErrCanceled):
		outcome = metrics.OutcomeCanceled
	case call.err != nil:
		outcome = metrics.OutcomeFailure
	}
	d.metrics.Finished(call.method, outcome, began)

	if call.err != nil {
		d.logger.Debug("call failed", "call", call.id, "method", call.method, "outcome", outcome, "error", call.err)
		return
	}
	d.logger.Debug("call completed", "call", call.id, "method", call.method, "took", time.Since(began).String())
}

// cancelTag cancels every running call whose tag equals tag.
func (d *dispatcher) cancelTag(tag any) int {
	if tag == nil {
		return 0
	}

	matched := d.tagged(tag)
	for _, call := range matched {
		call.Cancel()
	}

	return len(matched)
}

// tagged returns the running calls whose tag equals tag.
func (d *dispatcher) tagged(tag any) []*Call {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []*Call
	for call := range d.running {
		if sameTag(call.tag, tag) {
			matched = append(matched, call)
		}
	}

	return matched
}

// sameTag reports whether a and b are equal. Values that cannot be
// compared, such as slices or structs holding them, are never equal.
func sameTag(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()

	return a == b
}

// wait blocks until all calls complete, returning and clearing the
// errors recorded since the previous wait.
func (d *dispatcher) wait() error {
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	err := errors.Join(d.errs...)
	d.errs = nil

	return err
}

// stop prevents new work from executing.
func (d *dispatcher) stop() {
	d.shutdown.Store(true)
}

func (d *dispatcher) isShutdown() bool {
	return d.shutdown.Load()
}
