package client

import (
	"context"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout is applied to each of the connect, write and read
// timeouts of a [Client] built without [WithTimeouts].
const DefaultTimeout = 10 * time.Second

// Timeouts holds the per-phase timeouts of a call. A zero field disables
// that timeout.
//
// Connect bounds dialing a new connection. It only applies when the
// client uses its default transport; custom transports own their dialing.
// Write bounds how long the request body may stall between reads.
// Read bounds the wait for response headers once the request is sent,
// and each stall while reading the response body.
type Timeouts struct {
	Connect time.Duration `json:"connect"`
	Write   time.Duration `json:"write"`
	Read    time.Duration `json:"read"`
}

// Or returns t with every non-positive field replaced by def.
func (t Timeouts) Or(def time.Duration) Timeouts {
	if t.Connect <= 0 {
		t.Connect = def
	}
	if t.Write <= 0 {
		t.Write = def
	}
	if t.Read <= 0 {
		t.Read = def
	}

	return t
}

// /////////////////////////////////////////////////////////////////

type connectKey struct{}

// withConnectTimeout stores d for the dialer of the default transport.
func withConnectTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}

	return context.WithValue(ctx, connectKey{}, d)
}

// defaultTransport clones http.DefaultTransport, replacing its dialer with
// one honouring the connect timeout carried by each request context.
// Clones of a Client share this transport and its connection pool.
func defaultTransport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{KeepAlive: 30 * time.Second}
		if timeout, ok := ctx.Value(connectKey{}).(time.Duration); ok {
			d.Timeout = timeout
		}

		return d.DialContext(ctx, network, addr)
	}

	return tr
}

// /////////////////////////////////////////////////////////////////

// watchdog cancels a call when it is armed for longer than d.
// A nil watchdog is a no-op, standing in for a disabled timeout.
type watchdog struct {
	d     time.Duration
	timer *time.Timer
}

func newWatchdog(d time.Duration, cancel context.CancelCauseFunc, cause error) *watchdog {
	if d <= 0 {
		return nil
	}

	t := time.AfterFunc(d, func() { cancel(cause) })
	t.Stop()

	return &watchdog{d: d, timer: t}
}

// kick (re)starts the countdown.
func (w *watchdog) kick() {
	if w == nil {
		return
	}
	w.timer.Reset(w.d)
}

func (w *watchdog) stop() {
	if w == nil {
		return
	}
	w.timer.Stop()
}
