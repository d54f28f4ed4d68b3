package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpplus/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	timeouts          *Timeouts
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	tracer            trace.Tracer
	registerer        prometheus.Registerer
	maxConcurrent     *int
}

// WithClient replaces the default [http.Client] used by the [Client].
// The given client is copied, never mutated.
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
// Connect timeouts are then left to the transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithTimeouts sets the default connect, write and read timeouts of the
// [Client]. A zero field disables that timeout.
func WithTimeouts(t Timeouts) Option {
	return func(c *options) error {
		if t.Connect < 0 || t.Write < 0 || t.Read < 0 {
			return errors.New("timeouts must not be negative")
		}
		c.timeouts = &t
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket admission of calls with the given
// calls per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithTracer records a span per call with the given tracer.
// A no-op tracer is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *options) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		c.registerer = reg
		return nil
	}
}

// WithMaxConcurrent bounds the number of calls running at once.
// If n <= 0, concurrency is unlimited. The default is 64.
func WithMaxConcurrent(n int) Option {
	return func(c *options) error {
		c.maxConcurrent = &n
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// CallOption is a functional option for [Client.Enqueue].
type CallOption func(*callOpts) error

type callOpts struct {
	tag      any
	expCode  int
	handler  ResponseHandler
	download *downloadTarget
}

type downloadTarget struct {
	dest string
	opts []DownloadOption
}

// WithTag attaches opaque caller metadata to the call, for
// [Client.CancelTag] and [Call.Tag].
func WithTag(tag any) CallOption {
	return func(opts *callOpts) error {
		opts.tag = tag
		return nil
	}
}

// WithExpectedStatus fails the call with an [UnexpectedStatusError]
// when the response status differs from code.
func WithExpectedStatus(code int) CallOption {
	return func(opts *callOpts) error {
		if code < 100 || code > 999 {
			return fmt.Errorf("%w: status code %d out of range", ErrInvalidArgument, code)
		}
		opts.expCode = code
		return nil
	}
}

// WithResponseHandler consumes the response before OnResponse runs.
// A handler error fails the call.
func WithResponseHandler(h ResponseHandler) CallOption {
	return func(opts *callOpts) error {
		if h == nil {
			return errors.New("response handler must not be nil")
		}
		opts.handler = h
		return nil
	}
}

// WithDownload streams a successful response body to dest instead of
// handing it to OnResponse unread. Download progress is reported to the
// listener's OnProgress. The response passed to OnResponse then has an
// exhausted body.
func WithDownload(dest string, optFns ...DownloadOption) CallOption {
	return func(opts *callOpts) error {
		if dest == "" {
			return fmt.Errorf("%w: download destination must not be empty", ErrInvalidArgument)
		}
		opts.download = &downloadTarget{dest: dest, opts: optFns}
		return nil
	}
}

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	responseBody any
	useJSONNum   bool
}

// WithDestination decodes the HTTP response body into bodyTemplate.
// bodyTemplate must be a pointer.
func WithDestination[T any](bodyTemplate *T) DoOption {
	return func(opts *doOpts) error {
		opts.responseBody = bodyTemplate

		return nil
	}
}

// WithJSONNumb tells the JSON decoder to use [json.Decoder.UseNumber],
// preserving number precision as [json.Number] instead of float64.
func WithJSONNumb() DoOption {
	return func(opts *doOpts) error {
		opts.useJSONNum = true

		return nil
	}
}
