package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/httpplus/client/download"
	"github.com/adamwoolhether/httpplus/client/metrics"
	"github.com/adamwoolhether/httpplus/client/progress"
	"github.com/adamwoolhether/httpplus/client/throttle"
)

// Client wraps the std-lib *http.Client
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
//
// A Client is safe for concurrent use. [Client.Clone] and
// [Client.WithTimeouts] return independent copies that share the
// transport, connection pool and dispatcher of the original.
type Client struct {
	c        *http.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	timeouts Timeouts
	disp     *dispatcher
}

func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("httpplus"),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	hc := &http.Client{}
	if opts.client != nil {
		cpy := *opts.client
		hc = &cpy
	}
	client.c = hc

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.tracer != nil {
		client.tracer = opts.tracer
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	client.timeouts = Timeouts{}.Or(DefaultTimeout)
	if opts.timeouts != nil {
		client.timeouts = *opts.timeouts
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = defaultTransport()
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	client.c.Transport = transport

	if opts.registerer != nil {
		m, err := metrics.New(opts.registerer)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		client.metrics = m
	}

	var gate *throttle.Gate
	if opts.throttle != nil {
		g, err := throttle.New(opts.throttle.RPS, opts.throttle.Burst, client.logger)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		gate = g
	}

	maxConcurrent := defaultMaxConcurrent
	if opts.maxConcurrent != nil {
		maxConcurrent = *opts.maxConcurrent
	}
	client.disp = newDispatcher(maxConcurrent, gate, client.metrics, client.logger)

	return client, nil
}

// Clone returns a copy of c that may be reconfigured without affecting c
// or any other clone. The copy shares c's transport and dispatcher.
func (c *Client) Clone() *Client {
	cpy := *c
	hc := *c.c
	cpy.c = &hc

	return &cpy
}

// WithTimeouts returns a clone of c using t for its calls.
func (c *Client) WithTimeouts(t Timeouts) *Client {
	cpy := c.Clone()
	cpy.timeouts = t

	return cpy
}

// Timeouts returns the per-phase timeouts applied to c's calls.
func (c *Client) Timeouts() Timeouts { return c.timeouts }

// Logger returns the logger c reports to.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Metrics returns c's collectors, or nil when metrics are disabled.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// Enqueue submits req asynchronously and returns a handle to the call.
//
// The listener is validated and l.OnStart runs before Enqueue returns.
// Configuration errors are returned synchronously and nothing is sent;
// every other outcome is delivered to l exactly once.
func (c *Client) Enqueue(req *http.Request, l Listener, optFns ...CallOption) (*Call, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("%w: request must not be nil", ErrInvalidArgument)
	}

	if err := l.validate(); err != nil {
		return nil, err
	}

	var opts callOpts
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying call option: %w", err)
		}
	}

	if opts.download != nil {
		if opts.handler != nil {
			return nil, fmt.Errorf("%w: download and response handler are mutually exclusive", ErrInvalidArgument)
		}
		opts.handler = c.downloadHandler(*opts.download)
	}

	if c.disp.isShutdown() {
		return nil, ErrShutdown
	}

	ctx, cancel := context.WithCancelCause(req.Context())
	call := &Call{
		id:     uuid.NewString(),
		tag:    opts.tag,
		method: req.Method,
		done:   make(chan struct{}),
		cancel: cancel,
		guard:  newGuard(l),
	}

	if l.OnStart != nil {
		l.OnStart()
	}

	c.logger.Debug("call submitted", "call", call.id, "method", req.Method, "url", req.URL.Redacted())

	work := func(ctx context.Context) error {
		st := execState{id: call.id, tag: call.tag, cancel: call.cancel, guard: call.guard}

		return c.exec(req.WithContext(ctx), opts.expCode, st, func(resp *http.Response) error {
			if opts.handler != nil {
				if err := opts.handler(ctx, resp, call.guard.progress); err != nil {
					return err
				}
			}

			if !call.guard.succeed(resp) {
				return ErrCanceled
			}

			return nil
		})
	}

	c.disp.start(ctx, call, work)

	return call, nil
}

// CancelTag cancels every in-flight call submitted with [WithTag](tag)
// and reports how many were cancelled.
func (c *Client) CancelTag(tag any) int {
	return c.disp.cancelTag(tag)
}

// Wait blocks until every submitted call has finished and returns the
// errors of the calls that failed since the previous Wait, joined.
func (c *Client) Wait() error {
	return c.disp.wait()
}

// Shutdown stops the client from admitting new calls. Calls already
// running are unaffected; queued calls fail with [ErrShutdown].
func (c *Client) Shutdown() {
	c.disp.stop()
}

// Do will fire the request synchronously, and write response to the
// given dest object if any.
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return err
		}
	}

	doFunc := func(resp *http.Response) error {
		if settings.responseBody != nil {
			d := json.NewDecoder(resp.Body)

			if settings.useJSONNum {
				d.UseNumber()
			}

			if err := d.Decode(settings.responseBody); err != nil {
				return fmt.Errorf("decoding body: %w", err)
			}
		}

		return nil
	}

	ctx, cancel := context.WithCancelCause(req.Context())
	defer cancel(nil)

	return c.exec(req.WithContext(ctx), expCode, execState{id: uuid.NewString(), cancel: cancel}, doFunc)
}

// execState carries what exec needs from the call it serves.
type execState struct {
	id     string
	tag    any
	cancel context.CancelCauseFunc
	guard  *guard
}

// exec runs the request under the client's timeouts and tracing, and runs
// the injected function on success after validating the expected status
// code. An expCode of zero accepts any status.
func (c *Client) exec(req *http.Request, expCode int, st execState, fn execFn) (err error) {
	ctx, span := c.tracer.Start(req.Context(), "httpplus.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.Redacted()),
			attribute.String("httpplus.call_id", st.id),
		),
	)
	if st.tag != nil {
		span.SetAttributes(attribute.String("httpplus.tag", fmt.Sprint(st.tag)))
	}
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	write := newWatchdog(c.timeouts.Write, st.cancel, ErrWriteTimeout)
	read := newWatchdog(c.timeouts.Read, st.cancel, ErrReadTimeout)
	defer write.stop()
	defer read.stop()

	ctx = withConnectTimeout(ctx, c.timeouts.Connect)
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { write.kick() },
		WroteRequest: func(httptrace.WroteRequestInfo) {
			write.stop()
			read.kick()
		},
		GotFirstResponseByte: func() { read.stop() },
	})

	out := req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))
	if bodies := c.wrapRequestBody(out, st.guard, write); bodies != nil {
		stop := context.AfterFunc(ctx, bodies.abort)
		defer stop()
	}

	resp, err := c.c.Do(out)
	if err != nil {
		return fmt.Errorf("exec http do: %w", annotate(ctx, err))
	}
	resp.Body = &responseBody{ReadCloser: resp.Body, read: read, metrics: c.metrics}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	discardBody := true
	defer func() {
		if discardBody {
			if _, dErr := io.Copy(io.Discard, resp.Body); dErr != nil {
				c.logger.Error("failed to discard unused body", "call", st.id, "error", dErr)
			}
		}
		if cErr := resp.Body.Close(); cErr != nil {
			c.logger.Error("failed to close response body", "call", st.id, "error", cErr)
		}
	}()

	if expCode != 0 && resp.StatusCode != expCode {
		return statusError(resp)
	}

	if err := fn(resp); err != nil {
		discardBody = false
		if errors.Is(err, ErrCanceled) {
			return err
		}
		return fmt.Errorf("exec fn: %w", annotate(ctx, err))
	}

	return nil
}

// downloadHandler streams the response body to the target of d,
// reporting progress through the call's listener.
func (c *Client) downloadHandler(d downloadTarget) ResponseHandler {
	return func(ctx context.Context, resp *http.Response, report progress.Func) error {
		optFns := append([]DownloadOption{download.WithProgress(report)}, d.opts...)

		n, err := download.Handle(ctx, resp.Body, resp.ContentLength, d.dest, c.logger, optFns...)
		if err != nil {
			return fmt.Errorf("downloading to %s: %w", d.dest, err)
		}

		c.logger.Debug("download stored", "dest", d.dest, "bytes", n)

		return nil
	}
}

// wrapRequestBody decorates out's body, and any rewound copy of it, with
// the write watchdog, upload metrics and progress reporting. It returns
// the set of wrapped bodies, or nil when out has no body.
func (c *Client) wrapRequestBody(out *http.Request, g *guard, write *watchdog) *requestBodies {
	if out.Body == nil || out.Body == http.NoBody {
		return nil
	}

	bodies := new(requestBodies)
	wrap := func(rc io.ReadCloser) io.ReadCloser {
		if g != nil && g.l.OnProgress != nil {
			rc = progress.NewReader(rc, out.ContentLength, g.progress)
		}

		b := &requestBody{ReadCloser: rc, write: write, metrics: c.metrics}
		bodies.add(b)

		return b
	}

	out.Body = wrap(out.Body)

	if getBody := out.GetBody; getBody != nil {
		out.GetBody = func() (io.ReadCloser, error) {
			rc, err := getBody()
			if err != nil {
				return nil, err
			}

			return wrap(rc), nil
		}
	}

	return bodies
}

// annotate prefixes err with the cause a call was cancelled with, when
// that cause is one of the client's own.
func annotate(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(err, cause) {
		return err
	}

	for _, known := range []error{ErrCanceled, ErrWriteTimeout, ErrReadTimeout, ErrShutdown} {
		if errors.Is(cause, known) {
			return fmt.Errorf("%w: %w", cause, err)
		}
	}

	return err
}
