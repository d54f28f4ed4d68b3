package builder

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/adamwoolhether/httpplus/client"
)

// DefaultTransferTimeout replaces every non-positive timeout override of
// upload and download builders.
const DefaultTransferTimeout = 30 * time.Minute

// Request is a validated request ready for submission. It is immutable:
// every [Request.Enqueue] sends the same request with a fresh body.
type Request struct {
	client *client.Client
	req    *http.Request
	opts   []client.CallOption
}

// Client returns the client the request is submitted to. For upload and
// download requests it is a clone carrying the request's timeouts.
func (r *Request) Client() *client.Client { return r.client }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.req.Method }

// URL returns a copy of the target URL, query included.
func (r *Request) URL() *url.URL {
	u := *r.req.URL
	return &u
}

// Header returns a copy of the request headers.
func (r *Request) Header() http.Header { return r.req.Header.Clone() }

// ContentLength returns the exact length of the body, or zero when the
// request has none.
func (r *Request) ContentLength() int64 { return r.req.ContentLength }

// Enqueue submits the request asynchronously, see [client.Client.Enqueue].
func (r *Request) Enqueue(l client.Listener) (*client.Call, error) {
	req := r.req.Clone(r.req.Context())
	if r.req.GetBody != nil {
		body, err := r.req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("opening request body: %w", err)
		}
		req.Body = body
	}

	call, err := r.client.Enqueue(req, l, r.opts...)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	return call, nil
}

// /////////////////////////////////////////////////////////////////

// base holds the state every builder shares. B is the concrete builder,
// returned by each setter so calls can be chained.
type base[B any] struct {
	self    B
	client  *client.Client
	url     string
	params  map[string]string
	headers map[string]string
	tag     any
	expect  int
}

func newBase[B any](c *client.Client, self B) base[B] {
	return base[B]{self: self, client: c}
}

// URL sets the target URL. It must be an absolute http or https URL.
func (b *base[B]) URL(rawURL string) B {
	b.url = rawURL
	return b.self
}

// SetParams replaces all parameters with a copy of params.
func (b *base[B]) SetParams(params map[string]string) B {
	b.params = maps.Clone(params)
	return b.self
}

// AddParam sets a single parameter. A later value for the same key
// replaces the earlier one.
func (b *base[B]) AddParam(key, value string) B {
	if b.params == nil {
		b.params = make(map[string]string)
	}
	b.params[key] = value
	return b.self
}

// Tag attaches opaque metadata to the call, for [client.Client.CancelTag].
// The tag must be comparable to be cancelled by tag.
func (b *base[B]) Tag(tag any) B {
	b.tag = tag
	return b.self
}

// SetHeaders replaces all headers with a copy of headers.
func (b *base[B]) SetHeaders(headers map[string]string) B {
	b.headers = maps.Clone(headers)
	return b.self
}

// AddHeader sets a single header, replacing any earlier value for key.
func (b *base[B]) AddHeader(key, value string) B {
	if b.headers == nil {
		b.headers = make(map[string]string)
	}
	b.headers[key] = value
	return b.self
}

// Expect fails the call with a [client.UnexpectedStatusError] unless the
// response status is code.
func (b *base[B]) Expect(code int) B {
	b.expect = code
	return b.self
}

// Params returns a copy of the accumulated parameters.
func (b *base[B]) Params() map[string]string { return maps.Clone(b.params) }

func (b *base[B]) checkClient() error {
	if b.client == nil {
		return fmt.Errorf("%w: client must not be nil", client.ErrInvalidArgument)
	}

	return nil
}

// newRequest creates the bodiless request with the builder's headers.
func (b *base[B]) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiating request: %w", client.ErrInvalidArgument, err)
	}

	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (b *base[B]) callOptions() []client.CallOption {
	var opts []client.CallOption
	if b.tag != nil {
		opts = append(opts, client.WithTag(b.tag))
	}
	if b.expect != 0 {
		opts = append(opts, client.WithExpectedStatus(b.expect))
	}

	return opts
}

// newMultipartRequest creates a request whose body is the builder's
// params followed by files, encoded as multipart/form-data. Encoding
// failures are caller errors.
func (b *base[B]) newMultipartRequest(ctx context.Context, method string, files []attachment) (*http.Request, error) {
	body, err := newMultipartBody(b.params, files)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding form: %w", client.ErrInvalidArgument, err)
	}

	req, err := b.newRequest(ctx, method, b.url)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", body.contentType)
	req.ContentLength = body.size
	req.GetBody = body.open

	return req, nil
}

// /////////////////////////////////////////////////////////////////

// transfer holds the timeout overrides of long-running builders.
type transfer[B any] struct {
	self     B
	timeouts client.Timeouts
}

// ConnectTimeout overrides the connect timeout. A non-positive d selects
// [DefaultTransferTimeout].
func (t *transfer[B]) ConnectTimeout(d time.Duration) B {
	t.timeouts.Connect = d
	return t.self
}

// WriteTimeout overrides the write timeout. A non-positive d selects
// [DefaultTransferTimeout].
func (t *transfer[B]) WriteTimeout(d time.Duration) B {
	t.timeouts.Write = d
	return t.self
}

// ReadTimeout overrides the read timeout. A non-positive d selects
// [DefaultTransferTimeout].
func (t *transfer[B]) ReadTimeout(d time.Duration) B {
	t.timeouts.Read = d
	return t.self
}

// Timeouts returns the effective timeouts of the call.
func (t *transfer[B]) Timeouts() client.Timeouts {
	return t.timeouts.Or(DefaultTransferTimeout)
}
