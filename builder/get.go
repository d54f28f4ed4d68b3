package builder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/adamwoolhether/httpplus/client"
)

type requestDescriptor struct {
	URL    string `json:"url" validate:"required,httpurl"`
	Expect int    `json:"expect" validate:"omitempty,min=100,max=999"`
}

// GetBuilder builds GET requests. Parameters are merged into the URL's
// query string, replacing query values of the same key.
type GetBuilder struct {
	base[*GetBuilder]
}

// NewGet returns a GET builder submitting to c.
func NewGet(c *client.Client) *GetBuilder {
	b := &GetBuilder{}
	b.base = newBase(c, b)
	return b
}

// Build validates the builder and materialises the request.
func (b *GetBuilder) Build(ctx context.Context) (*Request, error) {
	if err := b.checkClient(); err != nil {
		return nil, err
	}

	if err := check(requestDescriptor{URL: b.url, Expect: b.expect}); err != nil {
		return nil, err
	}

	return b.buildGet(ctx)
}

// buildGet materialises a GET request with the params in its query.
func (b *base[B]) buildGet(ctx context.Context) (*Request, error) {
	u, err := url.Parse(b.url)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url: %w", client.ErrInvalidArgument, err)
	}

	if len(b.params) > 0 {
		q := u.Query()
		for k, v := range b.params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := b.newRequest(ctx, http.MethodGet, u.String())
	if err != nil {
		return nil, err
	}

	return &Request{client: b.client, req: req, opts: b.callOptions()}, nil
}

// Execute builds the request and submits it. l.OnStart runs before
// Execute returns; configuration errors are returned and nothing is sent.
func (b *GetBuilder) Execute(ctx context.Context, l client.Listener) (*client.Call, error) {
	r, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	return r.Enqueue(l)
}
