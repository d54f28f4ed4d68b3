package builder

import (
	"context"
	"net/http"

	"github.com/adamwoolhether/httpplus/client"
)

// PostBuilder builds POST requests whose parameters are sent as
// multipart/form-data fields.
type PostBuilder struct {
	base[*PostBuilder]
}

// NewPost returns a POST builder submitting to c.
func NewPost(c *client.Client) *PostBuilder {
	b := &PostBuilder{}
	b.base = newBase(c, b)
	return b
}

// Build validates the builder and materialises the request.
func (b *PostBuilder) Build(ctx context.Context) (*Request, error) {
	if err := b.checkClient(); err != nil {
		return nil, err
	}

	if err := check(requestDescriptor{URL: b.url, Expect: b.expect}); err != nil {
		return nil, err
	}

	req, err := b.newMultipartRequest(ctx, http.MethodPost, nil)
	if err != nil {
		return nil, err
	}

	return &Request{client: b.client, req: req, opts: b.callOptions()}, nil
}

// Execute builds the request and submits it. l.OnStart runs before
// Execute returns; configuration errors are returned and nothing is sent.
func (b *PostBuilder) Execute(ctx context.Context, l client.Listener) (*client.Call, error) {
	r, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	return r.Enqueue(l)
}
