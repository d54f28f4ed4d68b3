package builder

import (
	"context"
	"net/http"

	"github.com/adamwoolhether/httpplus/client"
)

type attachment struct {
	Field string `json:"field" validate:"required"`
	Path  string `json:"path" validate:"required,file"`
}

type uploadDescriptor struct {
	URL    string       `json:"url" validate:"required,httpurl"`
	Expect int          `json:"expect" validate:"omitempty,min=100,max=999"`
	Files  []attachment `json:"files" validate:"required,min=1,dive"`
}

// UploadBuilder builds multipart POST requests carrying parameters and
// at least one file. Upload progress is reported to the listener's
// OnProgress against the full body length.
type UploadBuilder struct {
	base[*UploadBuilder]
	transfer[*UploadBuilder]
	method string
	files  []attachment
}

// NewUpload returns an upload builder submitting to c.
func NewUpload(c *client.Client) *UploadBuilder {
	b := &UploadBuilder{method: http.MethodPost}
	b.base = newBase(c, b)
	b.transfer = transfer[*UploadBuilder]{self: b}
	return b
}

// File attaches the file at path as form field field. Files are sent in
// the order they are attached, after every parameter.
func (b *UploadBuilder) File(field, path string) *UploadBuilder {
	b.files = append(b.files, attachment{Field: field, Path: path})
	return b
}

// Method overrides the HTTP method, POST by default.
func (b *UploadBuilder) Method(method string) *UploadBuilder {
	b.method = method
	return b
}

// Build validates the builder and materialises the request. Files must
// exist when Build is called; they are opened only once the body is sent.
func (b *UploadBuilder) Build(ctx context.Context) (*Request, error) {
	if err := b.checkClient(); err != nil {
		return nil, err
	}

	desc := uploadDescriptor{URL: b.url, Expect: b.expect, Files: b.files}
	if err := check(desc); err != nil {
		return nil, err
	}

	req, err := b.newMultipartRequest(ctx, b.method, b.files)
	if err != nil {
		return nil, err
	}

	return &Request{
		client: b.client.WithTimeouts(b.Timeouts()),
		req:    req,
		opts:   b.callOptions(),
	}, nil
}

// Start builds the request and submits it. l.OnStart runs before Start
// returns; configuration errors are returned and nothing is sent.
func (b *UploadBuilder) Start(ctx context.Context, l client.Listener) (*client.Call, error) {
	r, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	return r.Enqueue(l)
}
