package builder

import (
	"context"
	"hash"
	"net/http"

	"github.com/adamwoolhether/httpplus/client"
)

type downloadDescriptor struct {
	URL    string `json:"url" validate:"required,httpurl"`
	Expect int    `json:"expect" validate:"omitempty,min=100,max=999"`
	Dest   string `json:"dest" validate:"required"`
}

// DownloadBuilder builds GET requests whose response body is streamed
// to a file. Download progress is reported to the listener's OnProgress
// when the server declares a Content-Length. By default only a 200
// response is stored.
type DownloadBuilder struct {
	base[*DownloadBuilder]
	transfer[*DownloadBuilder]
	dest    string
	options []client.DownloadOption
}

// NewDownload returns a download builder submitting to c.
func NewDownload(c *client.Client) *DownloadBuilder {
	b := &DownloadBuilder{}
	b.base = newBase(c, b)
	b.base.expect = http.StatusOK
	b.transfer = transfer[*DownloadBuilder]{self: b}
	return b
}

// Dest sets the file the response body is written to.
func (b *DownloadBuilder) Dest(path string) *DownloadBuilder {
	b.dest = path
	return b
}

// Checksum verifies the hex-encoded digest of the downloaded file
// with h before it is moved to its destination.
func (b *DownloadBuilder) Checksum(h hash.Hash, expected string) *DownloadBuilder {
	b.options = append(b.options, client.WithChecksum(h, expected))
	return b
}

// SkipExisting succeeds without downloading when the destination exists.
func (b *DownloadBuilder) SkipExisting() *DownloadBuilder {
	b.options = append(b.options, client.WithSkipExisting())
	return b
}

// ProgressLog logs download progress through the client's logger.
func (b *DownloadBuilder) ProgressLog() *DownloadBuilder {
	b.options = append(b.options, client.WithProgressLog())
	return b
}

// Build validates the builder and materialises the request.
func (b *DownloadBuilder) Build(ctx context.Context) (*Request, error) {
	if err := b.checkClient(); err != nil {
		return nil, err
	}

	desc := downloadDescriptor{URL: b.url, Expect: b.expect, Dest: b.dest}
	if err := check(desc); err != nil {
		return nil, err
	}

	r, err := b.buildGet(ctx)
	if err != nil {
		return nil, err
	}

	r.client = b.client.WithTimeouts(b.Timeouts())
	r.opts = append(r.opts, client.WithDownload(b.dest, b.options...))

	return r, nil
}

// Start builds the request and submits it. l.OnStart runs before Start
// returns; configuration errors are returned and nothing is sent.
func (b *DownloadBuilder) Start(ctx context.Context, l client.Listener) (*client.Call, error) {
	r, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	return r.Enqueue(l)
}
