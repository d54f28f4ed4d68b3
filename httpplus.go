// Package httpplus exposes a lazily built shared client and shortcuts
// to the request builders bound to it.
//
// The shared client is configured from the environment (see
// [config.Load]) on first use and never rebuilt. Code that needs its own
// settings should build a client with [NewClient] and pass it to the
// builder constructors instead.
package httpplus

import (
	"log/slog"
	"sync"

	"github.com/adamwoolhether/httpplus/builder"
	"github.com/adamwoolhether/httpplus/client"
	"github.com/adamwoolhether/httpplus/config"
)

var shared = sync.OnceValue(func() *client.Client {
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("loading shared client config, using defaults", "error", err)
		cfg = config.Default()
	}

	c, err := client.Build(cfg.Options(nil)...)
	if err != nil {
		slog.Default().Error("building shared client, using defaults", "error", err)
		c, _ = client.Build()
	}

	return c
})

// Shared returns the process-wide client, building it on first use.
// Derive per-request variants with [client.Client.WithTimeouts]; the
// shared instance itself is never mutated.
func Shared() *client.Client {
	return shared()
}

// NewClient instantiates a new *Client with the provided options.
// If not specified, the default http.Client and http.Transport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// Get returns a GET builder bound to the shared client.
func Get() *builder.GetBuilder { return builder.NewGet(Shared()) }

// Post returns a multipart form POST builder bound to the shared client.
func Post() *builder.PostBuilder { return builder.NewPost(Shared()) }

// Upload returns an upload builder bound to the shared client.
func Upload() *builder.UploadBuilder { return builder.NewUpload(Shared()) }

// Download returns a download builder bound to the shared client.
func Download() *builder.DownloadBuilder { return builder.NewDownload(Shared()) }
