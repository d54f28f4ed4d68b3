// Package client provides the core implementation of the configurable HTTP
// client built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeouts(client.Timeouts{Connect: 5 * time.Second, Read: 30 * time.Second}),
//		client.WithUserAgent("myapp/1.0"),
//	)
//
// [Client.Clone] and [Client.WithTimeouts] derive copies with their own
// timeouts. Copies share the transport, connection pool and dispatcher of
// the original, which is never mutated.
//
// # Asynchronous Calls
//
// [Client.Enqueue] submits a request and returns a [Call] handle. The
// call's lifecycle is reported to a [Listener]:
//
//	call, err := c.Enqueue(req, client.Listener{
//		OnStart:    func() { ... },
//		OnProgress: func(e progress.Event) { ... },
//		OnResponse: func(resp *http.Response) { ... },
//		OnFailure:  func(err error) { ... },
//	}, client.WithTag("sync"))
//
// OnStart runs before Enqueue returns. Exactly one of OnResponse and
// OnFailure runs per call, after every progress event. Cancel a single
// call with [Call.Cancel], or every call sharing a tag with
// [Client.CancelTag].
//
// # Downloading Files
//
// [WithDownload] streams a successful response body to disk, with
// optional checksum verification, reporting progress to the listener:
//
//	call, err := c.Enqueue(req, l,
//		client.WithDownload("/tmp/file.bin",
//			client.WithChecksum(sha256.New(), expectedHex),
//		),
//	)
//
// For lower-level control see the
// [github.com/adamwoolhether/httpplus/client/download] package.
//
// # Synchronous Calls
//
// [Client.Do] fires a request on the calling goroutine and optionally
// decodes a JSON response:
//
//	err = c.Do(req, http.StatusOK, client.WithDestination(&result))
package client
