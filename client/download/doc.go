// Package download streams HTTP response bodies to disk with optional
// checksum validation and progress reporting.
//
// [Handle] writes the response body to a temporary file alongside the
// destination path, then atomically renames it on success:
//
//	n, err := download.Handle(ctx, resp.Body, resp.ContentLength, destPath, logger,
//		download.WithProgress(func(e progress.Event) { ... }),
//	)
//
// Most callers should use the download builder of
// [github.com/adamwoolhether/httpplus/builder], which runs Handle inside
// an asynchronous call and forwards progress to the call's listener.
package download
