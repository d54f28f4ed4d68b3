// Package builder provides fluent builders for the requests a
// [client.Client] submits: GET, multipart POST forms, multipart file
// uploads and file downloads.
//
// Builders are single-use values owned by one goroutine. Each collects a
// URL, parameters, headers, an optional tag and expected status, then
// validates them and materialises an immutable [Request]:
//
//	call, err := builder.NewGet(c).
//		URL("https://api.example.com/items").
//		AddParam("id", "7").
//		Execute(ctx, listener)
//
// Uploads carry at least one file and report progress to the listener:
//
//	call, err := builder.NewUpload(c).
//		URL("https://api.example.com/avatar").
//		AddParam("user", "alice").
//		File("avatar", "/tmp/alice.png").
//		WriteTimeout(5 * time.Minute).
//		Start(ctx, listener)
//
// Configuration errors, such as a missing URL or file, are returned
// synchronously wrapping [client.ErrInvalidArgument] with [FieldErrors]
// describing the offending fields. Nothing is sent in that case.
package builder
