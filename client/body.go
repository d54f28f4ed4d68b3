package client

import (
	"errors"
	"io"
	"sync"

	"github.com/adamwoolhether/httpplus/client/metrics"
)

// requestBody kicks the write watchdog for every chunk the transport
// pulls from the request body, and stops it once the body is drained.
type requestBody struct {
	io.ReadCloser
	write     *watchdog
	metrics   *metrics.Metrics
	closeOnce sync.Once
	closeErr  error
}

func (b *requestBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.metrics.Uploaded(int64(n))
	if errors.Is(err, io.EOF) {
		b.write.stop()
	} else {
		b.write.kick()
	}

	return n, err
}

// Close closes the wrapped body once. It may be called concurrently
// with Read to unblock a stalled transport write.
func (b *requestBody) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.ReadCloser.Close()
	})

	return b.closeErr
}

// requestBodies tracks every body handed to the transport for one call,
// rewound copies included. A cancelled round trip does not return until
// its body write does, so the bodies are closed when the call ends.
type requestBodies struct {
	mu      sync.Mutex
	bodies  []*requestBody
	aborted bool
}

func (s *requestBodies) add(b *requestBody) {
	s.mu.Lock()
	aborted := s.aborted
	if !aborted {
		s.bodies = append(s.bodies, b)
	}
	s.mu.Unlock()

	if aborted {
		b.Close()
	}
}

// abort closes every tracked body and any body added afterwards.
func (s *requestBodies) abort() {
	s.mu.Lock()
	s.aborted = true
	bodies := s.bodies
	s.bodies = nil
	s.mu.Unlock()

	for _, b := range bodies {
		b.Close()
	}
}

// responseBody bounds every read of the response body by the read watchdog.
type responseBody struct {
	io.ReadCloser
	read    *watchdog
	metrics *metrics.Metrics
}

func (b *responseBody) Read(p []byte) (int, error) {
	b.read.kick()
	n, err := b.ReadCloser.Read(p)
	b.read.stop()
	b.metrics.Downloaded(int64(n))

	return n, err
}

// readCapped reads at most maxErrBodySize bytes of body.
func readCapped(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxErrBodySize))
}
