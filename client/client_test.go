package client_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/adamwoolhether/httpplus/client"
	"github.com/adamwoolhether/httpplus/client/progress"
	"github.com/adamwoolhether/httpplus/client/throttle"
)

type payload struct {
	Body string `json:"body"`
}

// recorder captures the listener events of a single call.
type recorder struct {
	mu       sync.Mutex
	events   []string
	progress []progress.Event
	status   int
	err      error
}

func (r *recorder) listener() client.Listener {
	return client.Listener{
		OnStart: func() {
			r.add("start")
		},
		OnProgress: func(e progress.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, e)
		},
		OnResponse: func(resp *http.Response) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "response")
			r.status = resp.StatusCode
		},
		OnFailure: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, "failure")
			r.err = err
		},
	}
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() ([]string, []progress.Event, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]progress.Event(nil), r.progress...), r.status, r.err
}

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func okResponse(r *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    r,
	}
}

func waitCall(t *testing.T, call *client.Call) {
	t.Helper()

	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete in time")
	}
}

func TestClient_WithUserAgent(t *testing.T) {
	expectedUA := "TestUserAgent/1.0"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithUserAgent(expectedUA))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	if err := c.Do(req, http.StatusOK); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestClient_OptionOrderIndependence(t *testing.T) {
	expectedUA := "FullChain/1.0"

	var (
		mu     sync.Mutex
		called int
	)
	custom := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		called++
		mu.Unlock()

		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
		}
		return okResponse(r), nil
	})

	orders := [][]client.Option{
		{client.WithTransport(custom), client.WithUserAgent(expectedUA), client.WithThrottle(100, 10)},
		{client.WithThrottle(100, 10), client.WithTransport(custom), client.WithUserAgent(expectedUA)},
		{client.WithUserAgent(expectedUA), client.WithThrottle(100, 10), client.WithTransport(custom)},
	}

	for i, opts := range orders {
		c, err := client.Build(opts...)
		if err != nil {
			t.Fatalf("order %d: failed to create client: %v", i, err)
		}

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.test/", nil)
		if err != nil {
			t.Fatalf("order %d: failed to create request: %v", i, err)
		}

		var rec recorder
		call, err := c.Enqueue(req, rec.listener())
		if err != nil {
			t.Fatalf("order %d: enqueue: %v", i, err)
		}
		if err := call.Err(); err != nil {
			t.Errorf("order %d: expected no error, got: %v", i, err)
		}
	}

	if called != len(orders) {
		t.Errorf("expected transport called %d times, got %d", len(orders), called)
	}
}

func TestClient_BuildOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  client.Option
		err  error
	}{
		{name: "nilClient", opt: client.WithClient(nil)},
		{name: "nilTransport", opt: client.WithTransport(nil)},
		{name: "negativeTimeout", opt: client.WithTimeout(-1)},
		{name: "negativeTimeouts", opt: client.WithTimeouts(client.Timeouts{Read: -time.Second})},
		{name: "zeroThrottle", opt: client.WithThrottle(0, 10), err: throttle.ErrMustNotBeZero},
		{name: "nilTracer", opt: client.WithTracer(nil)},
		{name: "nilRegisterer", opt: client.WithMetrics(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Build(tt.opt)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got: %v", tt.err, err)
			}
		})
	}
}

func TestClient_WithClient(t *testing.T) {
	custom := &http.Client{Timeout: 42 * time.Second}

	c, err := client.Build(client.WithClient(custom), client.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	_ = c

	// The provided client is copied, never mutated.
	if custom.Timeout != 42*time.Second {
		t.Errorf("expected provided client timeout preserved as 42s, got %v", custom.Timeout)
	}
}

func TestClient_WithNoFollowRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			http.Redirect(w, r, "/target", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithNoFollowRedirects())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/redirect", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	if err := c.Do(req, http.StatusFound); err != nil {
		t.Errorf("expected 302 response without following, got: %v", err)
	}
}

func TestClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			w.Header().Set("Content-Type", "application/json")
			io.Copy(w, r.Body)
		case "/number":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"id": 12345678901234567}`)
		case "/denied":
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, strings.Repeat("x", 10<<10))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	t.Run("echo", func(t *testing.T) {
		body, _ := json.Marshal(payload{Body: "hey there"})
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL+"/echo", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("generating req: %v", err)
		}

		var got payload
		if err := c.Do(req, http.StatusOK, client.WithDestination(&got)); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		if diff := cmp.Diff(payload{Body: "hey there"}, got); diff != "" {
			t.Errorf("unexpected echo body (-want +got):\n%s", diff)
		}
	})

	t.Run("jsonNumber", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/number", nil)
		if err != nil {
			t.Fatalf("generating req: %v", err)
		}

		raw := map[string]any{}
		if err := c.Do(req, http.StatusOK, client.WithDestination(&raw), client.WithJSONNumb()); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		n, ok := raw["id"].(json.Number)
		if !ok {
			t.Fatalf("expected json.Number, got %T", raw["id"])
		}
		if n.String() != "12345678901234567" {
			t.Errorf("expected 12345678901234567, got %s", n.String())
		}
	})

	t.Run("unexpectedStatus", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
		if err != nil {
			t.Fatalf("generating req: %v", err)
		}

		err = c.Do(req, http.StatusAccepted)
		if !errors.Is(err, client.ErrUnexpectedStatusCode) {
			t.Fatalf("expected ErrUnexpectedStatusCode, got: %v", err)
		}
		if errors.Is(err, client.ErrAuthFailure) {
			t.Error("200 must not be reported as an auth failure")
		}
	})

	t.Run("authFailureCapped", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/denied", nil)
		if err != nil {
			t.Fatalf("generating req: %v", err)
		}

		err = c.Do(req, http.StatusOK)
		if !errors.Is(err, client.ErrAuthFailure) {
			t.Fatalf("expected ErrAuthFailure, got: %v", err)
		}

		var sErr *client.UnexpectedStatusError
		if !errors.As(err, &sErr) {
			t.Fatalf("expected *UnexpectedStatusError, got %T", err)
		}
		if sErr.StatusCode != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", sErr.StatusCode)
		}
		if len(sErr.Body) != 4<<10 {
			t.Errorf("expected error body capped at 4KB, got %d bytes", len(sErr.Body))
		}
	})
}

func TestClient_Enqueue_StartBeforeTransport(t *testing.T) {
	var rec recorder
	spy := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		rec.add("transport:" + r.URL.String())
		return okResponse(r), nil
	})

	c, err := client.Build(client.WithTransport(spy))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://x/api?id=7", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	call, err := c.Enqueue(req, rec.listener())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitCall(t, call)

	events, prog, status, _ := rec.snapshot()
	want := []string{"start", "transport:http://x/api?id=7", "response"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("unexpected event order (-want +got):\n%s", diff)
	}
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if len(prog) != 0 {
		t.Errorf("expected no progress for a bodiless request, got %d events", len(prog))
	}
	if call.ID() == "" {
		t.Error("expected a call ID")
	}
}

func TestClient_Enqueue_InvalidListener(t *testing.T) {
	var calls int
	spy := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return okResponse(r), nil
	})

	c, err := client.Build(client.WithTransport(spy))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://x/", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	tests := map[string]client.Listener{
		"noResponse": {OnFailure: func(error) {}},
		"noFailure":  {OnResponse: func(*http.Response) {}},
	}

	for name, l := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Enqueue(req, l); !errors.Is(err, client.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got: %v", err)
			}
		})
	}

	if _, err := c.Enqueue(nil, client.ListenerFunc(func(*http.Response, error) {})); !errors.Is(err, client.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for nil request, got: %v", err)
	}

	if calls != 0 {
		t.Errorf("expected zero transport calls, got %d", calls)
	}
}

func TestClient_Enqueue_UploadProgress(t *testing.T) {
	const size = 5000

	var received atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		received.Store(n)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL, bytes.NewReader(make([]byte, size)))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	call, err := c.Enqueue(req, rec.listener())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := call.Err(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	events, prog, _, _ := rec.snapshot()
	if diff := cmp.Diff([]string{"start", "response"}, events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
	if got := received.Load(); got != size {
		t.Errorf("expected server to receive %d bytes, got %d", size, got)
	}

	if len(prog) == 0 {
		t.Fatal("expected progress events")
	}
	for i := 1; i < len(prog); i++ {
		if prog[i].Percent <= prog[i-1].Percent {
			t.Errorf("percentages not strictly increasing: %d then %d", prog[i-1].Percent, prog[i].Percent)
		}
	}
	last := prog[len(prog)-1]
	if last.Percent != 100 || !last.Done || last.Total != size {
		t.Errorf("unexpected final event: %+v", last)
	}
}

func TestClient_Enqueue_ExpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "missing")
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	call, err := c.Enqueue(req, rec.listener(), client.WithExpectedStatus(http.StatusOK))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitCall(t, call)

	events, _, _, lErr := rec.snapshot()
	if diff := cmp.Diff([]string{"start", "failure"}, events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}

	var sErr *client.UnexpectedStatusError
	if !errors.As(lErr, &sErr) {
		t.Fatalf("expected *UnexpectedStatusError, got %T: %v", lErr, lErr)
	}
	if sErr.StatusCode != http.StatusNotFound || sErr.Body != "missing" {
		t.Errorf("unexpected status error: %+v", sErr)
	}
	if !errors.Is(call.Err(), client.ErrUnexpectedStatusCode) {
		t.Errorf("expected call error to match listener error, got: %v", call.Err())
	}

	if _, err := c.Enqueue(req, rec.listener(), client.WithExpectedStatus(42)); !errors.Is(err, client.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for out of range status, got: %v", err)
	}
}

// blockingServer holds every request until release is closed or the
// client goes away, signalling arrived once per request.
func blockingServer(t *testing.T) (ts *httptest.Server, arrived chan struct{}, release chan struct{}) {
	t.Helper()

	arrived = make(chan struct{}, 16)
	release = make(chan struct{})

	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	}))

	return ts, arrived, release
}

func awaitArrivals(t *testing.T, arrived <-chan struct{}, n int) {
	t.Helper()

	for range n {
		select {
		case <-arrived:
		case <-time.After(5 * time.Second):
			t.Fatal("request did not reach server in time")
		}
	}
}

func TestClient_Call_Cancel(t *testing.T) {
	ts, arrived, release := blockingServer(t)
	defer ts.Close()
	defer close(release)

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	call, err := c.Enqueue(req, rec.listener(), client.WithTag("job"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	awaitArrivals(t, arrived, 1)

	call.Cancel()
	waitCall(t, call)

	events, _, _, lErr := rec.snapshot()
	if diff := cmp.Diff([]string{"start", "failure"}, events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
	if !errors.Is(lErr, client.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got: %v", lErr)
	}
	if call.Tag() != "job" {
		t.Errorf("expected tag %q, got %v", "job", call.Tag())
	}

	// Cancelling a finished call is a no-op.
	call.Cancel()
	if events, _, _, _ := rec.snapshot(); len(events) != 2 {
		t.Errorf("expected no further events, got %v", events)
	}
}

func TestClient_CancelTag(t *testing.T) {
	ts, arrived, release := blockingServer(t)
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tags := []string{"sync", "sync", "other"}
	recs := make([]*recorder, len(tags))
	calls := make([]*client.Call, len(tags))
	for i, tag := range tags {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/"+strconv.Itoa(i), nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}

		recs[i] = new(recorder)
		calls[i], err = c.Enqueue(req, recs[i].listener(), client.WithTag(tag))
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	awaitArrivals(t, arrived, len(tags))

	if n := c.CancelTag("sync"); n != 2 {
		t.Errorf("expected 2 calls cancelled, got %d", n)
	}
	if n := c.CancelTag([]string{"uncomparable"}); n != 0 {
		t.Errorf("expected uncomparable tag to match nothing, got %d", n)
	}

	waitCall(t, calls[0])
	waitCall(t, calls[1])
	close(release)

	err = c.Wait()
	if !errors.Is(err, client.ErrCanceled) {
		t.Errorf("expected joined ErrCanceled from Wait, got: %v", err)
	}

	for i, want := range []string{"failure", "failure", "response"} {
		events, _, _, _ := recs[i].snapshot()
		if diff := cmp.Diff([]string{"start", want}, events); diff != "" {
			t.Errorf("call %d: unexpected events (-want +got):\n%s", i, diff)
		}
	}

	if err := c.Wait(); err != nil {
		t.Errorf("expected errors reset after Wait, got: %v", err)
	}
}

func TestClient_Shutdown(t *testing.T) {
	c, err := client.Build(client.WithTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(r), nil
	})))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	c.Shutdown()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://x/", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	if _, err := c.Enqueue(req, rec.listener()); !errors.Is(err, client.ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got: %v", err)
	}

	if events, _, _, _ := rec.snapshot(); len(events) != 0 {
		t.Errorf("expected no listener events, got %v", events)
	}
}

func TestClient_ReadTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTimeouts(client.Timeouts{Read: 50 * time.Millisecond}))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	call, err := c.Enqueue(req, rec.listener())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitCall(t, call)

	if _, _, _, lErr := rec.snapshot(); !errors.Is(lErr, client.ErrReadTimeout) {
		t.Errorf("expected ErrReadTimeout, got: %v", lErr)
	}
}

func TestClient_WriteTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTimeouts(client.Timeouts{Write: 50 * time.Millisecond}))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	// The pipe never produces data, so the body stalls.
	pr, pw := io.Pipe()
	defer pw.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL, pr)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	call, err := c.Enqueue(req, rec.listener())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitCall(t, call)

	if _, _, _, lErr := rec.snapshot(); !errors.Is(lErr, client.ErrWriteTimeout) {
		t.Errorf("expected ErrWriteTimeout, got: %v", lErr)
	}
}

func TestClient_Call_Cancel_StalledBody(t *testing.T) {
	arrived := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		io.Copy(io.Discard, r.Body)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	// Nothing is ever written to the pipe, so the transport blocks reading it.
	pr, pw := io.Pipe()
	defer pw.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, ts.URL, pr)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	call, err := c.Enqueue(req, rec.listener())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	awaitArrivals(t, arrived, 1)

	call.Cancel()
	waitCall(t, call)

	events, _, _, lErr := rec.snapshot()
	if diff := cmp.Diff([]string{"start", "failure"}, events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
	if !errors.Is(lErr, client.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got: %v", lErr)
	}
	if !errors.Is(call.Err(), client.ErrCanceled) {
		t.Errorf("expected call error ErrCanceled, got: %v", call.Err())
	}
}

func TestClient_CancelTag_StructTags(t *testing.T) {
	type key struct{ V any }

	ts, arrived, release := blockingServer(t)
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tags := []key{{V: []int{1}}, {V: "batch"}}
	recs := make([]*recorder, len(tags))
	calls := make([]*client.Call, len(tags))
	for i, tag := range tags {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/"+strconv.Itoa(i), nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}

		recs[i] = new(recorder)
		calls[i], err = c.Enqueue(req, recs[i].listener(), client.WithTag(tag))
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	awaitArrivals(t, arrived, len(tags))

	// A comparable type holding an uncomparable value matches nothing.
	if n := c.CancelTag(key{V: []int{2}}); n != 0 {
		t.Errorf("expected 0 calls cancelled, got %d", n)
	}
	if n := c.CancelTag(key{V: "batch"}); n != 1 {
		t.Errorf("expected 1 call cancelled, got %d", n)
	}
	waitCall(t, calls[1])

	close(release)
	waitCall(t, calls[0])

	for i, want := range []string{"response", "failure"} {
		events, _, _, _ := recs[i].snapshot()
		if diff := cmp.Diff([]string{"start", want}, events); diff != "" {
			t.Errorf("call %d: unexpected events (-want +got):\n%s", i, diff)
		}
	}
}

func TestClient_WithResponseHandler(t *testing.T) {
	errHandler := errors.New("handler rejected body")

	tests := []struct {
		name    string
		handler client.ResponseHandler
		events  []string
		wantErr error
	}{
		{
			name: "accepted",
			handler: func(_ context.Context, resp *http.Response, _ progress.Func) error {
				_, err := io.Copy(io.Discard, resp.Body)
				return err
			},
			events: []string{"start", "response"},
		},
		{
			name: "rejected",
			handler: func(context.Context, *http.Response, progress.Func) error {
				return errHandler
			},
			events:  []string{"start", "failure"},
			wantErr: errHandler,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.Build(client.WithTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
				return okResponse(r), nil
			})))
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://x/", nil)
			if err != nil {
				t.Fatalf("failed to create request: %v", err)
			}

			var rec recorder
			call, err := c.Enqueue(req, rec.listener(), client.WithResponseHandler(tt.handler))
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			waitCall(t, call)

			events, _, _, lErr := rec.snapshot()
			if diff := cmp.Diff(tt.events, events); diff != "" {
				t.Errorf("unexpected events (-want +got):\n%s", diff)
			}
			if !errors.Is(lErr, tt.wantErr) {
				t.Errorf("expected error %v, got: %v", tt.wantErr, lErr)
			}
		})
	}
}

func TestClient_WithResponseHandler_Invalid(t *testing.T) {
	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://x/", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	var rec recorder
	if _, err := c.Enqueue(req, rec.listener(), client.WithResponseHandler(nil)); err == nil {
		t.Error("expected error for nil handler")
	}

	noop := func(context.Context, *http.Response, progress.Func) error { return nil }
	_, err = c.Enqueue(req, rec.listener(),
		client.WithResponseHandler(noop),
		client.WithDownload(filepath.Join(t.TempDir(), "out")),
	)
	if !errors.Is(err, client.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got: %v", err)
	}
}

func TestClient_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := client.Build(client.WithLogger(logger))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if c.Logger() != logger {
		t.Error("expected the injected logger")
	}
	if c.Clone().Logger() != logger {
		t.Error("expected clones to share the logger")
	}

	def, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if def.Logger() != slog.Default() {
		t.Error("expected slog.Default when no logger is injected")
	}
}

func TestClient_Clone(t *testing.T) {
	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	want := client.Timeouts{}.Or(client.DefaultTimeout)
	if diff := cmp.Diff(want, c.Timeouts()); diff != "" {
		t.Errorf("unexpected default timeouts (-want +got):\n%s", diff)
	}

	custom := client.Timeouts{Connect: time.Second, Write: 2 * time.Second, Read: 3 * time.Second}
	cpy := c.WithTimeouts(custom)

	if diff := cmp.Diff(custom, cpy.Timeouts()); diff != "" {
		t.Errorf("unexpected clone timeouts (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, c.Timeouts()); diff != "" {
		t.Errorf("original was mutated (-want +got):\n%s", diff)
	}
	if cpy == c {
		t.Error("expected a distinct client")
	}
}

func TestClient_WithDownload(t *testing.T) {
	content := strings.Repeat("0123456789", 1000)
	sum := sha256.Sum256([]byte(content))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		io.WriteString(w, content)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "file.bin")

	var rec recorder
	call, err := c.Enqueue(req, rec.listener(),
		client.WithExpectedStatus(http.StatusOK),
		client.WithDownload(dest, client.WithChecksum(sha256.New(), hex.EncodeToString(sum[:]))),
	)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := call.Err(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(got) != content {
		t.Error("downloaded content does not match")
	}

	_, prog, _, _ := rec.snapshot()
	if len(prog) == 0 || !prog[len(prog)-1].Done {
		t.Errorf("expected download progress ending in done, got %+v", prog)
	}

	if _, err := c.Enqueue(req, rec.listener(), client.WithDownload("")); !errors.Is(err, client.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty destination, got: %v", err)
	}
}

func TestClient_WithDownload_ChecksumMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "payload")
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "file.bin")

	var rec recorder
	call, err := c.Enqueue(req, rec.listener(),
		client.WithDownload(dest, client.WithChecksum(sha256.New(), strings.Repeat("0", 64))),
	)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitCall(t, call)

	events, _, _, lErr := rec.snapshot()
	if diff := cmp.Diff([]string{"start", "failure"}, events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
	if !errors.Is(lErr, client.ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got: %v", lErr)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no file at dest, stat returned: %v", err)
	}
}

func TestClient_Metrics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, "pong")
	}))
	defer ts.Close()

	c, err := client.Build(client.WithMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.URL, strings.NewReader("ping!"))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	call, err := c.Enqueue(req, client.ListenerFunc(func(*http.Response, error) {}))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := call.Err(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	m := c.Metrics()
	if got := testutil.ToFloat64(m.Calls.WithLabelValues(http.MethodPost, "success")); got != 1 {
		t.Errorf("expected 1 successful call, got %v", got)
	}
	if got := testutil.ToFloat64(m.UploadBytes); got != 5 {
		t.Errorf("expected 5 uploaded bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.DownloadBytes); got != 4 {
		t.Errorf("expected 4 downloaded bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.InFlight); got != 0 {
		t.Errorf("expected no calls in flight, got %v", got)
	}
}
