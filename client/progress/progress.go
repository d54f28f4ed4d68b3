// Package progress decorates request and response bodies so that the
// bytes flowing through them are reported as percentage events.
//
// The decorators never alter the transmitted bytes. A listener is only
// notified when the integer percentage changes, which bounds a single
// transfer to at most 101 events regardless of chunk size. When the total
// length is unknown (zero or negative) no events are emitted at all.
package progress

import (
	"io"
)

// Event describes the progress of a single transfer.
type Event struct {
	Written int64 `json:"written"`
	Total   int64 `json:"total"`
	Percent int   `json:"percent"`
	Done    bool  `json:"done"`
}

// Func receives progress events. It is called from the goroutine doing
// the reading or writing.
type Func func(Event)

// tracker holds the counting state shared by Reader and Writer.
// It is not safe for concurrent use.
type tracker struct {
	fn      Func
	total   int64
	written int64
	last    int
	done    bool
}

func newTracker(total int64, fn Func) tracker {
	return tracker{fn: fn, total: total, last: -1}
}

func (t *tracker) add(n int) {
	if n <= 0 {
		return
	}
	t.written += int64(n)

	if t.fn == nil || t.total <= 0 || t.done {
		return
	}

	written := min(t.written, t.total)
	pct := int(written * 100 / t.total)
	if pct == t.last {
		return
	}
	t.last = pct

	done := written == t.total
	t.done = done

	t.fn(Event{
		Written: written,
		Total:   t.total,
		Percent: pct,
		Done:    done,
	})
}

// Reader is an io.ReadCloser reporting the bytes read through it.
type Reader struct {
	r io.Reader
	tracker
}

// NewReader wraps r, reporting progress against total to fn.
func NewReader(r io.Reader, total int64, fn Func) *Reader {
	return &Reader{r: r, tracker: newTracker(total, fn)}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.add(n)

	return n, err
}

// Close closes the wrapped reader if it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// Written returns the number of bytes read so far.
func (r *Reader) Written() int64 { return r.written }

// Writer is an io.Writer reporting the bytes written through it.
// Every chunk is forwarded to the underlying sink before it is counted.
type Writer struct {
	w io.Writer
	tracker
}

// NewWriter wraps w, reporting progress against total to fn.
func NewWriter(w io.Writer, total int64, fn Func) *Writer {
	return &Writer{w: w, tracker: newTracker(total, fn)}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.add(n)

	return n, err
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.written }
