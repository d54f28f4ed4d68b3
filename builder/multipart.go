package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/adamwoolhether/httpplus/contenttype"
)

// ErrFileChanged is returned while sending an upload whose file no longer
// has the size it had when the request was built.
var ErrFileChanged = errors.New("file changed size")

// multipartBody is a multipart/form-data body whose framing is rendered
// up front, so its exact length is known before any file is opened.
// File contents are streamed from disk each time the body is opened.
type multipartBody struct {
	contentType string
	segments    []segment
	size        int64
}

// segment is either rendered framing or the contents of a file.
type segment struct {
	data []byte
	path string
	size int64
}

// newMultipartBody renders one part per param, in key order, followed
// by one part per file.
func newMultipartBody(params map[string]string, files []attachment) (*multipartBody, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	mb := multipartBody{contentType: mw.FormDataContentType()}
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		mb.add(segment{data: bytes.Clone(buf.Bytes()), size: int64(buf.Len())})
		buf.Reset()
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(k)))

		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("creating part %q: %w", k, err)
		}
		if _, err := io.WriteString(pw, params[k]); err != nil {
			return nil, fmt.Errorf("writing part %q: %w", k, err)
		}
	}

	for _, f := range files {
		fi, err := os.Stat(f.Path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f.Path, err)
		}
		if !fi.Mode().IsRegular() {
			return nil, fmt.Errorf("%s: not a regular file", f.Path)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.Field), escapeQuotes(filepath.Base(f.Path))))
		h.Set("Content-Type", contenttype.Detect(f.Path))

		if _, err := mw.CreatePart(h); err != nil {
			return nil, fmt.Errorf("creating part %q: %w", f.Field, err)
		}
		flush()
		mb.add(segment{path: f.Path, size: fi.Size()})
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}
	flush()

	return &mb, nil
}

func (mb *multipartBody) add(s segment) {
	mb.segments = append(mb.segments, s)
	mb.size += s.size
}

// open returns a new reader over the whole body.
func (mb *multipartBody) open() (io.ReadCloser, error) {
	return &multipartReader{segments: mb.segments}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// /////////////////////////////////////////////////////////////////

// multipartReader reads the segments of a body in order, opening each
// file only when its turn comes. Close may run concurrently with Read.
type multipartReader struct {
	mu       sync.Mutex
	closed   bool
	segments []segment
	cur      io.Reader
	file     *os.File
	left     int64
}

func (r *multipartReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, os.ErrClosed
	}

	for {
		if r.cur == nil {
			if len(r.segments) == 0 {
				return 0, io.EOF
			}
			if err := r.next(); err != nil {
				return 0, err
			}
		}

		n, err := r.cur.Read(p)
		if r.file != nil {
			r.left -= int64(n)
		}

		if errors.Is(err, io.EOF) {
			if r.file != nil && r.left > 0 {
				return n, fmt.Errorf("%s: %w", r.file.Name(), ErrFileChanged)
			}
			r.closeFile()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}

		return n, err
	}
}

func (r *multipartReader) next() error {
	seg := r.segments[0]
	r.segments = r.segments[1:]

	if seg.path == "" {
		r.cur = bytes.NewReader(seg.data)
		return nil
	}

	f, err := os.Open(seg.path)
	if err != nil {
		return fmt.Errorf("opening upload file: %w", err)
	}
	r.file = f
	r.left = seg.size
	r.cur = io.LimitReader(f, seg.size)

	return nil
}

func (r *multipartReader) closeFile() {
	if r.file == nil {
		return
	}
	r.file.Close()
	r.file = nil
}

func (r *multipartReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.closeFile()
	r.segments = nil
	r.cur = nil
	return nil
}
