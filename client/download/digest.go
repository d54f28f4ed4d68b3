package download

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// digest hashes the bytes of a download as they are written and
// compares the result against an expected hex string.
type digest struct {
	h    hash.Hash
	want string
}

func newDigest(h hash.Hash, want string) *digest {
	return &digest{h: h, want: strings.ToLower(strings.TrimSpace(want))}
}

// begin resets the hash, as the same option may serve a resent request.
func (d *digest) begin() {
	if d != nil {
		d.h.Reset()
	}
}

func (d *digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// verify reports an *Error wrapping ErrChecksumMismatch for dest when
// the sum differs. A nil digest always verifies.
func (d *digest) verify(dest string) error {
	if d == nil {
		return nil
	}

	got := hex.EncodeToString(d.h.Sum(nil))
	if got != d.want {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("%s: expected %s, got %s", dest, d.want, got),
		}
	}

	return nil
}
