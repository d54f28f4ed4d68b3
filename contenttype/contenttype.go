// Package contenttype resolves the MIME type of file attachments.
//
// Resolution never fails: anything that cannot be identified is
// reported as [Default].
package contenttype

import (
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Default is the MIME type of content that cannot be identified.
const Default = "application/octet-stream"

// Resolve returns the MIME type registered for the extension of name,
// or Default. Lookup goes through the system MIME tables.
func Resolve(name string) string {
	if t := byExtension(name); t != "" {
		return t
	}

	return Default
}

// Detect is like Resolve, but when the extension of path is unknown the
// file itself is sniffed. Unreadable files resolve to Default.
func Detect(path string) string {
	if t := byExtension(path); t != "" {
		return t
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Default
	}

	return mt.String()
}

func byExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}

	return mime.TypeByExtension(ext)
}
