package client

import (
	"hash"

	"github.com/adamwoolhether/httpplus/client/download"
)

// ////////////////////////////////////////////////////////////////////
// Type aliases – re-export user-facing types from [download].

type (
	// DownloadOption configures a download started with [WithDownload].
	DownloadOption = download.Option

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error
)

// ////////////////////////////////////////////////////////////////////
// Sentinel errors

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download stopped because its call ended.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// ////////////////////////////////////////////////////////////////////
// Download option forwarding functions

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgressLog enables periodic download progress logging.
func WithProgressLog() DownloadOption { return download.WithProgressLog() }

// WithSkipExisting causes a download to succeed immediately when
// the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }
