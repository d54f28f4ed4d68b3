package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adamwoolhether/httpplus/client/progress"
)

// Handle streams body to a temp file in the same directory as destPath,
// which is renamed to destPath on success. On any error the temp file is
// removed. It returns the number of bytes written.
//
// contentLength may be negative when unknown, in which case no length
// check is made and no progress is reported.
func Handle(ctx context.Context, body io.Reader, contentLength int64, destPath string, logger *slog.Logger, optFns ...Option) (int64, error) {
	if destPath == "" {
		return 0, ErrEmptyDestination
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return 0, fmt.Errorf("applying option: %w", err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			logger.Info("skipping existing file", "path", destPath)
			return 0, nil
		}
	}

	body = &contextReader{ctx: ctx, r: body}

	file, err := os.CreateTemp(filepath.Dir(destPath), ".httpplus-dl-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing temp file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil {
				logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	var writer io.Writer = file
	if opts.checksum != nil {
		opts.checksum.begin()
		writer = io.MultiWriter(writer, opts.checksum)
	}

	if report := opts.reporter(logger, destPath); report != nil {
		writer = progress.NewWriter(writer, contentLength, report)
	}

	n, err := io.Copy(writer, body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
		}

		return n, fmt.Errorf("copying file body: %w", err)
	}

	if contentLength >= 0 && n != contentLength {
		return n, &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, n),
		}
	}

	if err := opts.checksum.verify(destPath); err != nil {
		return n, err
	}

	if err := file.Sync(); err != nil {
		return n, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), destPath); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true

	return n, nil
}

// reporter combines the caller's progress func with the progress log.
func (opts options) reporter(logger *slog.Logger, dest string) progress.Func {
	fn := opts.progressFn
	if !opts.progressLog {
		return fn
	}

	pl := &progressLog{logger: logger, dest: dest, startTime: time.Now()}
	if fn == nil {
		return pl.report
	}

	return func(e progress.Event) {
		pl.report(e)
		fn(e)
	}
}
