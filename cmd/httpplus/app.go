package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/adamwoolhether/httpplus/client"
	"github.com/adamwoolhether/httpplus/client/progress"
	"github.com/adamwoolhether/httpplus/config"
)

var errMalformedPair = errors.New("malformed pair")

// app holds the flags shared by every subcommand.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	verbose  bool
	params   []string
	headers  []string
	expect   int
	timeouts client.Timeouts
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
}

// client builds a client from the environment, with the timeout flags
// taking precedence.
func (a *app) client(logger *slog.Logger) (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if a.timeouts.Connect > 0 {
		cfg.ConnectTimeout = a.timeouts.Connect
	}
	if a.timeouts.Write > 0 {
		cfg.WriteTimeout = a.timeouts.Write
	}
	if a.timeouts.Read > 0 {
		cfg.ReadTimeout = a.timeouts.Read
	}

	c, err := client.Build(cfg.Options(logger)...)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}

	return c, nil
}

// common is the setter set every builder shares.
type common[B any] interface {
	SetParams(map[string]string) B
	SetHeaders(map[string]string) B
	Expect(int) B
}

// configure applies the shared flags to b.
func configure[B common[B]](a *app, b B) (B, error) {
	params, err := parsePairs(a.params, "=")
	if err != nil {
		return b, fmt.Errorf("parsing params: %w", err)
	}

	headers, err := parsePairs(a.headers, ":")
	if err != nil {
		return b, fmt.Errorf("parsing headers: %w", err)
	}

	b.SetParams(params)
	b.SetHeaders(headers)
	if a.expect != 0 {
		b.Expect(a.expect)
	}

	return b, nil
}

// parsePairs splits every pair around its first sep. Later pairs win.
func parsePairs(pairs []string, sep string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, err := splitPair(pair, sep)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}

	return m, nil
}

// splitPair splits pair around its first sep, trimming both halves.
func splitPair(pair, sep string) (string, string, error) {
	k, v, ok := strings.Cut(pair, sep)
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("%w: %q, want key%svalue", errMalformedPair, pair, sep)
	}

	return k, strings.TrimSpace(v), nil
}

// outcome collects the terminal event of a call.
type outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

func (o *outcome) finish(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// listener renders progress to a bar on stderr when withBar is set, and
// copies a successful response body to out when out is not nil.
func (a *app) listener(o *outcome, withBar bool, out io.Writer, logger *slog.Logger) client.Listener {
	l := client.Listener{
		OnStart: func() {
			logger.Debug("request started")
		},
		OnResponse: func(resp *http.Response) {
			logger.Debug("response received", "status", resp.StatusCode, "length", resp.ContentLength)
			if out == nil {
				o.finish(nil)
				return
			}
			if _, err := io.Copy(out, resp.Body); err != nil {
				o.finish(fmt.Errorf("writing response: %w", err))
				return
			}
			o.finish(nil)
		},
		OnFailure: func(err error) {
			o.finish(err)
		},
	}

	if withBar {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(a.stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(a.stderr, "\n")
			}),
		)
		l.OnProgress = func(e progress.Event) {
			_ = bar.Set(e.Percent)
		}
	}

	return l
}

// wait blocks until the call behind o completes.
func wait(call *client.Call, o *outcome) error {
	<-call.Done()
	select {
	case <-o.done:
		return o.err
	default:
		return call.Err()
	}
}
