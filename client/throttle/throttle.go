package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the gate's calls per second and burst capacity.
type Config struct {
	RPS   int `json:"rps"`
	Burst int `json:"burst"`
}

// Gate admits calls at a bounded rate. It is safe for concurrent use.
type Gate struct {
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

// New returns a Gate admitting rps calls per second with the given burst.
// A nil logger disables the exhaustion logs.
func New(rps, burst int, logger *slog.Logger) (*Gate, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}

	g := &Gate{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cfg:     Config{RPS: rps, Burst: burst},
		logger:  logger,
	}

	return g, nil
}

// Config returns the limits the gate was built with.
func (g *Gate) Config() Config { return g.cfg }

// Wait blocks until the call identified by callID may start.
func (g *Gate) Wait(ctx context.Context, callID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	if g.limiter.Allow() {
		return nil
	}

	if g.logger != nil {
		g.logger.Info("throttle tokens exhausted", "call", callID, "rate", g.cfg.RPS, "burst", g.cfg.Burst)
	}

	start := time.Now()
	err := g.limiter.Wait(ctx)
	waited := time.Since(start)

	if g.logger != nil {
		g.logger.Info("throttle wait complete", "call", callID, "waited", waited.String(), "rate", g.cfg.RPS, "burst", g.cfg.Burst)
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}
