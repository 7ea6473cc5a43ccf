// Package guard wraps calls to external services (embedding endpoints,
// generative models) with rate limiting, per-attempt timeouts and bounded
// exponential-backoff retries.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Defaults applied to zero Config fields.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 5
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 2
	DefaultInitialBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
)

// Config tunes a Caller.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Caller is safe for concurrent use. The limiter is the only shared state
// and is never held while the wrapped call runs.
type Caller struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New returns a Caller. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Caller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Timeout returns the per-attempt timeout.
func (c *Caller) Timeout() time.Duration { return c.cfg.Timeout }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a permanent error, the parent
// context ends, or MaxRetries retries are spent. Every attempt waits for
// the rate limiter and runs under its own timeout.
func (c *Caller) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: attempt timed out after %s: %w", name, c.cfg.Timeout, err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialBackoff
	exp.MaxInterval = c.cfg.MaxBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("external call failed, retrying", "call", name, "attempt", attempt, "backoff", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
