// Package retry runs file operations that may collide with a producer still
// holding the file, retrying with bounded backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/starford/beamline/internal/apperr"
)

// Policy bounds the retry loop. Both MaxAttempts and MaxElapsed apply; the
// first one reached ends the loop.
type Policy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// DefaultPolicy waits one second between the first attempts, backing off to
// at most ten seconds, for up to two minutes.
func DefaultPolicy() Policy {
	return Policy{
		Interval:    time.Second,
		MaxInterval: 10 * time.Second,
		MaxAttempts: 30,
		MaxElapsed:  2 * time.Minute,
	}
}

// Guard wraps file operations with lock probing and retry.
type Guard struct {
	policy  Policy
	logger  *slog.Logger
	onRetry func(path string)
}

// Option configures a Guard.
type Option func(*Guard)

// WithRetryHook registers fn to be called before every retry wait.
func WithRetryHook(fn func(path string)) Option {
	return func(g *Guard) { g.onRetry = fn }
}

// NewGuard creates a Guard with the given policy.
func NewGuard(p Policy, logger *slog.Logger, opts ...Option) *Guard {
	if p.Interval <= 0 {
		p.Interval = DefaultPolicy().Interval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	g := &Guard{policy: p, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs op once the advisory lock on path can be taken, retrying while the
// file is held elsewhere. The probe lock is released before op runs so op can
// replace the file. Errors other than lock conflicts are returned at once.
// When the budget runs out the error wraps apperr.ErrRetryExhausted.
func (g *Guard) Do(ctx context.Context, path string, op func() error) error {
	_, err := g.DoCount(ctx, path, op)
	return err
}

// DoCount is Do that also reports how many retries were needed.
func (g *Guard) DoCount(ctx context.Context, path string, op func() error) (int, error) {
	attempt := 0
	run := func() error {
		attempt++
		if err := probe(path); err != nil {
			if errors.Is(err, apperr.ErrLocked) {
				return err
			}
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil {
			return nil
		}
		if IsLocked(err) {
			return fmt.Errorf("%w: %v", apperr.ErrLocked, err)
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		g.logger.Warn("retry: file busy, waiting",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
		if g.onRetry != nil {
			g.onRetry(path)
		}
	}

	err := backoff.RetryNotify(run, g.backOff(ctx), notify)
	retries := max(attempt-1, 0)
	if err == nil {
		return retries, nil
	}
	if errors.Is(err, apperr.ErrLocked) {
		return retries, fmt.Errorf("%w after %d attempts: %s: %v", apperr.ErrRetryExhausted, attempt, path, err)
	}
	return retries, err
}

func (g *Guard) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.policy.Interval
	eb.MaxInterval = g.policy.MaxInterval
	eb.MaxElapsedTime = g.policy.MaxElapsed
	eb.Multiplier = 1.5
	eb.RandomizationFactor = 0.2

	var b backoff.BackOff = eb
	if g.policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(g.policy.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// probe checks that nobody holds an advisory lock on path. flock creates the
// file it locks, so a missing file is reported before locking.
func probe(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		if IsLocked(err) {
			return fmt.Errorf("%w: %v", apperr.ErrLocked, err)
		}
		return fmt.Errorf("retry: probe %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrLocked, path)
	}
	return fl.Unlock()
}
