// Package retry wraps calls to external services in a bounded exponential
// backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// Policy is an explicit retry policy: a fixed attempt ceiling and an
// exponential backoff schedule with jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // extra random delay, as a fraction of the backoff

	// Sleep waits between attempts. nil uses a timer bound to ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.5,
	}
}

// Retryable is implemented by errors that know whether a retry can help.
type Retryable interface {
	Retryable() bool
}

// RetryAfterHint is implemented by errors carrying a server-provided delay.
type RetryAfterHint interface {
	RetryAfter() time.Duration
}

// IsRetryable checks if an error is worth retrying: a Retryable error that
// says so, or a network timeout. Context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Backoff returns the delay before retry n (0-indexed), without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}
	d := min(base, limit)
	for range attempt {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return d
}

func (p Policy) delay(attempt int, err error) time.Duration {
	d := p.Backoff(attempt)
	var hint RetryAfterHint
	if errors.As(err, &hint) {
		if ra := hint.RetryAfter(); ra > d {
			d = ra
			if p.MaxDelay > 0 && d > p.MaxDelay {
				d = p.MaxDelay
			}
			return d
		}
	}
	if p.Jitter > 0 {
		span := int64(math.MaxInt64)
		if f := float64(d) * p.Jitter; f < math.MaxInt64 {
			span = int64(f)
		}
		if span > 0 {
			j := time.Duration(rand.Int64N(span))
			if d > time.Duration(math.MaxInt64)-j {
				return time.Duration(math.MaxInt64)
			}
			d += j
		}
	}
	return d
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt ceiling is reached. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := range attempts {
		if err = op(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		d := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, err)
		}
		if serr := p.sleep(ctx, d); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
