// Package retry polls an operation with exponential backoff.  The CLI
// uses it to wait for the control API to come up before issuing
// requests, and the SSH dialer to ride out a gateway that is still
// starting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// PermanentError stops a [Backoff.Do] loop without further attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff describes a retry schedule.  Zero fields take the defaults
// noted on each.
type Backoff struct {
	Initial    time.Duration // first wait, default 100ms
	Max        time.Duration // cap on any single wait, default 5s
	Multiplier float64       // growth per attempt, default 2
	Attempts   int           // total tries including the first; 0 = until ctx ends
	Jitter     bool          // spread each wait by ±20%

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultBackoff suits short local waits such as a daemon starting up.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
		Attempts:   8,
		Jitter:     true,
	}
}

// Delay returns the wait after the given 1-based failed attempt,
// before jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	limit := b.Max
	if limit <= 0 {
		limit = 5 * time.Second
	}
	mult := b.Multiplier
	if mult <= 1 {
		mult = 2
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Do calls fn until it returns nil, returns a permanent error, the
// attempt budget runs out, or ctx ends.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.Attempts > 0 && attempt >= b.Attempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := b.Delay(attempt)
		if b.Jitter {
			wait = jitter(wait)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w (last error: %v)", ctx.Err(), err)
		case <-t.C:
		}
	}
}

func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.2
	out := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	if out < time.Millisecond {
		return time.Millisecond
	}
	return out
}
