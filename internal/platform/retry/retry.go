// Package retry runs an operation a bounded number of times with a delay
// between attempts.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how many times to try and how long to wait in between.
type Policy struct {
	MaxAttempts int
	// Delay returns the wait after the given failed attempt (1-based).
	Delay func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done. Nil means a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, when set, is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Linear waits attempt × step after each failure.
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Default is three attempts with a linear one-second back-off.
func Default() Policy {
	return Policy{MaxAttempts: 3, Delay: Linear(time.Second)}
}

// Error reports an operation that failed on every attempt.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Do calls fn until it succeeds or the attempts run out. On exhaustion it
// returns an *Error carrying the attempt count and the last failure. A
// cancelled context stops the loop early with the attempts made so far.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == max {
			return &Error{Attempts: attempt, Err: lastErr}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		var d time.Duration
		if p.Delay != nil {
			d = p.Delay(attempt)
		}
		if err := sleep(ctx, d); err != nil {
			return &Error{Attempts: attempt, Err: lastErr}
		}
	}
	return &Error{Attempts: max, Err: lastErr}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
