package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Bounded retry combinator shared by the market data client and the signer
// ---------------------------------------------------------------------------

// BackoffFunc returns the wait before retry number n (1-based).
type BackoffFunc func(n int) time.Duration

// Exponential waits base * 2^n: 2s, 4s, 8s for base = 1s.
func Exponential(base time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		return base * time.Duration(1<<uint(n))
	}
}

// Linear waits step * n: 2s, 4s, 6s for step = 2s.
func Linear(step time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		return step * time.Duration(n)
	}
}

// Policy configures a retry loop.
type Policy struct {
	Op         string      // used in logs and the exhausted error
	MaxRetries int         // attempts = 1 + MaxRetries
	Backoff    BackoffFunc // nil = retry immediately
	// Retryable decides whether a failed attempt is retried. nil retries
	// every error that is not marked Permanent.
	Retryable func(error) bool
}

// Func is one attempt. attempt is 0 for the first call.
type Func func(ctx context.Context, attempt int) error

// ErrExhausted is wrapped into the error returned after the last attempt.
var ErrExhausted = errors.New("retries exhausted")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable. Do returns the inner error as-is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn until it succeeds, fails permanently, the policy rejects the
// error, or MaxRetries is spent. Context cancellation stops the wait
// between attempts.
func Do(ctx context.Context, p Policy, fn Func) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(0)
			if p.Backoff != nil {
				wait = p.Backoff(attempt)
			}
			log.Debug().
				Str("op", p.Op).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Err(lastErr).
				Msg("retry: attempt failed, backing off")

			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("%s: %w (last error: %v)", p.Op, ctx.Err(), lastErr)
				}
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", p.Op, ErrExhausted, p.MaxRetries+1, lastErr)
}
