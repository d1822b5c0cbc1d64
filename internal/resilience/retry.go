// Package resilience guards provider calls with bounded retry, a circuit
// breaker, and a per-user quota. Each guard fails fast with a sentinel from
// the statements package so callers can branch on errors.Is.
package resilience

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds the retry loop for transient provider failures
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the provider-call retry policy
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Retry runs fn up to MaxAttempts times, doubling the delay between
// attempts up to MaxDelay. Only errors that transient classifies as
// retryable are retried; everything else returns immediately. The last
// error is returned when all attempts fail.
func Retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, transient func(error) bool, fn func(context.Context) error) error {
	delay := policy.InitialDelay

	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !transient(err) || attempt == policy.MaxAttempts {
			return err
		}

		logger.Warn("transient failure, retrying",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return err
}
