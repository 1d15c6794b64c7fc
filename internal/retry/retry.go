package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/minstrelbot/minstrel/custom_errors"
)

// Options controls a bounded retry loop.
type Options struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool                      // double the delay after every failed attempt
	OnRetry     func(err error, attempt int) // invoked before each sleep
}

// sleep is swapped out in tests.
var sleep = time.Sleep

// Do runs op up to MaxAttempts times, sleeping between attempts. With
// Backoff the wait after attempt k is Delay*2^(k-1); without it the delay
// is fixed. The last error is returned once attempts are exhausted. The
// inter-attempt sleep is not cancellable; ctx is only passed through to op.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts {
			break
		}
		wait := waitFor(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(err, attempt)
		}
		sleep(wait)
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", opts.MaxAttempts, lastErr)
}

// DoWithCondition behaves like Do but also rejects a structurally
// successful result that fails the predicate, treating it as retryable.
// When the final attempt's result still fails the predicate, the caller
// gets ErrConditionNotMet rather than the unsatisfying value.
func DoWithCondition[T any](ctx context.Context, op func(ctx context.Context) (T, error), condition func(T) bool, opts Options) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if condition(result) {
				return result, nil
			}
			lastErr = custom_errors.ErrConditionNotMet
		} else {
			lastErr = err
		}

		if attempt == opts.MaxAttempts {
			break
		}
		wait := waitFor(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(lastErr, attempt)
		}
		sleep(wait)
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", opts.MaxAttempts, lastErr)
}

func waitFor(opts Options, attempt int) time.Duration {
	if !opts.Backoff {
		return opts.Delay
	}
	return opts.Delay << (attempt - 1)
}
