// Package retry implements retry loops with pluggable backoff.
package retry

import (
	"context"
	"errors"
)

// Do runs operation until it succeeds, the condition refuses, attempts run
// out or ctx is done.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	_, err := DoWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts...)
	return err
}

// DoWithData is Do for operations returning a value.
// Failures are returned as *MultiError.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		result T
		errs   []error
	)
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		if cfg.timeout > 0 {
			opCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
			result, err = operation(opCtx)
			cancel()
		} else {
			result, err = operation(ctx)
		}
		if err == nil {
			return result, nil
		}
		errs = append(errs, err)

		if attempt == cfg.maxAttempts || !cfg.condition.ShouldRetry(err, attempt) {
			return result, &MultiError{Errors: errs, Attempts: attempt}
		}
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}

		wait := cfg.backoff.Next(attempt)
		if wait <= 0 {
			continue
		}
		select {
		case <-cfg.clock.After(wait):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	return result, &MultiError{Errors: errs, Attempts: cfg.maxAttempts}
}

// GetAttempts attempts recorded in err, 0 if err is not a retry failure
func GetAttempts(err error) int {
	var multiErr *MultiError
	if errors.As(err, &multiErr) {
		return multiErr.Attempts
	}
	return 0
}
