package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryBase     = time.Second
	defaultRetryAttempts = 3
)

// RetryOptions tunes WithRetry. A zero Base or a nil MaxRetries selects the
// default; an explicit MaxRetries of 0 runs op once.
type RetryOptions struct {
	Base       time.Duration
	MaxRetries *uint64
}

// Retries returns a MaxRetries value for RetryOptions.
func Retries(n uint64) *uint64 {
	return &n
}

// WithRetry runs op, retrying network failures and 5xx responses with
// exponential backoff. Any other error is returned immediately.
func WithRetry(ctx context.Context, opts RetryOptions, op func(ctx context.Context) error) error {
	base := opts.Base
	if base <= 0 {
		base = defaultRetryBase
	}
	retries := uint64(defaultRetryAttempts)
	if opts.MaxRetries != nil {
		retries = *opts.MaxRetries
	}

	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Retryable reports whether err is transient: no response at all, or a 5xx.
func Retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return !errors.Is(netErr.Err, context.Canceled)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return false
}
