package libgo365

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls how transient Graph failures are retried
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy retries rate-limited and transient failures up to four times within 30 seconds
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        4,
	InitialInterval: 500 * time.Millisecond,
	MaxElapsed:      30 * time.Second,
}

// NoRetry disables retries entirely
var NoRetry = RetryPolicy{MaxTries: 1}

// retryAfterBackOff prefers a server supplied Retry-After over the exponential schedule
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.next > 0 {
		d := b.next
		b.next = 0
		return d
	}
	return b.BackOff.NextBackOff()
}

// retryable decides whether a failed attempt may be repeated. POST and PUT
// are only repeated when Graph signals that the request was not processed.
func retryable(method string, apiErr *Error) bool {
	switch method {
	case http.MethodGet, http.MethodDelete:
		return apiErr.Transient()
	default:
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusServiceUnavailable
	}
}

// withRetry runs attempt under the client's retry policy
func (c *Client) withRetry(ctx context.Context, method string, attempt func() ([]byte, error)) ([]byte, error) {
	policy := c.retry
	if policy.MaxTries == 0 {
		policy = DefaultRetryPolicy
	}

	exp := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		exp.InitialInterval = policy.InitialInterval
	}
	b := &retryAfterBackOff{BackOff: exp}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Debug("retrying graph request", "method", method, "wait", wait, "error", err.Error())
		}),
	}
	if policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsed))
	}

	return backoff.Retry(ctx, func() ([]byte, error) {
		data, err := attempt()
		if err == nil {
			return data, nil
		}

		var apiErr *Error
		if errors.As(err, &apiErr) && retryable(method, apiErr) {
			b.next = apiErr.RetryAfter
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, opts...)
}
