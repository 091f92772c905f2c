package auth0

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how key set downloads are retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RandomizationFactor spreads each delay by +/- the given fraction.
	RandomizationFactor float64
}

// DefaultRetryPolicy tries three times, starting at 100ms and doubling, with
// 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialDelay:        100 * time.Millisecond,
		MaxDelay:            2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// exponential returns the unbounded backoff schedule of p.
func (p RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.RandomizationFactor
	// attempts are bounded by MaxAttempts instead
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	bounded := backoff.WithMaxRetries(p.exponential(), uint64(p.attempts()-1))
	return backoff.WithContext(bounded, ctx)
}

// withRetry runs op until it succeeds, fails permanently (backoff.Permanent),
// or runs out of attempts. It returns the number of attempts made alongside
// the last error.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, int, error) {
	attempts := 0
	result, err := backoff.RetryWithData(func() (T, error) {
		attempts++
		return op(ctx)
	}, policy.backOff(ctx))
	return result, attempts, err
}
