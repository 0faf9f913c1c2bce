package perrors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures exponential backoff with jitter, as used by the
// gateway client's transient-failure retry (spec.md §4.1, §4.8, invariant 9
// in §8). The remote session's reconnect loop has its own backoff type.
type BackoffConfig struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff matches spec.md's base 1s, cap 60s backoff.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Base: time.Second, Max: 60 * time.Second, Multiplier: 2.0}
}

// Delay returns the backoff delay for the k-th consecutive failure (k >= 1),
// jittered within [0.5, 1.5) of the nominal exponential value and capped at Max.
func (c BackoffConfig) Delay(k int, rng *rand.Rand) time.Duration {
	if k < 1 {
		k = 1
	}
	nominal := float64(c.Base) * math.Pow(c.Multiplier, float64(k-1))
	if nominal > float64(c.Max) {
		nominal = float64(c.Max)
	}
	jitter := 0.5 + rng.Float64()
	d := time.Duration(nominal * jitter)
	if d > c.Max {
		d = c.Max
	}
	return d
}

// Retry runs fn, retrying on retryable errors with exponential backoff until
// maxAttempts is exhausted or ctx is cancelled. It returns the last error on
// exhaustion. A nil rng uses a package-local source.
func Retry(ctx context.Context, cfg BackoffConfig, maxAttempts int, rng *rand.Rand, fn func(attempt int) error) error {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := cfg.Delay(attempt, rng)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
