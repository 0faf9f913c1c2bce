package perrors

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestDelayIsWithinJitterBounds(t *testing.T) {
	cfg := DefaultBackoff()
	rng := rand.New(rand.NewSource(1))
	for k := 1; k <= 8; k++ {
		d := cfg.Delay(k, rng)
		if d <= 0 || d > cfg.Max {
			t.Errorf("Delay(%d) = %v, want in (0, %v]", k, d, cfg.Max)
		}
	}
}

func TestDelayCapsAtMax(t *testing.T) {
	cfg := BackoffConfig{Base: time.Second, Max: 2 * time.Second, Multiplier: 10}
	rng := rand.New(rand.NewSource(1))
	if d := cfg.Delay(5, rng); d > cfg.Max {
		t.Errorf("Delay(5) = %v, want <= %v", d, cfg.Max)
	}
}

func TestRetrySucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultBackoff(), 5, rand.New(rand.NewSource(1)), func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	want := NewAuth("bad credentials", nil)
	err := Retry(context.Background(), DefaultBackoff(), 5, rand.New(rand.NewSource(1)), func(attempt int) error {
		calls++
		return want
	})
	if !errors.Is(err, want) && err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable errors must not retry)", calls)
	}
}

func TestRetryExhaustsMaxAttemptsOnRetryableError(t *testing.T) {
	calls := 0
	cfg := BackoffConfig{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, 3, rand.New(rand.NewSource(1)), func(attempt int) error {
		calls++
		return NewNetwork("transient", nil)
	})
	if err == nil {
		t.Fatal("Retry: want an error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	cfg := BackoffConfig{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	err := Retry(context.Background(), cfg, 5, rand.New(rand.NewSource(1)), func(attempt int) error {
		calls++
		if attempt < 3 {
			return NewNetwork("transient", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := BackoffConfig{Base: time.Hour, Max: time.Hour, Multiplier: 1}
	calls := 0
	err := Retry(ctx, cfg, 5, rand.New(rand.NewSource(1)), func(attempt int) error {
		calls++
		cancel()
		return NewNetwork("transient", nil)
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
