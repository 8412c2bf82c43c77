package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 800 * time.Millisecond

	prev := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		wait := Backoff(attempt, base, cap)
		if wait < base {
			t.Fatalf("attempt %d: wait %v below base", attempt, wait)
		}
		// Cap plus maximum jitter bounds every wait.
		if wait > cap+cap/2 {
			t.Fatalf("attempt %d: wait %v exceeds cap with jitter", attempt, wait)
		}
		if attempt <= 3 && wait <= prev/2 {
			t.Fatalf("attempt %d: wait %v did not grow from %v", attempt, wait, prev)
		}
		prev = wait
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, 10*time.Millisecond,
		func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		},
		func(error) {},
	)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("always failing")
	err := Retry(context.Background(), 4, time.Millisecond, 10*time.Millisecond,
		func() error { calls++; return wantErr },
		func(error) {},
	)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 10, time.Second, time.Minute,
		func() error { return errors.New("transient") },
		func(error) {},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
