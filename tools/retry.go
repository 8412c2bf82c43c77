package tools

import (
	"context"
	"math/rand"
	"time"
)

type ActionFunc = func() error
type LogFunc = func(error)

// Backoff returns the wait before retry number `attempt` (starting at 1):
// base doubled per attempt, capped, with up to 50% random jitter added so
// concurrent rounds don't retry in lockstep.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= cap {
			wait = cap
			break
		}
	}
	return wait + time.Duration(rand.Int63n(int64(wait)/2+1))
}

// Sleep waits for d or until ctx is cancelled, reporting which.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs action up to `retries` times with exponential backoff,
// logging each failure through log. Used for chain reads where the retry
// state doesn't need to survive a restart; the submission path keeps its
// own persisted attempt counter instead.
func Retry(ctx context.Context, retries int, base, cap time.Duration, action ActionFunc, log LogFunc) error {
	var err error
	for i := 1; i <= retries; i++ {
		if err = action(); err == nil {
			return nil
		}
		log(err)
		if i == retries {
			break
		}
		if serr := Sleep(ctx, Backoff(i, base, cap)); serr != nil {
			return serr
		}
	}
	return err
}
