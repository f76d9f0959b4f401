package temporalx

import (
	"context"
	"time"
)

// Backoff is a doubling retry schedule bounded by a total wait.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	MaxWait time.Duration
}

// Delay is Base doubled once per attempt after the first, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	if d <= 0 {
		d = 250 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Retry calls fn until it returns retry=false, ctx ends or MaxWait has passed. It returns the
// last error from fn. A zero MaxWait means a single attempt.
func (b Backoff) Retry(ctx context.Context, fn func(ctx context.Context, attempt int) (retry bool, err error)) error {
	deadline := time.Now().Add(b.MaxWait)
	for attempt := 1; ; attempt++ {
		retry, err := fn(ctx, attempt)
		if !retry || err == nil {
			return err
		}
		if b.MaxWait <= 0 || time.Now().After(deadline) {
			return err
		}
		t := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
