package apiclient

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum gap between consecutive calls by remembering
// when the previous call was issued and sleeping out the remainder. It never
// allows a burst: the second call always waits for the full interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewThrottle returns a throttle for the given interval. Zero disables waiting.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now, sleep: sleepContext}
}

// Wait blocks until the next call may be issued and marks it as issued.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interval > 0 && !t.last.IsZero() {
		if remaining := t.last.Add(t.interval).Sub(t.now()); remaining > 0 {
			if err := t.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	t.last = t.now()
	return nil
}

// Interval returns the configured minimum gap.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
