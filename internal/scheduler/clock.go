package scheduler

import (
	"context"
	"time"
)

// Clock measures cycles and waits between them. Now must carry a
// monotonic reading so elapsed times are immune to wall-clock steps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done, whichever comes first.
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WakeLock is held while the loop runs, keeping the device from idling.
type WakeLock interface {
	Acquire() error
	Release() error
}

type noopWakeLock struct{}

func (noopWakeLock) Acquire() error { return nil }
func (noopWakeLock) Release() error { return nil }
