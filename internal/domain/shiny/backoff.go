package shiny

import (
	"context"
	"time"
)

// DefaultInitialBackoff is the first retry delay.
const DefaultInitialBackoff = time.Second

// Backoff doubles its delay on every call to Next. There is no jitter and no
// cap; the attempt budget bounds it.
type Backoff struct {
	next time.Duration
}

// NewBackoff starts at initial.
func NewBackoff(initial time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	return &Backoff{next: initial}
}

// Next returns the current delay and doubles it for the following call.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
