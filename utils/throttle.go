package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a pause of at least one interval between the end of one
// pass and the start of the next. The first Wait never blocks.
type Throttle struct {
	interval time.Duration
	lim      *rate.Limiter
}

// NewThrottle creates a Throttle pausing interval after every pass.
// A non-positive interval disables pacing.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{interval: interval, lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the pause after the last Done has elapsed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.lim.Wait(ctx)
}

// Done marks the end of a pass; the next Wait starts counting from here.
func (t *Throttle) Done() {
	if t.interval <= 0 {
		return
	}
	// an empty bucket at now refills exactly one interval later
	lim := rate.NewLimiter(rate.Every(t.interval), 1)
	lim.AllowN(time.Now(), 1)
	t.lim = lim
}
