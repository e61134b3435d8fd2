package deadline

import (
	"time"
)

// spinThreshold is the delay below which SystemClock spins instead of sleeping. The scheduler
// cannot wake a goroutine with microsecond accuracy.
const spinThreshold = time.Millisecond

// SystemClock reads Go's monotonic clock
type SystemClock struct {
	epoch time.Time
}

var _ Clock = (*SystemClock)(nil)

// NewSystemClock starts a clock whose ticks count from now
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now truncates the elapsed milliseconds to 32 bits, so it wraps roughly every 49.7 days
func (c *SystemClock) Now() Ticks {
	return Ticks(uint64(time.Since(c.epoch) / TickPeriod))
}

// Delay sleeps for the coarse part of d and spins for the rest
func (c *SystemClock) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	if d > spinThreshold {
		time.Sleep(d - spinThreshold)
	}
	for time.Since(start) < d {
	}
}
