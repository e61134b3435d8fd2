// Package deadline bounds busy-wait loops with monotonic deadlines. Tick counters are 32 bits wide
// and wrap around, so every comparison goes through Diff.
package deadline

import (
	"context"
	"math"
	"time"
)

// Ticks is a wrapping millisecond counter
type Ticks uint32

// TickPeriod is the duration of one tick
const TickPeriod = time.Millisecond

// MaxDuration is the longest interval that Diff can represent
const MaxDuration = time.Duration(math.MaxInt32) * TickPeriod

// waitSlice bounds a single Delay inside Wait so cancellation is noticed promptly
const waitSlice = 10 * time.Millisecond

// Clock provides monotonic ticks and short blocking delays
type Clock interface {
	Now() Ticks
	// Delay blocks for at least d
	Delay(d time.Duration)
}

// Add returns t advanced by n ticks, wrapping around
func Add(t Ticks, n uint32) Ticks {
	return t + Ticks(n)
}

// Diff returns the signed distance from b to a. It is correct across counter wraparound as long
// as the real distance fits in an int32.
func Diff(a, b Ticks) int32 {
	return int32(a - b)
}

// ToTicks converts a duration to whole ticks, rounding up so waits are never short
func ToTicks(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	if d >= MaxDuration {
		return math.MaxInt32
	}
	return uint32((d + TickPeriod - 1) / TickPeriod)
}

// Deadline is an absolute point in monotonic time
type Deadline struct {
	at Ticks
}

// Start returns a Deadline that lapses no earlier than d from now. Now may be read part-way through
// a tick, so one extra tick is added to any non-zero duration.
func Start(c Clock, d time.Duration) Deadline {
	n := ToTicks(d)
	if n > 0 && n < math.MaxInt32 {
		n++
	}
	return Deadline{at: Add(c.Now(), n)}
}

// Remaining is positive while time remains and zero or negative once the deadline has lapsed
func (dl Deadline) Remaining(c Clock) time.Duration {
	return time.Duration(Diff(dl.at, c.Now())) * TickPeriod
}

// Expired reports whether the deadline has lapsed
func (dl Deadline) Expired(c Clock) bool {
	return dl.Remaining(c) <= 0
}

// Loop repeats work until d has elapsed. The deadline is only checked between units of work, so the
// total time spent is at least d, rounded up to a whole unit. A zero duration does no work.
func Loop(ctx context.Context, c Clock, d time.Duration, work func() error) error {
	return Start(c, d).loop(ctx, c, work)
}

func (dl Deadline) loop(ctx context.Context, c Clock, work func() error) error {
	for dl.Remaining(c) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := work(); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks for d, checking ctx at least every waitSlice
func Wait(ctx context.Context, c Clock, d time.Duration) error {
	dl := Start(c, d)
	return dl.loop(ctx, c, func() error {
		remaining := dl.Remaining(c)
		if remaining > waitSlice {
			remaining = waitSlice
		}
		c.Delay(remaining)
		return nil
	})
}
