package pins

import (
	"sync"
	"time"

	"github.com/calvinmclean/autoechem/deadline"
	"github.com/calvinmclean/autoechem/device"
)

// SimClock is a virtual clock that only advances when Delay is called, so simulated runs complete
// instantly while keeping the same timing arithmetic as real hardware
type SimClock struct {
	mtx     sync.Mutex
	base    deadline.Ticks
	elapsed time.Duration
}

var _ deadline.Clock = (*SimClock)(nil)

// NewSimClock starts a virtual clock at the given tick count. Starting close to the maximum tick
// value exercises counter wraparound.
func NewSimClock(start deadline.Ticks) *SimClock {
	return &SimClock{base: start}
}

func (c *SimClock) Now() deadline.Ticks {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.base + deadline.Ticks(uint64(c.elapsed/deadline.TickPeriod))
}

func (c *SimClock) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mtx.Lock()
	c.elapsed += d
	c.mtx.Unlock()
}

// Elapsed returns the total virtual time spent in Delay
func (c *SimClock) Elapsed() time.Duration {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.elapsed
}

// Event is one level change on a simulated pin
type Event struct {
	At    time.Duration
	Pin   string
	Level bool
}

// Bank creates simulated outputs that share a clock and an optional event trace
type Bank struct {
	mtx    sync.Mutex
	clock  *SimClock
	record bool
	events []Event
	pulses map[string]int
	failOn map[string]error
}

// NewBank creates a Bank. When record is true every level change is kept in Events. Rising edges
// are always counted.
func NewBank(clock *SimClock, record bool) *Bank {
	return &Bank{
		clock:  clock,
		record: record,
		pulses: map[string]int{},
		failOn: map[string]error{},
	}
}

// Output creates a simulated output starting at the initial level. The initial level is not
// recorded as an event.
func (b *Bank) Output(name string, initial bool) *SimOutput {
	return &SimOutput{bank: b, name: name, level: initial}
}

// FailOn makes every Set on the named pin return err
func (b *Bank) FailOn(name string, err error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.failOn[name] = err
}

// Events returns a copy of the recorded trace
func (b *Bank) Events() []Event {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return append([]Event(nil), b.events...)
}

// Pulses returns the number of rising edges seen on the named pin
func (b *Bank) Pulses(name string) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.pulses[name]
}

// Reset clears the trace and pulse counters
func (b *Bank) Reset() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.events = nil
	b.pulses = map[string]int{}
}

func (b *Bank) set(o *SimOutput, high bool) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.failOn[o.name]; err != nil {
		return err
	}

	if high && !o.level {
		b.pulses[o.name]++
	}
	o.level = high

	if b.record {
		b.events = append(b.events, Event{At: b.clock.Elapsed(), Pin: o.name, Level: high})
	}
	return nil
}

// SimOutput is a simulated digital output
type SimOutput struct {
	bank  *Bank
	name  string
	level bool
}

var _ device.DigitalOutput = (*SimOutput)(nil)

func (o *SimOutput) Set(high bool) error {
	return o.bank.set(o, high)
}

func (o *SimOutput) Get() bool {
	o.bank.mtx.Lock()
	defer o.bank.mtx.Unlock()
	return o.level
}

func (o *SimOutput) String() string {
	return o.name
}
