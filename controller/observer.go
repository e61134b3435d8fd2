package controller

import (
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/deadline"
	"github.com/calvinmclean/autoechem/sequencer"

	"go.uber.org/zap/zapcore"
)

// observerGroup fans phase changes out to several observers
type observerGroup []sequencer.Observer

var _ sequencer.Observer = observerGroup{}

// PhaseChanged implements sequencer.Observer.
func (g observerGroup) PhaseChanged(phase autoechem.Phase, vial int) {
	for _, o := range g {
		if o != nil {
			o.PhaseChanged(phase, vial)
		}
	}
}

// phaseTimer accumulates the time spent in each phase using the instrument clock, so simulated runs
// report virtual time
type phaseTimer struct {
	clock   deadline.Clock
	current autoechem.Phase
	since   deadline.Ticks
	totals  map[autoechem.Phase]time.Duration
	order   []autoechem.Phase
}

var (
	_ sequencer.Observer      = (*phaseTimer)(nil)
	_ zapcore.ObjectMarshaler = (*phaseTimer)(nil)
)

func newPhaseTimer(clock deadline.Clock) *phaseTimer {
	return &phaseTimer{
		clock:  clock,
		totals: map[autoechem.Phase]time.Duration{},
	}
}

// PhaseChanged implements sequencer.Observer.
func (t *phaseTimer) PhaseChanged(phase autoechem.Phase, _ int) {
	t.finish()
	t.current = phase
	t.since = t.clock.Now()
}

// finish closes the phase in progress
func (t *phaseTimer) finish() {
	if t.current == autoechem.PhaseUnknown {
		return
	}
	now := t.clock.Now()
	if _, ok := t.totals[t.current]; !ok {
		t.order = append(t.order, t.current)
	}
	t.totals[t.current] += time.Duration(deadline.Diff(now, t.since)) * deadline.TickPeriod
	t.since = now
}

// Total returns the time spent in a phase so far
func (t *phaseTimer) Total(phase autoechem.Phase) time.Duration {
	return t.totals[phase]
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (t *phaseTimer) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, p := range t.order {
		enc.AddDuration(p.String(), t.totals[p])
	}
	return nil
}
