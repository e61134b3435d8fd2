package sequencer

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/device"
	"github.com/calvinmclean/autoechem/pins"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stepperNames = []string{"syringe", "autosampler", "stirrer"}

type rig struct {
	clock   *pins.SimClock
	bank    *pins.Bank
	devices Devices
}

// newRig builds real devices on simulated pins. The clock starts just below the tick counter's
// wraparound point.
func newRig(t *testing.T) *rig {
	t.Helper()
	clock := pins.NewSimClock(math.MaxUint32 - 5)
	bank := pins.NewBank(clock, true)

	newStepper := func(name string, interval time.Duration) *device.Stepper {
		s, err := device.NewStepper(name, bank.Output(name+".step", false), bank.Output(name+".dir", false), bank.Output(name+".en", false), clock, device.StepperConfig{
			StepInterval: interval,
		}, nil)
		require.NoError(t, err)
		return s
	}

	pump, err := device.NewPump("pump", bank.Output("pump", false), nil)
	require.NoError(t, err)
	cathode, err := device.NewValve("cathode", bank.Output("cathode", false), nil)
	require.NoError(t, err)
	anode, err := device.NewValve("anode", bank.Output("anode", false), nil)
	require.NoError(t, err)

	r := &rig{
		clock: clock,
		bank:  bank,
		devices: Devices{
			Syringe:     newStepper("syringe", time.Microsecond),
			Autosampler: newStepper("autosampler", time.Microsecond),
			Stirrer:     newStepper("stirrer", time.Millisecond),
			Pump:        pump,
			Cathode:     cathode,
			Anode:       anode,
		},
	}
	bank.Reset()
	return r
}

type move struct {
	forward bool
	pulses  int
}

// moves splits the trace of one stepper into power-on windows
func (r *rig) moves(name string) []move {
	var result []move
	var cur *move
	dir := false
	for _, e := range r.bank.Events() {
		switch e.Pin {
		case name + ".dir":
			dir = e.Level
		case name + ".en":
			if !e.Level && cur == nil {
				cur = &move{}
			}
			if e.Level && cur != nil {
				result = append(result, *cur)
				cur = nil
			}
		case name + ".step":
			if e.Level && cur != nil {
				cur.forward = dir
				cur.pulses++
			}
		}
	}
	return result
}

type recordingConsole struct {
	lines    []string
	confirms []int
	answer   func(vial int) error
}

func (c *recordingConsole) Confirm(_ context.Context, vial int) error {
	c.confirms = append(c.confirms, vial)
	if c.answer != nil {
		return c.answer(vial)
	}
	return nil
}

func (c *recordingConsole) Println(msg string) {
	c.lines = append(c.lines, msg)
}

func TestRunFullProtocol(t *testing.T) {
	r := newRig(t)
	console := &recordingConsole{}
	var phases []autoechem.Phase

	s, err := New(r.devices, validPlan(), r.clock,
		WithConsole(console),
		WithObserver(ObserverFunc(func(p autoechem.Phase, _ int) {
			phases = append(phases, p)
		})),
	)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, autoechem.PhaseDone, s.Phase())

	t.Run("CarriageMoves", func(t *testing.T) {
		assert.Equal(t, []move{
			{forward: true, pulses: 128},  // priming: first vial to waste
			{forward: false, pulses: 128}, // priming: back to first vial
			{forward: true, pulses: 128},  // vial 1 to waste
			{forward: false, pulses: 108}, // waste to vial 2
			{forward: true, pulses: 108},  // vial 2 to waste
			{forward: false, pulses: 88},  // waste to vial 3
		}, r.moves("autosampler"))
	})

	t.Run("Syringe", func(t *testing.T) {
		assert.Equal(t, []move{
			{forward: false, pulses: 3},
			{forward: false, pulses: 2},
			{forward: false, pulses: 2},
		}, r.moves("syringe"))
	})

	t.Run("Stirring", func(t *testing.T) {
		// each stir pulse takes 2ms and deadlines carry one extra tick: 10ms reaction = 6 pulses,
		// 5ms cleaning = 3 pulses
		assert.Equal(t, []move{
			{forward: true, pulses: 6},
			{forward: true, pulses: 3},
			{forward: true, pulses: 6},
			{forward: true, pulses: 3},
		}, r.moves("stirrer"))
	})

	t.Run("Fluidics", func(t *testing.T) {
		// pump is active low, so a rising edge marks the end of each pump pulse
		assert.Equal(t, 3, r.bank.Pulses("pump"))
		assert.Equal(t, 6, r.bank.Pulses("cathode"))
		assert.Equal(t, 6, r.bank.Pulses("anode"))
	})

	t.Run("Console", func(t *testing.T) {
		assert.Equal(t, []int{0, 1}, console.confirms)
		assert.Equal(t, []string{
			"Experiment will start in 5ms, power on the potentiostat",
			"Experiment 1 started",
			"Experiment ended store your data",
			"Cleaning started",
			"Cleaning batch 1 done",
			"Cleaning Ended, do you want to start next experiment?",
			"Experiment will start in 5ms, power on the potentiostat",
			"Experiment 2 started",
			"Experiment ended store your data",
			"Cleaning started",
			"Cleaning batch 1 done",
			"Cleaning Ended, do you want to start next experiment?",
			"All experiments ended",
		}, console.lines)
	})

	t.Run("Phases", func(t *testing.T) {
		perVial := []autoechem.Phase{
			autoechem.PhaseDispensing,
			autoechem.PhaseWaitingForOperator,
			autoechem.PhaseSettling,
			autoechem.PhaseStirring,
			autoechem.PhaseDraining,
			autoechem.PhaseToWaste,
			autoechem.PhaseCleaning,
			autoechem.PhaseToNextVial,
		}
		expected := []autoechem.Phase{autoechem.PhasePriming}
		expected = append(expected, perVial...)
		expected = append(expected, perVial...)
		expected = append(expected, autoechem.PhaseDone)
		assert.Equal(t, expected, phases)
	})

	t.Run("OnlyOneStepperPoweredAndOnlyWhilePulsing", func(t *testing.T) {
		assertSinglePoweredStepper(t, r.bank.Events())
	})
}

// assertSinglePoweredStepper scans a trace: a stepper pulses only while it is the single powered stepper,
// and every stepper is off at the end
func assertSinglePoweredStepper(t *testing.T, events []pins.Event) {
	t.Helper()
	enabled := map[string]bool{}
	for _, e := range events {
		name, pin, ok := strings.Cut(e.Pin, ".")
		if !ok {
			continue
		}
		switch pin {
		case "en":
			enabled[name] = !e.Level
			if enabled[name] {
				for _, other := range stepperNames {
					if other != name {
						assert.False(t, enabled[other], "%s powered on while %s is on at %s", name, other, e.At)
					}
				}
			}
		case "step":
			if e.Level {
				assert.True(t, enabled[name], "%s pulsed while powered off at %s", name, e.At)
			}
		}
	}
	for _, name := range stepperNames {
		assert.False(t, enabled[name], "%s left powered on", name)
	}
}

func TestRunZeroExperimentsOnlyPrimes(t *testing.T) {
	r := newRig(t)
	plan := validPlan()
	plan.Experiments = 0
	plan.Coordinates = []float64{0}

	console := &recordingConsole{}
	var phases []autoechem.Phase
	s, err := New(r.devices, plan, r.clock,
		WithConsole(console),
		WithObserver(ObserverFunc(func(p autoechem.Phase, _ int) {
			phases = append(phases, p)
		})),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []autoechem.Phase{autoechem.PhasePriming, autoechem.PhaseDone}, phases)
	assert.Empty(t, console.confirms)
	assert.Equal(t, []string{"All experiments ended"}, console.lines)
	assert.Len(t, r.moves("autosampler"), 2)
	assert.Equal(t, 3, r.bank.Pulses("syringe.step"))
	assert.Zero(t, r.bank.Pulses("stirrer.step"))
	assert.Equal(t, 1, r.bank.Pulses("pump"))
	assertSinglePoweredStepper(t, r.bank.Events())
}

func TestRunZeroDurations(t *testing.T) {
	r := newRig(t)
	plan := validPlan()
	plan.Durations = Durations{}

	s, err := New(r.devices, plan, r.clock)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Zero(t, r.bank.Pulses("stirrer.step"))
	// stir phases still power the stirrer on and off
	assert.Len(t, r.moves("stirrer"), 4)
	assertSinglePoweredStepper(t, r.bank.Events())
}

func TestNewRejectsShortCoordinatesBeforeMoving(t *testing.T) {
	r := newRig(t)
	plan := validPlan()
	plan.Experiments = 3

	_, err := New(r.devices, plan, r.clock)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "coordinates", ce.Field)
	assert.Empty(t, r.bank.Events())
}

func TestNewRejectsMissingDevices(t *testing.T) {
	r := newRig(t)
	r.devices.Anode = nil

	_, err := New(r.devices, validPlan(), r.clock)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "devices.anode", ce.Field)

	r = newRig(t)
	_, err = New(r.devices, validPlan(), nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "clock", ce.Field)
}

func TestRunOperatorAbort(t *testing.T) {
	r := newRig(t)
	console := &recordingConsole{
		answer: func(vial int) error {
			if vial == 1 {
				return ErrAborted
			}
			return nil
		},
	}
	s, err := New(r.devices, validPlan(), r.clock, WithConsole(console))
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, err.Error(), "Waiting For Operator (vial 2)")
	assert.Equal(t, autoechem.PhaseWaitingForOperator, s.Phase())
	assert.Len(t, r.moves("stirrer"), 2)
	assertSinglePoweredStepper(t, r.bank.Events())
}

func TestRunCancelledWhileStirring(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(r.devices, validPlan(), r.clock,
		WithObserver(ObserverFunc(func(p autoechem.Phase, _ int) {
			if p == autoechem.PhaseStirring {
				cancel()
			}
		})),
	)
	require.NoError(t, err)

	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, autoechem.PhaseStirring, s.Phase())
	assert.Zero(t, r.bank.Pulses("stirrer.step"))
}

func TestRunHardwareFaultHalts(t *testing.T) {
	r := newRig(t)
	pinErr := errors.New("gpio write failed")
	r.bank.FailOn("cathode", pinErr)

	s, err := New(r.devices, validPlan(), r.clock)
	require.NoError(t, err)

	err = s.Run(context.Background())
	var hf *device.HardwareFault
	require.ErrorAs(t, err, &hf)
	assert.Equal(t, "cathode", hf.Device)
	assert.Equal(t, autoechem.PhasePriming, s.Phase())

	// pump had already run, nothing after the failing valve did
	assert.Equal(t, 1, r.bank.Pulses("pump"))
	assert.Zero(t, r.bank.Pulses("anode"))
	assert.Zero(t, r.bank.Pulses("syringe.step"))
}
