package device_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/device"
	"github.com/calvinmclean/autoechem/pins"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStepper(t *testing.T, interval time.Duration) (*device.Stepper, *pins.Bank, *pins.SimClock) {
	t.Helper()
	clock := pins.NewSimClock(0)
	bank := pins.NewBank(clock, true)
	s, err := device.NewStepper("syringe", bank.Output("step", false), bank.Output("dir", false), bank.Output("en", false), clock, device.StepperConfig{
		StepInterval: interval,
	}, nil)
	require.NoError(t, err)
	bank.Reset()
	return s, bank, clock
}

func TestNewStepperStartsPoweredOff(t *testing.T) {
	clock := pins.NewSimClock(0)
	bank := pins.NewBank(clock, true)
	en := bank.Output("en", false)
	s, err := device.NewStepper("stirrer", bank.Output("step", false), bank.Output("dir", false), en, clock, device.StepperConfig{}, nil)
	require.NoError(t, err)

	assert.False(t, s.Enabled())
	assert.True(t, en.Get())
	assert.Equal(t, 1000*time.Microsecond, s.StepInterval())
	assert.Equal(t, 1600, s.StepsPerRevolution())
	assert.Equal(t, "stirrer", s.Name())
}

func TestPowerIsActiveLow(t *testing.T) {
	s, bank, _ := newTestStepper(t, time.Microsecond)

	require.NoError(t, s.PowerOn())
	assert.True(t, s.Enabled())
	require.NoError(t, s.PowerOn())
	assert.True(t, s.Enabled())

	require.NoError(t, s.PowerOff())
	assert.False(t, s.Enabled())
	require.NoError(t, s.PowerOff())
	assert.False(t, s.Enabled())

	levels := []bool{}
	for _, e := range bank.Events() {
		levels = append(levels, e.Level)
	}
	assert.Equal(t, []bool{false, false, true, true}, levels)
}

func TestStepPulseTrain(t *testing.T) {
	s, bank, clock := newTestStepper(t, 250*time.Microsecond)

	require.NoError(t, s.Step(context.Background(), 4))

	assert.Equal(t, 4, bank.Pulses("step"))
	assert.Equal(t, 2*250*time.Microsecond*4, clock.Elapsed())

	events := bank.Events()
	require.Len(t, events, 8)
	for i, e := range events {
		assert.Equal(t, "step", e.Pin)
		assert.Equal(t, i%2 == 0, e.Level, "pulse %d must be high then low", i/2)
		assert.Equal(t, time.Duration(i)*250*time.Microsecond, e.At)
	}
}

func TestStepZero(t *testing.T) {
	s, bank, clock := newTestStepper(t, time.Millisecond)
	require.NoError(t, s.Step(context.Background(), 0))
	assert.Empty(t, bank.Events())
	assert.Zero(t, clock.Elapsed())
}

func TestMoveSetsDirectionBeforePulses(t *testing.T) {
	s, bank, _ := newTestStepper(t, time.Microsecond)

	require.NoError(t, s.Move(context.Background(), autoechem.DirectionForward, 2))
	assert.Equal(t, autoechem.DirectionForward, s.Direction())

	events := bank.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, pins.Event{At: 0, Pin: "dir", Level: true}, events[0])
	assert.Equal(t, 2, bank.Pulses("step"))

	require.NoError(t, s.Move(context.Background(), autoechem.DirectionReverse, 1))
	assert.Equal(t, autoechem.DirectionReverse, s.Direction())
	assert.Equal(t, 3, bank.Pulses("step"))
}

func TestMoveMM(t *testing.T) {
	tests := []struct {
		name       string
		mm         float64
		stepsPerMM float64
		expected   int
	}{
		{"Whole", 128, 800, 102400},
		{"RoundDown", 0.3, 10, 3},
		{"RoundUp", 0.26, 10, 3},
		{"HalfAwayFromZero", 0.25, 10, 3},
		{"NegativeUsesMagnitude", -2, 4, 8},
		{"Zero", 0, 800, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := pins.NewSimClock(0)
			bank := pins.NewBank(clock, false)
			s, err := device.NewStepper("autosampler", bank.Output("step", false), bank.Output("dir", false), bank.Output("en", false), clock, device.StepperConfig{
				StepInterval: time.Microsecond,
			}, nil)
			require.NoError(t, err)

			require.NoError(t, s.MoveMM(context.Background(), autoechem.DirectionForward, tt.mm, tt.stepsPerMM))
			assert.Equal(t, tt.expected, bank.Pulses("step"))
			assert.Equal(t, time.Duration(2*tt.expected)*time.Microsecond, clock.Elapsed())
		})
	}
}

func TestSetStepInterval(t *testing.T) {
	s, _, clock := newTestStepper(t, time.Millisecond)
	s.SetStepInterval(10 * time.Microsecond)
	require.NoError(t, s.Step(context.Background(), 5))
	assert.Equal(t, 100*time.Microsecond, clock.Elapsed())
}

func TestStepCancelled(t *testing.T) {
	s, bank, _ := newTestStepper(t, time.Microsecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Step(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, bank.Pulses("step"))
}

func TestStepHardwareFault(t *testing.T) {
	s, bank, _ := newTestStepper(t, time.Microsecond)
	require.NoError(t, s.PowerOn())

	pinErr := errors.New("gpio write failed")
	bank.FailOn("step", pinErr)

	err := s.Step(context.Background(), 3)
	var hf *device.HardwareFault
	require.ErrorAs(t, err, &hf)
	assert.Equal(t, "syringe", hf.Device)
	assert.Equal(t, "step", hf.Op)
	assert.ErrorIs(t, err, pinErr)

	// no automatic shutdown
	assert.True(t, s.Enabled())
}

func TestLeadScrewStepsPerMM(t *testing.T) {
	spmm, err := device.LeadScrew{StepAngle: 1.8, LeadMM: 8, Microstepping: 32}.StepsPerMM()
	require.NoError(t, err)
	assert.InDelta(t, 800, spmm, 1e-9)

	_, err = device.LeadScrew{StepAngle: 1.8, LeadMM: 0, Microstepping: 32}.StepsPerMM()
	assert.Error(t, err)
}
