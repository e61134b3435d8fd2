package device

import (
	"context"
	"math"
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/deadline"

	"go.uber.org/zap"
)

// Stepper drives a step/dir/enable stepper driver. Enable is active-low: low powers the coils.
type Stepper struct {
	name   string
	step   DigitalOutput
	dir    DigitalOutput
	enable DigitalOutput
	clock  deadline.Clock
	logger *zap.Logger

	stepInterval       time.Duration
	stepsPerRevolution int
	direction          autoechem.Direction
}

// NewStepper creates a Stepper in the powered-off state
func NewStepper(name string, step, dir, enable DigitalOutput, clock deadline.Clock, cfg StepperConfig, logger *zap.Logger) (*Stepper, error) {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = defaultStepInterval
	}
	if cfg.StepsPerRevolution <= 0 {
		cfg.StepsPerRevolution = defaultStepsPerRevolution
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Stepper{
		name:               name,
		step:               step,
		dir:                dir,
		enable:             enable,
		clock:              clock,
		logger:             logger.With(zap.String("device", name)),
		stepInterval:       cfg.StepInterval,
		stepsPerRevolution: cfg.StepsPerRevolution,
	}

	if err := s.step.Set(false); err != nil {
		return nil, fault(name, "init", err)
	}
	if err := s.PowerOff(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the name used in logs and errors
func (s *Stepper) Name() string {
	return s.name
}

// PowerOn energizes the coils
func (s *Stepper) PowerOn() error {
	return fault(s.name, "power on", s.enable.Set(false))
}

// PowerOff de-energizes the coils. The motor freewheels.
func (s *Stepper) PowerOff() error {
	return fault(s.name, "power off", s.enable.Set(true))
}

// Enabled reports whether the coils are energized
func (s *Stepper) Enabled() bool {
	return !s.enable.Get()
}

// SetDirection sets the direction pin for the next pulse train
func (s *Stepper) SetDirection(d autoechem.Direction) error {
	err := s.dir.Set(d.Level())
	if err != nil {
		return fault(s.name, "set direction", err)
	}
	s.direction = d
	return nil
}

// Direction returns the last direction that was set
func (s *Stepper) Direction() autoechem.Direction {
	return s.direction
}

// SetStepInterval changes the half-period used by subsequent pulse trains
func (s *Stepper) SetStepInterval(d time.Duration) {
	s.stepInterval = d
}

// StepInterval returns the current half-period
func (s *Stepper) StepInterval() time.Duration {
	return s.stepInterval
}

// StepsPerRevolution is informational
func (s *Stepper) StepsPerRevolution() int {
	return s.stepsPerRevolution
}

// Step emits count pulses in the current direction. Each pulse is high for StepInterval and then low
// for StepInterval, so the call blocks for 2*StepInterval*count. ctx is checked before every pulse.
func (s *Stepper) Step(ctx context.Context, count uint) error {
	for range count {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.pulse(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stepper) pulse() error {
	if err := s.step.Set(true); err != nil {
		return fault(s.name, "step", err)
	}
	s.clock.Delay(s.stepInterval)
	if err := s.step.Set(false); err != nil {
		return fault(s.name, "step", err)
	}
	s.clock.Delay(s.stepInterval)
	return nil
}

// Move sets the direction and then emits count pulses
func (s *Stepper) Move(ctx context.Context, d autoechem.Direction, count uint) error {
	if err := s.SetDirection(d); err != nil {
		return err
	}
	s.logger.Debug("moving", zap.Stringer("direction", d), zap.Uint("steps", count))
	return s.Step(ctx, count)
}

// MoveMM moves |mm| millimeters in direction d. The sign of mm is ignored.
func (s *Stepper) MoveMM(ctx context.Context, d autoechem.Direction, mm, stepsPerMM float64) error {
	return s.Move(ctx, d, StepsForMM(mm, stepsPerMM))
}

// StepsForMM returns round(|mm| * stepsPerMM)
func StepsForMM(mm, stepsPerMM float64) uint {
	return uint(math.Round(math.Abs(mm * stepsPerMM)))
}
