// Package sequencer runs the experiment protocol: priming, then for every vial a reaction, a drain,
// cleaning cycles and a move to the next vial.
package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/deadline"

	"go.uber.org/zap"
)

// Stepper is the motion interface the sequencer needs. *device.Stepper implements it.
type Stepper interface {
	Name() string
	PowerOn() error
	PowerOff() error
	Step(ctx context.Context, count uint) error
	Move(ctx context.Context, d autoechem.Direction, count uint) error
	MoveMM(ctx context.Context, d autoechem.Direction, mm, stepsPerMM float64) error
	SetDirection(d autoechem.Direction) error
}

// Switch is a two-state device. *device.Valve and *device.Pump implement it.
type Switch interface {
	Name() string
	Engage() error
	Disengage() error
}

// Devices are the actuators owned by the application root and lent to the sequencer
type Devices struct {
	Syringe     Stepper
	Autosampler Stepper
	Stirrer     Stepper
	Pump        Switch
	Cathode     Switch
	Anode       Switch
}

func (d Devices) validate() error {
	for name, dev := range map[string]any{
		"syringe":     d.Syringe,
		"autosampler": d.Autosampler,
		"stirrer":     d.Stirrer,
		"pump":        d.Pump,
		"cathode":     d.Cathode,
		"anode":       d.Anode,
	} {
		if dev == nil {
			return &ConfigurationError{Field: "devices." + name, Reason: "missing"}
		}
	}
	return nil
}

// Observer is notified whenever the sequencer enters a new phase. vial is zero-based and is -1
// outside the per-vial loop.
type Observer interface {
	PhaseChanged(phase autoechem.Phase, vial int)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(phase autoechem.Phase, vial int)

// PhaseChanged implements Observer.
func (f ObserverFunc) PhaseChanged(phase autoechem.Phase, vial int) {
	f(phase, vial)
}

// Sequencer drives the devices through the protocol described by a Plan
type Sequencer struct {
	devices  Devices
	plan     Plan
	clock    deadline.Clock
	console  Console
	observer Observer
	logger   *zap.Logger

	phase autoechem.Phase
	vial  int
}

// Option configures optional collaborators
type Option func(*Sequencer)

// WithConsole sets the operator console. The default is AutoConfirm with no output.
func WithConsole(c Console) Option {
	return func(s *Sequencer) {
		s.console = c
	}
}

// WithObserver sets a phase observer
func WithObserver(o Observer) Option {
	return func(s *Sequencer) {
		s.observer = o
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// New validates the plan and devices. A ConfigurationError is returned before anything is moved.
func New(devices Devices, plan Plan, clock deadline.Clock, opts ...Option) (*Sequencer, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := devices.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		return nil, &ConfigurationError{Field: "clock", Reason: "missing"}
	}

	s := &Sequencer{
		devices: devices,
		plan:    plan,
		clock:   clock,
		console: AutoConfirm{},
		logger:  zap.NewNop(),
		vial:    -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Phase returns the phase currently being executed
func (s *Sequencer) Phase() autoechem.Phase {
	return s.phase
}

// Run executes the whole protocol. It stops at the first error, leaving every device in its last
// commanded state. The error is wrapped with the phase and vial it happened in.
func (s *Sequencer) Run(ctx context.Context) error {
	s.logger.Info("starting run",
		zap.Int("experiments", s.plan.Experiments),
		zap.Int("cleaning_cycles", s.plan.CleaningCycles),
	)

	s.enter(autoechem.PhasePriming, -1)
	if err := s.prime(ctx); err != nil {
		return s.wrap(err)
	}

	for i := range s.plan.Experiments {
		if err := s.react(ctx, i); err != nil {
			return s.wrap(err)
		}
		if err := s.clean(ctx, i); err != nil {
			return s.wrap(err)
		}
		if err := s.toNextVial(ctx, i); err != nil {
			return s.wrap(err)
		}
	}

	s.enter(autoechem.PhaseDone, -1)
	s.console.Println("All experiments ended")
	return nil
}

func (s *Sequencer) wrap(err error) error {
	if s.vial < 0 {
		return fmt.Errorf("%s: %w", s.phase, err)
	}
	return fmt.Errorf("%s (vial %d): %w", s.phase, s.vial+1, err)
}

func (s *Sequencer) enter(p autoechem.Phase, vial int) {
	s.phase = p
	s.vial = vial
	s.logger.Info("phase", zap.Stringer("phase", p), zap.Int("vial", vial+1))
	if s.observer != nil {
		s.observer.PhaseChanged(p, vial)
	}
}

// prime fills the wash and reagent lines and leaves the carriage at the first vial
func (s *Sequencer) prime(ctx context.Context) error {
	d := s.plan.Durations

	dir, mm := s.plan.toWaste(0)
	if err := s.moveCarriage(ctx, dir, mm); err != nil {
		return err
	}
	if err := s.pulse(ctx, s.devices.Pump, d.PumpFill); err != nil {
		return err
	}
	if err := s.drain(ctx, d.Purge); err != nil {
		return err
	}
	if err := s.runSyringe(ctx, s.plan.PrimeSteps); err != nil {
		return err
	}
	if err := s.drain(ctx, d.Purge); err != nil {
		return err
	}
	dir, mm = s.plan.fromWaste(0)
	return s.moveCarriage(ctx, dir, mm)
}

// react dispenses reagent, waits for the operator, stirs for the reaction time, drains the cell and
// parks the carriage at the waste position
func (s *Sequencer) react(ctx context.Context, i int) error {
	d := s.plan.Durations

	s.enter(autoechem.PhaseDispensing, i)
	if err := s.runSyringe(ctx, s.plan.DispenseSteps); err != nil {
		return err
	}

	s.enter(autoechem.PhaseWaitingForOperator, i)
	if err := s.console.Confirm(ctx, i); err != nil {
		return err
	}

	s.enter(autoechem.PhaseSettling, i)
	s.console.Println(fmt.Sprintf("Experiment will start in %s, power on the potentiostat", d.Settle))
	if err := deadline.Wait(ctx, s.clock, d.Settle); err != nil {
		return err
	}
	s.console.Println(fmt.Sprintf("Experiment %d started", i+1))

	s.enter(autoechem.PhaseStirring, i)
	if err := s.stir(ctx, d.Reaction); err != nil {
		return err
	}
	s.console.Println("Experiment ended store your data")

	s.enter(autoechem.PhaseDraining, i)
	if err := s.drain(ctx, d.Drain); err != nil {
		return err
	}

	s.enter(autoechem.PhaseToWaste, i)
	dir, mm := s.plan.toWaste(i)
	return s.moveCarriage(ctx, dir, mm)
}

// clean rinses the cell CleaningCycles times
func (s *Sequencer) clean(ctx context.Context, i int) error {
	d := s.plan.Durations

	s.enter(autoechem.PhaseCleaning, i)
	s.console.Println("Cleaning started")
	for c := range s.plan.CleaningCycles {
		if err := s.pulse(ctx, s.devices.Pump, d.CleaningPump); err != nil {
			return err
		}
		if err := s.stir(ctx, d.Cleaning); err != nil {
			return err
		}
		if err := s.drain(ctx, d.Drain); err != nil {
			return err
		}
		s.console.Println(fmt.Sprintf("Cleaning batch %d done", c+1))
	}
	return nil
}

func (s *Sequencer) toNextVial(ctx context.Context, i int) error {
	s.enter(autoechem.PhaseToNextVial, i)
	dir, mm := s.plan.fromWaste(i + 1)
	if err := s.moveCarriage(ctx, dir, mm); err != nil {
		return err
	}
	s.console.Println("Cleaning Ended, do you want to start next experiment?")
	return nil
}

// powered energizes a stepper only for the duration of motion
func (s *Sequencer) powered(st Stepper, motion func() error) error {
	if err := st.PowerOn(); err != nil {
		return err
	}
	if err := motion(); err != nil {
		return err
	}
	return st.PowerOff()
}

func (s *Sequencer) moveCarriage(ctx context.Context, dir autoechem.Direction, mm float64) error {
	s.logger.Debug("moving carriage", zap.Stringer("direction", dir), zap.Float64("mm", mm))
	return s.powered(s.devices.Autosampler, func() error {
		return s.devices.Autosampler.MoveMM(ctx, dir, mm, s.plan.StepsPerMM)
	})
}

func (s *Sequencer) runSyringe(ctx context.Context, steps uint) error {
	return s.powered(s.devices.Syringe, func() error {
		return s.devices.Syringe.Move(ctx, s.plan.SyringeDirection, steps)
	})
}

// stir pulses the stirrer one step at a time until d has elapsed. The last step may overrun d by up
// to one step period.
func (s *Sequencer) stir(ctx context.Context, d time.Duration) error {
	st := s.devices.Stirrer
	return s.powered(st, func() error {
		if err := st.SetDirection(s.plan.StirDirection); err != nil {
			return err
		}
		return deadline.Loop(ctx, s.clock, d, func() error {
			return st.Step(ctx, 1)
		})
	})
}

// pulse engages a switch for d
func (s *Sequencer) pulse(ctx context.Context, sw Switch, d time.Duration) error {
	if err := sw.Engage(); err != nil {
		return err
	}
	if err := deadline.Wait(ctx, s.clock, d); err != nil {
		return err
	}
	return sw.Disengage()
}

// drain opens the cathode valve and then the anode valve, each for d
func (s *Sequencer) drain(ctx context.Context, d time.Duration) error {
	if err := s.pulse(ctx, s.devices.Cathode, d); err != nil {
		return err
	}
	return s.pulse(ctx, s.devices.Anode, d)
}
