package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calvinmclean/autoechem/deadline"
	"github.com/calvinmclean/autoechem/device"
	"github.com/calvinmclean/autoechem/pins"
	"github.com/calvinmclean/autoechem/sequencer"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// Controller owns every device of the instrument. It is the only place where pins are opened and
// devices are constructed.
type Controller struct {
	cfg    Config
	plan   sequencer.Plan
	logger *zap.Logger
	clock  deadline.Clock

	// bank is only set in simulation
	bank    *pins.Bank
	outputs []device.DigitalOutput

	syringe     *device.Stepper
	autosampler *device.Stepper
	stirrer     *device.Stepper
	pump        *device.Pump
	cathode     *device.Valve
	anode       *device.Valve
}

// New validates the configuration and then opens the pins and constructs the devices. Host pins are
// all looked up before any is written, and each output is opened at its idle level, so steppers come
// up powered off, valves closed and the pump stopped.
func New(cfg Config, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plan, err := cfg.SequencerPlan()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:    cfg,
		plan:   plan,
		logger: logger,
	}

	var open func(a pinAssignment) (device.DigitalOutput, error)
	if cfg.Simulate {
		clock := pins.NewSimClock(0)
		c.clock = clock
		c.bank = pins.NewBank(clock, false)
		open = func(a pinAssignment) (device.DigitalOutput, error) {
			return c.bank.Output(a.name, a.idle), nil
		}
	} else {
		c.clock = deadline.NewSystemClock()
		resolved, err := lookupPins(cfg.Pins)
		if err != nil {
			return nil, err
		}
		open = func(a pinAssignment) (device.DigitalOutput, error) {
			return pins.NewOutput(resolved[a.name], a.idle)
		}
	}

	outputs := map[string]device.DigitalOutput{}
	for _, a := range cfg.Pins.assignments() {
		out, err := open(a)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("error opening output %s: %w", a.name, err)
		}
		outputs[a.name] = out
		c.outputs = append(c.outputs, out)
	}

	if err := c.buildDevices(outputs); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("instrument ready",
		zap.String("profile", cfg.Profile),
		zap.Bool("simulate", cfg.Simulate),
		zap.Float64("steps_per_mm", plan.StepsPerMM),
	)
	return c, nil
}

// lookupPins finds every assigned host pin before any of them is written
func lookupPins(p PinsConfig) (map[string]gpio.PinIO, error) {
	resolved := map[string]gpio.PinIO{}
	var errs []error
	for _, a := range p.assignments() {
		pin, err := pins.Lookup(a.pin)
		switch {
		case errors.Is(err, pins.ErrUnknownPin):
			errs = append(errs, &sequencer.ConfigurationError{
				Field:  "pins." + a.name,
				Reason: fmt.Sprintf("host has no pin %q", a.pin),
			})
		case err != nil:
			return nil, err
		default:
			resolved[a.name] = pin
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return resolved, nil
}

func (c *Controller) buildDevices(outputs map[string]device.DigitalOutput) error {
	newStepper := func(name string, cfg device.StepperConfig) (*device.Stepper, error) {
		s, err := device.NewStepper(name, outputs[name+".step"], outputs[name+".dir"], outputs[name+".enable"], c.clock, cfg, c.logger)
		if err != nil {
			return nil, fmt.Errorf("error creating %s stepper: %w", name, err)
		}
		return s, nil
	}

	var err error
	if c.syringe, err = newStepper("syringe", c.cfg.Steppers.Syringe); err != nil {
		return err
	}
	if c.autosampler, err = newStepper("autosampler", c.cfg.Steppers.Autosampler); err != nil {
		return err
	}
	if c.stirrer, err = newStepper("stirrer", c.cfg.Steppers.Stirrer); err != nil {
		return err
	}
	if c.pump, err = device.NewPump("pump", outputs["pump"], c.logger); err != nil {
		return fmt.Errorf("error creating pump: %w", err)
	}
	if c.cathode, err = device.NewValve("cathode", outputs["cathode"], c.logger); err != nil {
		return fmt.Errorf("error creating cathode valve: %w", err)
	}
	if c.anode, err = device.NewValve("anode", outputs["anode"], c.logger); err != nil {
		return fmt.Errorf("error creating anode valve: %w", err)
	}
	return nil
}

// Config returns the configuration the Controller was built from
func (c *Controller) Config() Config {
	return c.cfg
}

// Plan returns the validated plan
func (c *Controller) Plan() sequencer.Plan {
	return c.plan
}

// Simulation returns the simulated pin bank, or nil when driving real hardware
func (c *Controller) Simulation() *pins.Bank {
	return c.bank
}

func (c *Controller) devices() sequencer.Devices {
	return sequencer.Devices{
		Syringe:     c.syringe,
		Autosampler: c.autosampler,
		Stirrer:     c.stirrer,
		Pump:        c.pump,
		Cathode:     c.cathode,
		Anode:       c.anode,
	}
}

// Run executes the whole protocol. Phase changes are logged with a run_id and passed on to observers.
func (c *Controller) Run(ctx context.Context, console sequencer.Console, observers ...sequencer.Observer) error {
	logger := c.logger.With(zap.String("run_id", uuid.NewString()))
	timings := newPhaseTimer(c.clock)

	s, err := sequencer.New(c.devices(), c.plan, c.clock,
		sequencer.WithConsole(console),
		sequencer.WithLogger(logger),
		sequencer.WithObserver(append(observerGroup{timings}, observers...)),
	)
	if err != nil {
		return err
	}

	err = s.Run(ctx)
	timings.finish()
	logger.Info("run finished",
		zap.Stringer("phase", s.Phase()),
		zap.Any("phase_durations", timings),
		zap.Error(err),
	)
	return err
}

// Stir runs only the stirrer for d, then powers it off
func (c *Controller) Stir(ctx context.Context, d time.Duration) error {
	if d < 0 || d > deadline.MaxDuration {
		return &sequencer.ConfigurationError{Field: "duration", Reason: fmt.Sprintf("must be between 0 and %s, got %s", deadline.MaxDuration, d)}
	}

	c.logger.Info("stirring", zap.Duration("duration", d), zap.Stringer("direction", c.plan.StirDirection))
	if err := c.stirrer.PowerOn(); err != nil {
		return err
	}
	if err := c.stirrer.SetDirection(c.plan.StirDirection); err != nil {
		return err
	}
	err := deadline.Loop(ctx, c.clock, d, func() error {
		return c.stirrer.Step(ctx, 1)
	})
	if err != nil {
		return err
	}
	return c.stirrer.PowerOff()
}

// SwitchOff puts the instrument in its safe state: steppers powered off, pump cycled once and left
// stopped, valves closed. Every device is attempted even if an earlier one fails.
func (c *Controller) SwitchOff() error {
	c.logger.Info("switching off all devices")
	return errors.Join(
		c.syringe.PowerOff(),
		c.autosampler.PowerOff(),
		c.stirrer.PowerOff(),
		c.pump.Engage(),
		c.pump.Disengage(),
		c.cathode.Disengage(),
		c.anode.Disengage(),
	)
}

// Close releases the host pins. It does not change their levels.
func (c *Controller) Close() error {
	var errs []error
	for _, out := range c.outputs {
		if h, ok := out.(interface{ Halt() error }); ok {
			errs = append(errs, h.Halt())
		}
	}
	return errors.Join(errs...)
}
