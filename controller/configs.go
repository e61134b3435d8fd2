package controller

import (
	"errors"
	"fmt"

	"github.com/calvinmclean/autoechem/device"
	"github.com/calvinmclean/autoechem/sequencer"
)

// Config is everything needed to build the instrument and run the protocol
type Config struct {
	Profile    string `mapstructure:"profile"`
	Simulate   bool   `mapstructure:"simulate"`
	Unattended bool   `mapstructure:"unattended"`

	Console  ConsoleConfig  `mapstructure:"console"`
	Log      LogConfig      `mapstructure:"log"`
	Plan     PlanConfig     `mapstructure:"plan"`
	Steppers SteppersConfig `mapstructure:"steppers"`
	Pins     PinsConfig     `mapstructure:"pins"`
}

// ConsoleConfig selects where operator prompts are read from. An empty Port uses stdin/stdout.
type ConsoleConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// LogConfig has the log level and an optional rotating log file
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// PlanConfig is the experiment plan. When StepsPerMM is zero it is derived from LeadScrew.
type PlanConfig struct {
	sequencer.Plan `mapstructure:",squash"`
	LeadScrew      device.LeadScrew `mapstructure:"lead_screw"`
}

// SteppersConfig has the timing of each stepper driver
type SteppersConfig struct {
	Syringe     device.StepperConfig `mapstructure:"syringe"`
	Autosampler device.StepperConfig `mapstructure:"autosampler"`
	Stirrer     device.StepperConfig `mapstructure:"stirrer"`
}

// StepperPins are the three outputs of a step/dir driver
type StepperPins struct {
	Step   string `mapstructure:"step"`
	Dir    string `mapstructure:"dir"`
	Enable string `mapstructure:"enable"`
}

// PinsConfig maps every device output to a host GPIO name
type PinsConfig struct {
	Syringe     StepperPins `mapstructure:"syringe"`
	Autosampler StepperPins `mapstructure:"autosampler"`
	Stirrer     StepperPins `mapstructure:"stirrer"`
	Pump        string      `mapstructure:"pump"`
	Cathode     string      `mapstructure:"cathode"`
	Anode       string      `mapstructure:"anode"`
}

type pinAssignment struct {
	// name identifies the output, e.g. "syringe.step"
	name string
	pin  string
	// idle is the level that leaves the device inert. Outputs are opened at this level.
	idle bool
}

func (p PinsConfig) assignments() []pinAssignment {
	return []pinAssignment{
		{"syringe.step", p.Syringe.Step, false},
		{"syringe.dir", p.Syringe.Dir, false},
		{"syringe.enable", p.Syringe.Enable, true},
		{"autosampler.step", p.Autosampler.Step, false},
		{"autosampler.dir", p.Autosampler.Dir, false},
		{"autosampler.enable", p.Autosampler.Enable, true},
		{"stirrer.step", p.Stirrer.Step, false},
		{"stirrer.dir", p.Stirrer.Dir, false},
		{"stirrer.enable", p.Stirrer.Enable, true},
		{"pump", p.Pump, true},
		{"cathode", p.Cathode, false},
		{"anode", p.Anode, false},
	}
}

// validate reports missing pins and pins assigned to more than one output
func (p PinsConfig) validate() []error {
	var errs []error
	seen := map[string]string{}
	for _, a := range p.assignments() {
		field := "pins." + a.name
		if a.pin == "" {
			errs = append(errs, &sequencer.ConfigurationError{Field: field, Reason: "missing"})
			continue
		}
		if other, ok := seen[a.pin]; ok {
			errs = append(errs, &sequencer.ConfigurationError{
				Field:  field,
				Reason: fmt.Sprintf("pin %s is already assigned to %s", a.pin, other),
			})
			continue
		}
		seen[a.pin] = a.name
	}
	return errs
}

// SequencerPlan returns the validated plan for the sequencer
func (c Config) SequencerPlan() (sequencer.Plan, error) {
	plan := c.Plan.Plan
	plan.Coordinates = append([]float64(nil), c.Plan.Coordinates...)

	if plan.StepsPerMM == 0 {
		spmm, err := c.Plan.LeadScrew.StepsPerMM()
		if err != nil {
			return sequencer.Plan{}, &sequencer.ConfigurationError{Field: "plan.lead_screw", Reason: err.Error()}
		}
		plan.StepsPerMM = spmm
	}

	return plan, plan.Validate()
}

// Validate checks the plan, the pin map and the console settings together
func (c Config) Validate() error {
	var errs []error
	if _, err := c.SequencerPlan(); err != nil {
		errs = append(errs, err)
	}
	if !c.Simulate {
		errs = append(errs, c.Pins.validate()...)
	}
	if c.Console.Port != "" && c.Console.Port != SerialPortNone && c.Console.Baud <= 0 {
		errs = append(errs, &sequencer.ConfigurationError{
			Field:  "console.baud",
			Reason: fmt.Sprintf("must be positive, got %d", c.Console.Baud),
		})
	}
	return errors.Join(errs...)
}
