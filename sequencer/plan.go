package sequencer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/deadline"
)

// ConfigurationError describes an invalid plan or device assignment. It is always reported before any
// device is moved.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Durations has the length of each timed phase
type Durations struct {
	// PumpFill runs the wash pump once during priming
	PumpFill time.Duration `mapstructure:"pump_fill"`
	// Purge opens each valve during priming
	Purge time.Duration `mapstructure:"purge"`
	// Settle is the pause between the operator confirming and stirring starting
	Settle time.Duration `mapstructure:"settle"`
	// Reaction is how long the stirrer runs for each vial
	Reaction time.Duration `mapstructure:"reaction"`
	// Drain opens each valve after a reaction or cleaning cycle
	Drain time.Duration `mapstructure:"drain"`
	// CleaningPump runs the wash pump at the start of each cleaning cycle
	CleaningPump time.Duration `mapstructure:"cleaning_pump"`
	// Cleaning is how long the stirrer runs for each cleaning cycle
	Cleaning time.Duration `mapstructure:"cleaning"`
}

// Plan is the static description of an experiment run
type Plan struct {
	// Coordinates are the carriage positions of the vials in mm. One more than Experiments is
	// required because the last vial is followed by a move to the next one.
	Coordinates     []float64 `mapstructure:"coordinates"`
	WasteCoordinate float64   `mapstructure:"waste_coordinate"`
	Experiments     int       `mapstructure:"experiments"`
	CleaningCycles  int       `mapstructure:"cleaning_cycles"`

	// StepsPerMM converts carriage travel to steps
	StepsPerMM float64 `mapstructure:"steps_per_mm"`

	PrimeSteps    uint `mapstructure:"prime_steps"`
	DispenseSteps uint `mapstructure:"dispense_steps"`

	SyringeDirection autoechem.Direction `mapstructure:"syringe_direction"`
	StirDirection    autoechem.Direction `mapstructure:"stir_direction"`

	Durations Durations `mapstructure:"durations"`
}

// Validate returns every problem with the plan joined into one error
func (p Plan) Validate() error {
	var errs []error
	invalid := func(field, format string, args ...any) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if p.Experiments < 0 {
		invalid("experiments", "must not be negative, got %d", p.Experiments)
	}
	if p.CleaningCycles < 0 {
		invalid("cleaning_cycles", "must not be negative, got %d", p.CleaningCycles)
	}
	if need := max(p.Experiments, 0) + 1; len(p.Coordinates) < need {
		invalid("coordinates", "%d experiments need at least %d vial coordinates, got %d", p.Experiments, need, len(p.Coordinates))
	}
	for i, c := range p.Coordinates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			invalid(fmt.Sprintf("coordinates[%d]", i), "must be a finite number")
		}
	}
	if math.IsNaN(p.WasteCoordinate) || math.IsInf(p.WasteCoordinate, 0) {
		invalid("waste_coordinate", "must be a finite number")
	}
	if !(p.StepsPerMM > 0) || math.IsInf(p.StepsPerMM, 0) {
		invalid("steps_per_mm", "must be positive, got %v", p.StepsPerMM)
	}
	if p.SyringeDirection > autoechem.DirectionForward {
		invalid("syringe_direction", "must be 0 or 1")
	}
	if p.StirDirection > autoechem.DirectionForward {
		invalid("stir_direction", "must be 0 or 1")
	}

	for _, d := range []struct {
		name string
		d    time.Duration
	}{
		{"durations.pump_fill", p.Durations.PumpFill},
		{"durations.purge", p.Durations.Purge},
		{"durations.settle", p.Durations.Settle},
		{"durations.reaction", p.Durations.Reaction},
		{"durations.drain", p.Durations.Drain},
		{"durations.cleaning_pump", p.Durations.CleaningPump},
		{"durations.cleaning", p.Durations.Cleaning},
	} {
		if d.d < 0 {
			invalid(d.name, "must not be negative, got %s", d.d)
		}
		if d.d > deadline.MaxDuration {
			invalid(d.name, "must not exceed %s, got %s", deadline.MaxDuration, d.d)
		}
	}

	return errors.Join(errs...)
}

// toWaste returns the direction and distance from vial i to the waste position. Positive travel is
// Forward.
func (p Plan) toWaste(i int) (autoechem.Direction, float64) {
	travel := p.WasteCoordinate - p.Coordinates[i]
	if travel > 0 {
		return autoechem.DirectionForward, math.Abs(travel)
	}
	return autoechem.DirectionReverse, math.Abs(travel)
}

// fromWaste returns the direction and distance from the waste position back out to vial i. The
// sense is the opposite of toWaste for the same travel sign.
func (p Plan) fromWaste(i int) (autoechem.Direction, float64) {
	travel := p.WasteCoordinate - p.Coordinates[i]
	if travel > 0 {
		return autoechem.DirectionReverse, math.Abs(travel)
	}
	return autoechem.DirectionForward, math.Abs(travel)
}
