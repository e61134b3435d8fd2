package controller

import (
	"slices"
	"time"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/device"
	"github.com/calvinmclean/autoechem/sequencer"
)

// DefaultProfile is used when no profile is configured
const DefaultProfile = "esp32"

const defaultBaudRate = 115200

var profiles = map[string]func() Config{
	"esp32":   esp32Profile,
	"rewired": rewiredProfile,
	"bench":   benchProfile,
}

// Profile returns a copy of a built-in configuration
func Profile(name string) (Config, bool) {
	p, ok := profiles[name]
	if !ok {
		return Config{}, false
	}
	return p(), true
}

// ProfileNames returns the built-in profile names in sorted order
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// vialCoordinates are the carriage positions of the twelve vial holders in mm
func vialCoordinates() []float64 {
	return []float64{0, 20, 40, 60, 80, 100, 156, 176, 196, 216, 236, 256}
}

// esp32Profile is the first controller board wiring
func esp32Profile() Config {
	return Config{
		Profile: "esp32",
		Console: ConsoleConfig{Baud: defaultBaudRate},
		Log:     LogConfig{Level: "info"},
		Plan: PlanConfig{
			Plan: sequencer.Plan{
				Coordinates:      vialCoordinates(),
				WasteCoordinate:  128,
				Experiments:      2,
				CleaningCycles:   1,
				PrimeSteps:       18000,
				DispenseSteps:    9000,
				SyringeDirection: autoechem.DirectionReverse,
				StirDirection:    autoechem.DirectionForward,
				Durations: sequencer.Durations{
					PumpFill:     7500 * time.Millisecond,
					Purge:        15 * time.Second,
					Settle:       5 * time.Second,
					Reaction:     time.Minute,
					Drain:        15 * time.Second,
					CleaningPump: 8 * time.Second,
					Cleaning:     time.Second,
				},
			},
			LeadScrew: device.LeadScrew{
				StepAngle:     1.8,
				LeadMM:        8,
				Microstepping: 32,
			},
		},
		Steppers: SteppersConfig{
			Syringe:     device.StepperConfig{StepInterval: 1000 * time.Microsecond, StepsPerRevolution: 1600},
			Autosampler: device.StepperConfig{StepInterval: time.Microsecond, StepsPerRevolution: 1600},
			Stirrer:     device.StepperConfig{StepInterval: 1000 * time.Microsecond, StepsPerRevolution: 1600},
		},
		Pins: PinsConfig{
			Syringe:     StepperPins{Step: "GPIO2", Dir: "GPIO15", Enable: "GPIO4"},
			Autosampler: StepperPins{Step: "GPIO19", Dir: "GPIO21", Enable: "GPIO5"},
			Stirrer:     StepperPins{Step: "GPIO14", Dir: "GPIO27", Enable: "GPIO26"},
			Pump:        "GPIO18",
			Cathode:     "GPIO12",
			Anode:       "GPIO13",
		},
	}
}

// rewiredProfile is the later board revision where the drivers moved to other headers
func rewiredProfile() Config {
	cfg := esp32Profile()
	cfg.Profile = "rewired"
	cfg.Steppers.Autosampler.StepInterval = 1000 * time.Microsecond
	cfg.Pins = PinsConfig{
		Syringe:     StepperPins{Step: "GPIO32", Dir: "GPIO5", Enable: "GPIO33"},
		Autosampler: StepperPins{Step: "GPIO2", Dir: "GPIO4", Enable: "GPIO15"},
		Stirrer:     StepperPins{Step: "GPIO19", Dir: "GPIO21", Enable: "GPIO18"},
		Pump:        "GPIO26",
		Cathode:     "GPIO27",
		Anode:       "GPIO13",
	}
	return cfg
}

// benchProfile keeps the esp32 wiring with short timings and small volumes for dry runs
func benchProfile() Config {
	cfg := esp32Profile()
	cfg.Profile = "bench"
	cfg.Plan.PrimeSteps = 1600
	cfg.Plan.DispenseSteps = 800
	cfg.Plan.Durations = sequencer.Durations{
		PumpFill:     500 * time.Millisecond,
		Purge:        500 * time.Millisecond,
		Settle:       time.Second,
		Reaction:     5 * time.Second,
		Drain:        500 * time.Millisecond,
		CleaningPump: 500 * time.Millisecond,
		Cleaning:     time.Second,
	}
	return cfg
}
