package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvinmclean/autoechem/device"
	"github.com/calvinmclean/autoechem/sequencer"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "AUTOECHEM"
	configName = "config"
	configDir  = "auto-echem"
)

// LoadConfig builds a Config from, in increasing priority: the selected built-in profile, the config
// file, environment variables and any flags already bound to v. An empty path searches
// /etc/auto-echem, $HOME/.auto-echem and the working directory, and a missing file is not an error.
// A .env file in the working directory is loaded into the environment first.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("profile", DefaultProfile)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.FromSlash("/etc/" + configDir))
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+configDir))
		}
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && (path != "" || !errors.As(err, &notFound)) {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	name := v.GetString("profile")
	base, ok := Profile(name)
	if !ok {
		return Config{}, &sequencer.ConfigurationError{
			Field:  "profile",
			Reason: fmt.Sprintf("unknown profile %q, expected one of %s", name, strings.Join(ProfileNames(), ", ")),
		}
	}
	setDefaults(v, base)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}

	return cfg, cfg.Validate()
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error loading %s: %w", path, err)
}

// setDefaults registers every key of the profile so the file and the environment only need to
// override what differs
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("simulate", cfg.Simulate)
	v.SetDefault("unattended", cfg.Unattended)
	v.SetDefault("console.port", cfg.Console.Port)
	v.SetDefault("console.baud", cfg.Console.Baud)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)

	p := cfg.Plan
	v.SetDefault("plan.coordinates", p.Coordinates)
	v.SetDefault("plan.waste_coordinate", p.WasteCoordinate)
	v.SetDefault("plan.experiments", p.Experiments)
	v.SetDefault("plan.cleaning_cycles", p.CleaningCycles)
	v.SetDefault("plan.steps_per_mm", p.StepsPerMM)
	v.SetDefault("plan.prime_steps", p.PrimeSteps)
	v.SetDefault("plan.dispense_steps", p.DispenseSteps)
	v.SetDefault("plan.syringe_direction", p.SyringeDirection)
	v.SetDefault("plan.stir_direction", p.StirDirection)
	v.SetDefault("plan.durations.pump_fill", p.Durations.PumpFill)
	v.SetDefault("plan.durations.purge", p.Durations.Purge)
	v.SetDefault("plan.durations.settle", p.Durations.Settle)
	v.SetDefault("plan.durations.reaction", p.Durations.Reaction)
	v.SetDefault("plan.durations.drain", p.Durations.Drain)
	v.SetDefault("plan.durations.cleaning_pump", p.Durations.CleaningPump)
	v.SetDefault("plan.durations.cleaning", p.Durations.Cleaning)
	v.SetDefault("plan.lead_screw.step_angle", p.LeadScrew.StepAngle)
	v.SetDefault("plan.lead_screw.lead_mm", p.LeadScrew.LeadMM)
	v.SetDefault("plan.lead_screw.microstepping", p.LeadScrew.Microstepping)

	for name, s := range map[string]struct {
		cfg  device.StepperConfig
		pins StepperPins
	}{
		"syringe":     {cfg.Steppers.Syringe, cfg.Pins.Syringe},
		"autosampler": {cfg.Steppers.Autosampler, cfg.Pins.Autosampler},
		"stirrer":     {cfg.Steppers.Stirrer, cfg.Pins.Stirrer},
	} {
		v.SetDefault("steppers."+name+".step_interval", s.cfg.StepInterval)
		v.SetDefault("steppers."+name+".steps_per_revolution", s.cfg.StepsPerRevolution)
		v.SetDefault("pins."+name+".step", s.pins.Step)
		v.SetDefault("pins."+name+".dir", s.pins.Dir)
		v.SetDefault("pins."+name+".enable", s.pins.Enable)
	}
	v.SetDefault("pins.pump", cfg.Pins.Pump)
	v.SetDefault("pins.cathode", cfg.Pins.Cathode)
	v.SetDefault("pins.anode", cfg.Pins.Anode)
}
