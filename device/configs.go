package device

import (
	"errors"
	"time"
)

const (
	defaultStepInterval       = 1000 * time.Microsecond
	defaultStepsPerRevolution = 1600
)

// StepperConfig has the timing values for a step/dir stepper driver
type StepperConfig struct {
	// StepInterval is the half-period of the step waveform. One pulse takes 2*StepInterval.
	StepInterval time.Duration `mapstructure:"step_interval"`
	// StepsPerRevolution is informational and is not used for motion
	StepsPerRevolution int `mapstructure:"steps_per_revolution"`
}

// LeadScrew describes the mechanics needed to convert millimeters to steps
type LeadScrew struct {
	StepAngle     float64 `mapstructure:"step_angle"` // degrees per full step
	LeadMM        float64 `mapstructure:"lead_mm"`    // travel per revolution
	Microstepping int     `mapstructure:"microstepping"`
}

// StepsPerMM returns (360 / StepAngle) / LeadMM * Microstepping
func (l LeadScrew) StepsPerMM() (float64, error) {
	if l.StepAngle <= 0 || l.LeadMM <= 0 || l.Microstepping <= 0 {
		return 0, errors.New("step angle, lead and microstepping must be positive")
	}
	return (360 / l.StepAngle) / l.LeadMM * float64(l.Microstepping), nil
}
