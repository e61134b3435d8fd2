package device

import (
	"fmt"
)

// DigitalOutput is a single GPIO pin configured as an output. Each output is owned by exactly one device.
type DigitalOutput interface {
	// Set drives the pin high (true) or low (false)
	Set(high bool) error
	// Get returns the last level driven on the pin
	Get() bool
}

// HardwareFault is returned when the digital output layer fails. The device is left in whatever state
// it was last commanded to.
type HardwareFault struct {
	Device string
	Op     string
	Err    error
}

func (e *HardwareFault) Error() string {
	return fmt.Sprintf("hardware fault on %s during %s: %v", e.Device, e.Op, e.Err)
}

func (e *HardwareFault) Unwrap() error {
	return e.Err
}

func fault(device, op string, err error) error {
	if err == nil {
		return nil
	}
	return &HardwareFault{Device: device, Op: op, Err: err}
}
