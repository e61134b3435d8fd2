// Package pins provides digital outputs: GPIO through periph.io on a Linux host, and simulated pins
// driven by a virtual clock.
package pins

import (
	"errors"
	"fmt"
	"sync"

	"github.com/calvinmclean/autoechem/device"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	initOnce sync.Once
	initErr  error
)

// ErrUnknownPin is returned when the host has no GPIO with the requested name
var ErrUnknownPin = errors.New("unknown pin")

// Output is a host GPIO configured as an output
type Output struct {
	pin   gpio.PinIO
	level gpio.Level
}

var _ device.DigitalOutput = (*Output)(nil)

// Lookup initializes the host drivers on first use and finds the named pin (e.g. "GPIO17"). The pin
// is not written.
func Lookup(name string) (gpio.PinIO, error) {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("error initializing host drivers: %w", initErr)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	return p, nil
}

// NewOutput configures p as an output driven to the initial level
func NewOutput(p gpio.PinIO, initial bool) (*Output, error) {
	o := &Output{pin: p}
	if err := o.Set(initial); err != nil {
		return nil, fmt.Errorf("error configuring %s as output: %w", p.Name(), err)
	}
	return o, nil
}

func (o *Output) Set(high bool) error {
	l := gpio.Level(high)
	if err := o.pin.Out(l); err != nil {
		return err
	}
	o.level = l
	return nil
}

func (o *Output) Get() bool {
	return bool(o.level)
}

func (o *Output) String() string {
	return o.pin.Name()
}

// Halt stops any pin functionality the driver is running. The output level is kept.
func (o *Output) Halt() error {
	return o.pin.Halt()
}
