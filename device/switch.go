package device

import (
	"go.uber.org/zap"
)

// switched is a two-state device on one output. activeHigh decides which electrical level means
// "engaged".
type switched struct {
	name       string
	out        DigitalOutput
	activeHigh bool
	logger     *zap.Logger
}

func newSwitched(name string, out DigitalOutput, activeHigh bool, logger *zap.Logger) (switched, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := switched{
		name:       name,
		out:        out,
		activeHigh: activeHigh,
		logger:     logger.With(zap.String("device", name)),
	}
	return s, s.Disengage()
}

func (s switched) Name() string {
	return s.name
}

func (s switched) Engage() error {
	s.logger.Debug("engage")
	return fault(s.name, "engage", s.out.Set(s.activeHigh))
}

func (s switched) Disengage() error {
	s.logger.Debug("disengage")
	return fault(s.name, "disengage", s.out.Set(!s.activeHigh))
}

// Status returns the electrical level of the output
func (s switched) Status() bool {
	return s.out.Get()
}

// Engaged returns the logical state
func (s switched) Engaged() bool {
	return s.out.Get() == s.activeHigh
}

// Valve is a solenoid valve. Engaged (open) is electrical high.
type Valve struct {
	switched
}

// NewValve creates a closed Valve
func NewValve(name string, out DigitalOutput, logger *zap.Logger) (*Valve, error) {
	s, err := newSwitched(name, out, true, logger)
	if err != nil {
		return nil, err
	}
	return &Valve{s}, nil
}

// Pump is a peristaltic pump whose driver input is inverted: engaged (running) is electrical low.
type Pump struct {
	switched
}

// NewPump creates a stopped Pump
func NewPump(name string, out DigitalOutput, logger *zap.Logger) (*Pump, error) {
	s, err := newSwitched(name, out, false, logger)
	if err != nil {
		return nil, err
	}
	return &Pump{s}, nil
}
