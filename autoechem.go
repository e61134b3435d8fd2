package autoechem

// Phase is the step of the experiment protocol that the sequencer is executing
type Phase int

const (
	PhaseUnknown Phase = iota
	PhasePriming
	PhaseDispensing
	PhaseWaitingForOperator
	PhaseSettling
	PhaseStirring
	PhaseDraining
	PhaseToWaste
	PhaseCleaning
	PhaseToNextVial
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePriming:
		return "Priming"
	case PhaseDispensing:
		return "Dispensing"
	case PhaseWaitingForOperator:
		return "Waiting For Operator"
	case PhaseSettling:
		return "Settling"
	case PhaseStirring:
		return "Stirring"
	case PhaseDraining:
		return "Draining"
	case PhaseToWaste:
		return "To Waste"
	case PhaseCleaning:
		return "Cleaning"
	case PhaseToNextVial:
		return "To Next Vial"
	case PhaseDone:
		return "Done"
	default:
		fallthrough
	case PhaseUnknown:
		return "Unknown"
	}
}

// Direction is the binary sense written to a stepper driver's direction pin. Which way the shaft
// actually turns depends on the wiring and must be calibrated per device.
type Direction uint8

const (
	// DirectionReverse drives the direction pin low
	DirectionReverse Direction = iota
	// DirectionForward drives the direction pin high
	DirectionForward
)

func (d Direction) String() string {
	if d == DirectionForward {
		return "Forward"
	}
	return "Reverse"
}

// Level is the electrical level written to the direction pin
func (d Direction) Level() bool {
	return d == DirectionForward
}

// Opposite returns the other direction sense
func (d Direction) Opposite() Direction {
	if d == DirectionForward {
		return DirectionReverse
	}
	return DirectionForward
}
