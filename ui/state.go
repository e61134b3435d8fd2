package ui

import (
	"fmt"
	"image/color"

	"github.com/calvinmclean/autoechem"
)

var (
	colorIdle    = color.Gray{Y: 128}
	colorMoving  = color.RGBA{R: 0, G: 90, B: 170, A: 255}
	colorWaiting = color.RGBA{R: 139, G: 0, B: 0, A: 255}
	colorDone    = color.RGBA{R: 0, G: 120, B: 0, A: 255}
)

// phaseTitle describes the current phase for the large status label
func phaseTitle(p autoechem.Phase, vial, experiments int) string {
	if vial < 0 {
		return p.String()
	}
	return fmt.Sprintf("%s: vial %d of %d", p, vial+1, experiments)
}

// phaseColor highlights phases that need the operator
func phaseColor(p autoechem.Phase) color.Color {
	switch p {
	case autoechem.PhaseWaitingForOperator, autoechem.PhaseSettling:
		return colorWaiting
	case autoechem.PhaseDone:
		return colorDone
	case autoechem.PhaseUnknown:
		return colorIdle
	default:
		return colorMoving
	}
}
