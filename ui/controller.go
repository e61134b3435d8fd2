package ui

import (
	"context"
	"sync"
)

// gate hands the operator's answer from the UI goroutine to the goroutine running the sequencer.
// At most one answer is accepted each time the gate opens. An unattended gate never opens.
type gate struct {
	mtx        sync.Mutex
	unattended bool
	open       bool
	vial       int
	answers    chan error
}

func newGate(unattended bool) *gate {
	return &gate{unattended: unattended, answers: make(chan error, 1)}
}

// wait opens the gate for vial and blocks until it is answered or ctx is done. onOpen runs after the
// gate accepts answers.
func (g *gate) wait(ctx context.Context, vial int, onOpen func()) error {
	if g.unattended {
		return ctx.Err()
	}

	g.mtx.Lock()
	select {
	case <-g.answers:
		// stale answer from a wait that was cancelled
	default:
	}
	g.open = true
	g.vial = vial
	g.mtx.Unlock()

	if onOpen != nil {
		onOpen()
	}

	select {
	case <-ctx.Done():
		g.mtx.Lock()
		g.open = false
		g.mtx.Unlock()
		return ctx.Err()
	case err := <-g.answers:
		return err
	}
}

// answer closes the gate with err, nil meaning go ahead. It reports false when no one is waiting.
func (g *gate) answer(err error) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if !g.open {
		return false
	}
	g.open = false
	g.answers <- err
	return true
}

// waiting returns the vial the gate is open for
func (g *gate) waiting() (int, bool) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.vial, g.open
}
