// Package ui is a fyne window that acts as the operator console: it shows the current phase and
// timers, collects the go/no-go answer before each vial and keeps the status log.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/sequencer"
)

const maxLogLines = 500

// RunnerUI implements sequencer.Console and sequencer.Observer
type RunnerUI struct {
	app         fyne.App
	experiments int
	out         io.Writer

	gate *gate
	// closed is set once the window is gone and fyne no longer runs queued updates
	closed atomic.Bool

	mtx  sync.Mutex
	logs []string

	overallTimer *timer
	phaseTimer   *timer
	started      chan struct{}
	startOnce    sync.Once

	window        fyne.Window
	phaseText     *canvas.Text
	promptLabel   *widget.Label
	confirmButton *widget.Button
	abortButton   *widget.Button
	logContent    *widget.Label
}

var (
	_ sequencer.Console  = (*RunnerUI)(nil)
	_ sequencer.Observer = (*RunnerUI)(nil)
)

// NewRunnerUI creates the UI for a run of the given number of experiments. Status lines are also
// copied to out when it is not nil. An unattended UI starts every vial without asking.
func NewRunnerUI(app fyne.App, experiments int, out io.Writer, unattended bool) *RunnerUI {
	return &RunnerUI{
		app:          app,
		experiments:  experiments,
		out:          out,
		gate:         newGate(unattended),
		overallTimer: newTimer(false),
		phaseTimer:   newTimer(true),
		started:      make(chan struct{}),
	}
}

// Confirm implements sequencer.Console.
func (ui *RunnerUI) Confirm(ctx context.Context, vial int) error {
	return ui.gate.wait(ctx, vial, func() {
		ui.do(func() {
			ui.promptLabel.SetText(fmt.Sprintf("Vial %d is set up, are you ready?", vial+1))
			ui.confirmButton.SetText(fmt.Sprintf("Start vial %d", vial+1))
			ui.confirmButton.Enable()
			ui.abortButton.Enable()
			ui.window.RequestFocus()
		})
	})
}

// Println implements sequencer.Console.
func (ui *RunnerUI) Println(msg string) {
	if ui.out != nil {
		fmt.Fprintln(ui.out, msg)
	}

	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
	ui.mtx.Lock()
	ui.logs = append(ui.logs, line)
	if len(ui.logs) > maxLogLines {
		ui.logs = ui.logs[len(ui.logs)-maxLogLines:]
	}
	text := strings.Join(ui.logs, "\n")
	ui.mtx.Unlock()

	ui.do(func() {
		ui.logContent.SetText(text)
	})
}

// PhaseChanged implements sequencer.Observer.
func (ui *RunnerUI) PhaseChanged(phase autoechem.Phase, vial int) {
	now := time.Now()
	ui.startOnce.Do(func() {
		ui.overallTimer.Set(now)
		close(ui.started)
	})
	ui.phaseTimer.Set(now)

	ui.do(func() {
		ui.phaseText.Text = phaseTitle(phase, vial, ui.experiments)
		ui.phaseText.Color = phaseColor(phase)
		ui.phaseText.Refresh()
	})
}

// Finished shows the outcome of the run and stops the timers
func (ui *RunnerUI) Finished(err error) {
	ui.overallTimer.Stop()
	ui.phaseTimer.Stop()

	ui.do(func() {
		ui.confirmButton.Disable()
		ui.abortButton.Disable()
		if err != nil {
			ui.promptLabel.SetText("Run stopped: " + err.Error())
			dialog.ShowError(err, ui.window)
			return
		}
		ui.promptLabel.SetText("All experiments ended")
	})
}

// Show builds and shows the window. stop is called when the operator presses Stop or closes the
// window.
func (ui *RunnerUI) Show(stop func()) {
	ui.window = ui.app.NewWindow("Auto Echem")

	ui.phaseText = canvas.NewText(autoechem.PhaseUnknown.String(), phaseColor(autoechem.PhaseUnknown))
	ui.phaseText.TextSize = 24
	ui.phaseText.TextStyle = fyne.TextStyle{Bold: true}

	ui.promptLabel = widget.NewLabel("Waiting for the run to start")
	if ui.gate.unattended {
		ui.promptLabel.SetText("Unattended run, vials start without confirmation")
	}
	ui.promptLabel.Wrapping = fyne.TextWrapWord

	ui.confirmButton = widget.NewButton("Start", func() {
		if ui.gate.answer(nil) {
			ui.confirmButton.Disable()
			ui.abortButton.Disable()
			ui.promptLabel.SetText("Running")
		}
	})
	ui.confirmButton.Importance = widget.HighImportance
	ui.confirmButton.Disable()

	ui.abortButton = widget.NewButton("Abort", func() {
		vial, ok := ui.gate.waiting()
		if !ok {
			return
		}
		dialog.ShowConfirm("Abort run", fmt.Sprintf("Stop before vial %d?", vial+1), func(yes bool) {
			if yes && ui.gate.answer(sequencer.ErrAborted) {
				ui.confirmButton.Disable()
				ui.abortButton.Disable()
			}
		}, ui.window)
	})
	ui.abortButton.Disable()

	stopButton := widget.NewButton("Stop", func() {
		dialog.ShowConfirm("Stop run", "Stop all motion and switch everything off?", func(yes bool) {
			if yes {
				stop()
			}
		}, ui.window)
	})
	stopButton.Importance = widget.DangerImportance

	ui.overallTimer.Go(ui.started)
	ui.phaseTimer.Go(ui.started)

	content := container.NewVBox(
		container.NewHBox(
			container.NewPadded(ui.overallTimer.text),
			layout.NewSpacer(),
			container.NewPadded(ui.phaseTimer.text),
		),
		container.NewPadded(ui.phaseText),
		ui.promptLabel,
		container.NewGridWithColumns(3, ui.confirmButton, ui.abortButton, stopButton),
		ui.createLogAccordion(),
	)

	ui.window.SetCloseIntercept(func() {
		ui.closed.Store(true)
		stop()
		ui.window.Close()
		ui.app.Quit()
	})
	ui.window.SetContent(content)
	ui.window.Resize(fyne.NewSize(420, 320))
	ui.window.Show()
}

// do runs f on the fyne goroutine unless the window has been closed
func (ui *RunnerUI) do(f func()) {
	if ui.closed.Load() {
		return
	}
	fyne.Do(f)
}

func (ui *RunnerUI) createLogAccordion() *widget.Accordion {
	ui.logContent = widget.NewLabel("")
	logScroll := container.NewVScroll(ui.logContent)
	logScroll.SetMinSize(fyne.NewSize(300, 120))

	item := widget.NewAccordionItem("Logs", logScroll)
	item.Open = true
	return widget.NewAccordion(item)
}
