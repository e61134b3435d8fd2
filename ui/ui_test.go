package ui

import (
	"context"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"github.com/calvinmclean/autoechem"
	"github.com/calvinmclean/autoechem/sequencer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		name       string
		elapsed    time.Duration
		showMillis bool
		expected   string
	}{
		{"Zero", 0, false, "00:00"},
		{"ZeroMillis", 0, true, "00:00.000"},
		{"Seconds", 75 * time.Second, false, "01:15"},
		{"Millis", 75*time.Second + 42*time.Millisecond, true, "01:15.042"},
		{"PastAnHour", 61*time.Minute + time.Second, false, "61:01"},
		{"Negative", -time.Second, false, "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatElapsed(tt.elapsed, tt.showMillis))
		})
	}
}

func TestPhaseTitle(t *testing.T) {
	assert.Equal(t, "Priming", phaseTitle(autoechem.PhasePriming, -1, 2))
	assert.Equal(t, "Stirring: vial 2 of 3", phaseTitle(autoechem.PhaseStirring, 1, 3))
}

func TestPhaseColor(t *testing.T) {
	assert.Equal(t, colorWaiting, phaseColor(autoechem.PhaseWaitingForOperator))
	assert.Equal(t, colorDone, phaseColor(autoechem.PhaseDone))
	assert.Equal(t, colorMoving, phaseColor(autoechem.PhaseToWaste))
}

func TestGate(t *testing.T) {
	t.Run("AnswerWithoutWaiter", func(t *testing.T) {
		g := newGate(false)
		assert.False(t, g.answer(nil))
	})

	t.Run("Confirm", func(t *testing.T) {
		g := newGate(false)
		opened := make(chan struct{})
		result := make(chan error)
		go func() {
			result <- g.wait(context.Background(), 1, func() { close(opened) })
		}()

		<-opened
		vial, ok := g.waiting()
		assert.True(t, ok)
		assert.Equal(t, 1, vial)

		require.True(t, g.answer(nil))
		assert.NoError(t, <-result)

		// only one answer per opening
		assert.False(t, g.answer(sequencer.ErrAborted))
		_, ok = g.waiting()
		assert.False(t, ok)
	})

	t.Run("Abort", func(t *testing.T) {
		g := newGate(false)
		opened := make(chan struct{})
		result := make(chan error)
		go func() {
			result <- g.wait(context.Background(), 0, func() { close(opened) })
		}()

		<-opened
		require.True(t, g.answer(sequencer.ErrAborted))
		assert.ErrorIs(t, <-result, sequencer.ErrAborted)
	})

	t.Run("Unattended", func(t *testing.T) {
		g := newGate(true)
		err := g.wait(context.Background(), 2, func() {
			t.Fatal("an unattended gate must not prompt")
		})
		assert.NoError(t, err)
		_, ok := g.waiting()
		assert.False(t, ok)
		assert.False(t, g.answer(nil))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, g.wait(ctx, 3, nil), context.Canceled)
	})

	t.Run("CancelledWaitClosesGate", func(t *testing.T) {
		g := newGate(false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := g.wait(ctx, 0, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, g.answer(nil))
	})
}

func TestSettingsPreferences(t *testing.T) {
	prefs := test.NewApp().Preferences()
	saveSettingsToPreferences(prefs, &Settings{Profile: "bench", ConsolePort: "/dev/ttyUSB0", Simulate: false})

	t.Run("SavedReplaceDefaults", func(t *testing.T) {
		s := Settings{Profile: "esp32", Simulate: true}
		loadSettingsFromPreferences(prefs, &s, nil)
		assert.Equal(t, Settings{Profile: "bench", ConsolePort: "/dev/ttyUSB0", Simulate: false}, s)
	})

	t.Run("ExplicitKept", func(t *testing.T) {
		s := Settings{Profile: "esp32", Simulate: true}
		loadSettingsFromPreferences(prefs, &s, []string{SettingSimulate, SettingProfile})
		assert.Equal(t, Settings{Profile: "esp32", ConsolePort: "/dev/ttyUSB0", Simulate: true}, s)
	})
}
