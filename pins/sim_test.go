package pins

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/calvinmclean/autoechem/deadline"

	"github.com/stretchr/testify/assert"
)

func TestSimClock(t *testing.T) {
	c := NewSimClock(math.MaxUint32)
	assert.Equal(t, deadline.Ticks(math.MaxUint32), c.Now())

	c.Delay(1500 * time.Microsecond)
	assert.Equal(t, deadline.Ticks(0), c.Now())

	c.Delay(500 * time.Microsecond)
	assert.Equal(t, deadline.Ticks(1), c.Now())

	c.Delay(-time.Second)
	assert.Equal(t, 2*time.Millisecond, c.Elapsed())
}

func TestBank(t *testing.T) {
	clock := NewSimClock(0)
	b := NewBank(clock, true)
	pump := b.Output("pump", false)

	assert.False(t, pump.Get())
	assert.Equal(t, "pump", pump.String())

	assert.NoError(t, pump.Set(true))
	clock.Delay(time.Millisecond)
	assert.NoError(t, pump.Set(true))
	assert.NoError(t, pump.Set(false))
	assert.NoError(t, pump.Set(true))

	assert.True(t, pump.Get())
	assert.Equal(t, 2, b.Pulses("pump"))
	assert.Equal(t, []Event{
		{At: 0, Pin: "pump", Level: true},
		{At: time.Millisecond, Pin: "pump", Level: true},
		{At: time.Millisecond, Pin: "pump", Level: false},
		{At: time.Millisecond, Pin: "pump", Level: true},
	}, b.Events())

	t.Run("FailOn", func(t *testing.T) {
		errWrite := errors.New("write failed")
		b.FailOn("pump", errWrite)
		assert.ErrorIs(t, pump.Set(false), errWrite)
		assert.True(t, pump.Get())
	})

	t.Run("Reset", func(t *testing.T) {
		b.Reset()
		assert.Empty(t, b.Events())
		assert.Zero(t, b.Pulses("pump"))
	})

	t.Run("InitialLevel", func(t *testing.T) {
		b := NewBank(clock, true)
		en := b.Output("syringe.enable", true)
		assert.True(t, en.Get())
		assert.Empty(t, b.Events())

		assert.NoError(t, en.Set(true))
		assert.Zero(t, b.Pulses("syringe.enable"))
	})

	t.Run("NoRecording", func(t *testing.T) {
		b := NewBank(clock, false)
		out := b.Output("anode", false)
		assert.NoError(t, out.Set(true))
		assert.Empty(t, b.Events())
		assert.Equal(t, 1, b.Pulses("anode"))
	})
}
