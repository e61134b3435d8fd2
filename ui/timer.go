package ui

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

type timer struct {
	showMillis bool
	startTime  time.Time
	mtx        *sync.Mutex
	text       *canvas.Text
	stop       chan struct{}
	stopOnce   sync.Once
}

func newTimer(showMillis bool) *timer {
	return &timer{
		showMillis: showMillis,
		startTime:  time.Time{},
		mtx:        &sync.Mutex{},
		text:       canvas.NewText(formatElapsed(0, showMillis), nil),
		stop:       make(chan struct{}),
	}
}

func (t *timer) Set(start time.Time) {
	t.mtx.Lock()
	t.startTime = start
	t.mtx.Unlock()
}

// Stop freezes the display. It is safe to call more than once.
func (t *timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

func (t *timer) Go(waitForStart chan struct{}) {
	d := time.Second
	if t.showMillis {
		d = 64 * time.Millisecond
	}

	go func() {
		select {
		case <-waitForStart:
		case <-t.stop:
			return
		}

		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
			}
			fyne.Do(func() {
				t.mtx.Lock()
				t.text.Text = formatElapsed(time.Since(t.startTime), t.showMillis)
				t.mtx.Unlock()
				t.text.Refresh()
			})
		}
	}()
}

// formatElapsed renders mm:ss or mm:ss.000. Minutes keep counting past 59.
func formatElapsed(elapsed time.Duration, showMillis bool) string {
	if elapsed < 0 {
		elapsed = 0
	}
	minutes := int(elapsed.Minutes())
	seconds := int(elapsed.Seconds()) % 60
	if showMillis {
		millis := int(elapsed.Milliseconds()) % 1000
		return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
