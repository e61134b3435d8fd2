package sequencer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrAborted is returned when the operator answers no at the confirmation gate
	ErrAborted = errors.New("aborted by operator")
	// ErrConsoleClosed is returned when the console input ends while waiting for the operator
	ErrConsoleClosed = errors.New("operator console closed")
)

// Console is the operator's side of the run: a go/no-go gate before each vial and status lines
type Console interface {
	// Confirm blocks until the operator is ready to start the given (zero-based) vial. It returns
	// ErrAborted if the operator declines.
	Confirm(ctx context.Context, vial int) error
	Println(msg string)
}

// AutoConfirm is the console for unattended runs. Confirm returns immediately and status lines are
// written to W when it is set.
type AutoConfirm struct {
	W io.Writer
}

var _ Console = AutoConfirm{}

// Confirm implements Console.
func (a AutoConfirm) Confirm(ctx context.Context, _ int) error {
	return ctx.Err()
}

// Println implements Console.
func (a AutoConfirm) Println(msg string) {
	if a.W != nil {
		fmt.Fprintln(a.W, msg)
	}
}

// LineConsole prompts on W and reads one line from R for each confirmation. R is usually stdin or a
// serial port. Confirm must not be called concurrently.
type LineConsole struct {
	w       io.Writer
	lines   chan lineResult
	start   chan struct{}
	// pending is set while a requested line has not been received
	pending bool
}

type lineResult struct {
	line string
	err  error
}

var _ Console = (*LineConsole)(nil)

// NewLineConsole creates a LineConsole. Lines are read by a background goroutine, one per Confirm
// call, so a cancelled Confirm does not lose the next answer.
func NewLineConsole(r io.Reader, w io.Writer) *LineConsole {
	c := &LineConsole{
		w:     w,
		lines: make(chan lineResult),
		start: make(chan struct{}, 1),
	}
	go c.read(bufio.NewScanner(r))
	return c
}

func (c *LineConsole) read(scanner *bufio.Scanner) {
	for range c.start {
		if scanner.Scan() {
			c.lines <- lineResult{line: scanner.Text()}
			continue
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		c.lines <- lineResult{err: err}
		close(c.lines)
		return
	}
}

// Confirm implements Console.
func (c *LineConsole) Confirm(ctx context.Context, vial int) error {
	fmt.Fprintf(c.w, "Vial %d is set up, are you ready? [Y/n] ", vial+1)

	// a cancelled Confirm leaves its read pending and the next Confirm takes that line
	if !c.pending {
		c.start <- struct{}{}
		c.pending = true
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res, ok := <-c.lines:
		if !ok {
			return ErrConsoleClosed
		}
		c.pending = false
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return ErrConsoleClosed
			}
			return fmt.Errorf("error reading operator console: %w", res.err)
		}
		if declined(res.line) {
			return ErrAborted
		}
		return nil
	}
}

// Println implements Console.
func (c *LineConsole) Println(msg string) {
	fmt.Fprintln(c.w, msg)
}

func declined(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "n", "no", "q", "quit", "abort":
		return true
	}
	return false
}
