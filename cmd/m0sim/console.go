package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/sarchlab/m0sim/periph"
)

const ctrlC = 0x03

// console prints the bytes transmitted on a SERCOM and feeds host
// keystrokes back into its receive register.
type console struct {
	out io.Writer

	// raw is set while the host terminal is in raw mode; output then needs
	// explicit carriage returns.
	raw bool

	sercom *periph.Sercom
	input  chan byte
	quit   chan struct{}

	fd       int
	oldState *term.State
	written  uint64
}

func newConsole(s *periph.Sercom, out io.Writer) *console {
	c := &console{out: out, sercom: s, quit: make(chan struct{})}
	s.AddDataListener(c.byteReceived)
	return c
}

func (c *console) byteReceived(b uint8) {
	c.written++
	if c.raw && b == '\n' {
		_, _ = c.out.Write([]byte{'\r', '\n'})
		return
	}
	_, _ = c.out.Write([]byte{b})
}

// Written returns the number of bytes the firmware has transmitted.
func (c *console) Written() uint64 {
	return c.written
}

// StartInput puts stdin in raw mode and forwards keystrokes to the
// SERCOM. It does nothing when stdin is not a terminal.
func (c *console) StartInput() error {
	c.fd = int(os.Stdin.Fd())
	if !term.IsTerminal(c.fd) {
		return nil
	}

	state, err := term.MakeRaw(c.fd)
	if err != nil {
		return fmt.Errorf("console: failed to set raw mode: %w", err)
	}
	c.oldState = state
	c.raw = true
	c.input = make(chan byte, 64)

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			b := buf[0]
			if b == ctrlC {
				close(c.quit)
				return
			}
			// Raw mode sends CR for Enter.
			if b == '\r' {
				b = '\n'
			}
			c.input <- b
		}
	}()

	return nil
}

// Poll loads the oldest pending keystroke into the receive register. It
// runs on the emulation goroutine between frames.
func (c *console) Poll() {
	if c.input == nil {
		return
	}
	select {
	case b := <-c.input:
		c.sercom.SetData(b)
	default:
	}
}

// Interrupted reports whether the user pressed Ctrl-C in raw mode.
func (c *console) Interrupted() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// Stop restores the terminal state.
func (c *console) Stop() {
	if c.oldState != nil {
		_ = term.Restore(c.fd, c.oldState)
		c.oldState = nil
	}
	c.raw = false
}
