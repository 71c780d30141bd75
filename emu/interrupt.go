// Package emu provides functional Thumb emulation.
package emu

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Mode is the processor execution mode.
type Mode uint8

// Processor modes.
const (
	ModeNormal Mode = iota
	ModeException
)

func (m Mode) String() string {
	if m == ModeException {
		return "exception"
	}
	return "normal"
}

// ExceptionSource identifies what raised an exception.
type ExceptionSource uint8

// Exception sources, in ascending priority.
const (
	SourceNone ExceptionSource = iota
	SourceTick
	SourceDMA
)

func (s ExceptionSource) String() string {
	switch s {
	case SourceTick:
		return "systick"
	case SourceDMA:
		return "dmac"
	}
	return "none"
}

// Number returns the architectural exception number, as reported in IPSR.
func (s ExceptionSource) Number() uint32 {
	switch s {
	case SourceTick:
		return 15
	case SourceDMA:
		return 16 + dmacIRQ
	}
	return 0
}

// Vector table layout.
const (
	dmacIRQ = 6

	vectorInitialSP = 0x00
	vectorReset     = 0x04
	vectorSysTick   = 0x3C
	vectorDMAC      = 0x40 + dmacIRQ*4
)

// Exception return values.
const (
	// ExcReturn is loaded into LR on exception entry: return to thread
	// mode using the main stack.
	ExcReturn uint32 = 0xFFFFFFF9
	// ExcReturnAddress is the instruction address a branch to ExcReturn
	// lands on once the Thumb bit is cleared.
	ExcReturnAddress uint32 = ExcReturn &^ 1
	// ResetLR is the value of LR after reset.
	ResetLR uint32 = 0xFFFFFFFF
)

// DefaultTickThreshold is the number of instructions between SysTick
// exceptions: one millisecond at 48 MHz assuming one instruction per cycle.
const DefaultTickThreshold = 48000

// InterruptController tracks pending exception sources and the active
// exception. Exceptions do not nest: sources raised while a handler runs
// stay pending until it returns.
type InterruptController struct {
	mode   Mode
	active ExceptionSource

	tickCounter   uint32
	tickThreshold uint32
	tickPending   bool
	dmaPending    bool

	tickVector uint32
	dmaVector  uint32
}

// NewInterruptController creates a controller raising a tick every
// threshold instructions. A threshold of 0 disables the tick source.
func NewInterruptController(threshold uint32) *InterruptController {
	return &InterruptController{tickThreshold: threshold}
}

// Reset clears all pending and active state and installs the vectors.
func (ic *InterruptController) Reset(tickVector, dmaVector uint32) {
	*ic = InterruptController{
		tickThreshold: ic.tickThreshold,
		tickVector:    tickVector,
		dmaVector:     dmaVector,
	}
}

// Mode returns the current execution mode.
func (ic *InterruptController) Mode() Mode {
	return ic.mode
}

// Active returns the source of the exception being handled.
func (ic *InterruptController) Active() ExceptionSource {
	return ic.active
}

// TickThreshold returns the tick period in instructions.
func (ic *InterruptController) TickThreshold() uint32 {
	return ic.tickThreshold
}

// TickCounter returns the instructions counted toward the next tick.
func (ic *InterruptController) TickCounter() uint32 {
	return ic.tickCounter
}

// Pending reports whether src is waiting to be serviced.
func (ic *InterruptController) Pending(src ExceptionSource) bool {
	switch src {
	case SourceTick:
		return ic.tickPending
	case SourceDMA:
		return ic.dmaPending
	}
	return false
}

// SignalDMA marks a DMA completion exception pending.
func (ic *InterruptController) SignalDMA() {
	ic.dmaPending = true
}

// Tick counts one retired instruction and latches a tick exception when the
// threshold is reached.
func (ic *InterruptController) Tick() {
	if ic.tickThreshold == 0 {
		return
	}

	ic.tickCounter++
	if ic.tickCounter >= ic.tickThreshold {
		ic.tickCounter = 0
		ic.tickPending = true
	}
}

// next selects the exception to take this step, DMA first. It clears the
// chosen source's pending bit and returns its vector.
func (ic *InterruptController) next() (ExceptionSource, uint32, bool) {
	if ic.mode != ModeNormal {
		return SourceNone, 0, false
	}

	switch {
	case ic.dmaPending:
		ic.dmaPending = false
		return SourceDMA, ic.dmaVector, true
	case ic.tickPending:
		ic.tickPending = false
		return SourceTick, ic.tickVector, true
	}

	return SourceNone, 0, false
}

func (ic *InterruptController) enter(src ExceptionSource) {
	ic.mode = ModeException
	ic.active = src
}

func (ic *InterruptController) exit() {
	ic.mode = ModeNormal
	ic.active = SourceNone
}

// enterException stacks the exception frame and branches to vector. The
// frame, from high to low address, is xPSR, return address, LR, R12, R3,
// R2, R1, R0.
func (e *Emulator) enterException(src ExceptionSource, vector uint32) {
	rf := e.regFile
	returnAddr := rf.PC() - pipelineOffset

	frame := [...]uint32{
		rf.Flags.Pack() | src.Number(),
		returnAddr,
		rf.LR(),
		rf.R[12],
		rf.R[3],
		rf.R[2],
		rf.R[1],
		rf.R[0],
	}
	for _, v := range frame {
		rf.SetSP(rf.SP() - 4)
		e.memory.Write32(rf.SP(), v)
	}

	e.interrupts.enter(src)
	rf.R[RegLR] = ExcReturn
	e.branchUnit.Jump(vector)

	e.log.WithFields(logrus.Fields{
		"source": src,
		"return": fmt.Sprintf("0x%08X", returnAddr),
		"vector": fmt.Sprintf("0x%08X", vector),
	}).Debug("exception entry")
}

// exitException unstacks the frame pushed by enterException.
func (e *Emulator) exitException() {
	rf := e.regFile

	pop := func() uint32 {
		v := e.memory.Read32(rf.SP())
		rf.SetSP(rf.SP() + 4)
		return v
	}

	rf.R[0] = pop()
	rf.R[1] = pop()
	rf.R[2] = pop()
	rf.R[3] = pop()
	rf.R[12] = pop()
	rf.R[RegLR] = pop()
	returnAddr := pop()
	rf.Flags = Unpack(pop())

	src := e.interrupts.Active()
	e.interrupts.exit()
	e.branchUnit.Jump(returnAddr)

	e.log.WithFields(logrus.Fields{
		"source": src,
		"return": fmt.Sprintf("0x%08X", returnAddr&^1),
	}).Debug("exception return")
}
