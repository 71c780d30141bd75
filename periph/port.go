// Package periph provides ATSAMD21 peripheral models that attach to the
// emulator's peripheral bus.
package periph

import (
	"fmt"

	"github.com/sarchlab/m0sim/emu"
)

// PORT group base addresses.
const (
	PortABase uint32 = 0x41004400
	PortBBase uint32 = 0x41004480

	portGroupSize uint32 = 0x80
)

// PORT register offsets.
const (
	portDIR    = 0x00
	portDIRCLR = 0x04
	portDIRSET = 0x08
	portDIRTGL = 0x0C
	portOUT    = 0x10
	portOUTCLR = 0x14
	portOUTSET = 0x18
	portOUTTGL = 0x1C
	portIN     = 0x20
)

// OutListener is called after OUT changes. mask holds the pins that
// changed; out is the new OUT value.
type OutListener func(mask, out uint32)

// Port models one PORT group. Reads of the SET/CLR/TGL aliases return the
// underlying register.
type Port struct {
	base uint32

	dir uint32
	out uint32
	in  uint32

	listeners []OutListener
}

// NewPort creates a PORT group at base.
func NewPort(base uint32) *Port {
	return &Port{base: base}
}

// Map attaches the group's register block to bus.
func (p *Port) Map(bus *emu.PeripheralBus) error {
	if err := bus.MapPeripheral(p.base, p.base+portGroupSize-1, p); err != nil {
		return fmt.Errorf("mapping PORT at 0x%08X: %w", p.base, err)
	}
	return nil
}

// AddOutListener registers l for OUT changes.
func (p *Port) AddOutListener(l OutListener) {
	p.listeners = append(p.listeners, l)
}

// Out returns the OUT register.
func (p *Port) Out() uint32 {
	return p.out
}

// Dir returns the DIR register.
func (p *Port) Dir() uint32 {
	return p.dir
}

// In returns the IN register.
func (p *Port) In() uint32 {
	return p.in
}

// SetIn drives the input pins.
func (p *Port) SetIn(v uint32) {
	p.in = v
}

// SetPin drives a single input pin.
func (p *Port) SetPin(pin int, high bool) {
	if high {
		p.in |= 1 << pin
	} else {
		p.in &^= 1 << pin
	}
}

// Read implements emu.Peripheral. Narrow reads see their byte lane.
func (p *Port) Read(addr uint32) uint32 {
	off := addr - p.base
	shift := 8 * (off & 3)

	var v uint32
	switch off &^ 3 {
	case portDIR, portDIRCLR, portDIRSET, portDIRTGL:
		v = p.dir
	case portOUT, portOUTCLR, portOUTSET, portOUTTGL:
		v = p.out
	case portIN:
		v = p.in
	}

	return v >> shift
}

// Write implements emu.Peripheral. Narrow writes to the SET, CLR and TGL
// aliases affect their byte lane; narrow writes to DIR and OUT replace the
// whole register.
func (p *Port) Write(addr uint32, value uint32) {
	off := addr - p.base
	value <<= 8 * (off & 3)

	switch off &^ 3 {
	case portDIR:
		p.dir = value
	case portDIRCLR:
		p.dir &^= value
	case portDIRSET:
		p.dir |= value
	case portDIRTGL:
		p.dir ^= value
	case portOUT:
		p.setOut(value)
	case portOUTCLR:
		p.setOut(p.out &^ value)
	case portOUTSET:
		p.setOut(p.out | value)
	case portOUTTGL:
		p.setOut(p.out ^ value)
	}
}

func (p *Port) setOut(v uint32) {
	diff := p.out ^ v
	p.out = v
	if diff == 0 {
		return
	}
	for _, l := range p.listeners {
		l(diff, v)
	}
}
