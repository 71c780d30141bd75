// Package emu provides functional Thumb emulation.
package emu

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ReadHandler services a read of a memory-mapped register.
type ReadHandler func(addr uint32) uint32

// WriteHandler services a write to a memory-mapped register.
type WriteHandler func(addr uint32, value uint32)

// Peripheral is a device occupying a contiguous block of the peripheral
// address space. Read and Write receive the absolute address of the access.
type Peripheral interface {
	Read(addr uint32) uint32
	Write(addr uint32, value uint32)
}

const (
	busPageSize uint32 = 0x100
	busPageMask uint32 = ^(busPageSize - 1)
)

// Fixed status registers polled by startup code. No device models them; the
// values report everything as ready.
const (
	SysctrlPCLKSR uint32 = 0x4000080C
	GclkSTATUS    uint32 = 0x40000C01
	AdcINTFLAG    uint32 = 0x42004018
	AdcSTATUS     uint32 = 0x4200401A
)

type mappedRange struct {
	start, end uint32 // inclusive
	device     Peripheral
}

// PeripheralBus routes accesses to the peripheral and system regions to
// registered handlers. Exact-address handlers take precedence over mapped
// peripherals; byte and halfword accesses with no handler of their own fall
// back to the handler of the enclosing word.
type PeripheralBus struct {
	readers map[uint32]ReadHandler
	writers map[uint32]WriteHandler
	pages   map[uint32][]mappedRange
	log     *logrus.Logger
}

// NewPeripheralBus creates a bus with the fixed status registers installed.
func NewPeripheralBus(logger *logrus.Logger) *PeripheralBus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := &PeripheralBus{
		readers: make(map[uint32]ReadHandler),
		writers: make(map[uint32]WriteHandler),
		pages:   make(map[uint32][]mappedRange),
		log:     logger,
	}

	b.RegisterReadHandler(SysctrlPCLKSR, constant(0xDF))
	b.RegisterReadHandler(GclkSTATUS, constant(0))
	b.RegisterReadHandler(AdcINTFLAG, constant(0x01))
	b.RegisterReadHandler(AdcSTATUS, constant(0))

	return b
}

func constant(v uint32) ReadHandler {
	return func(uint32) uint32 { return v }
}

// RegisterReadHandler binds h to reads of addr. The last registration wins.
func (b *PeripheralBus) RegisterReadHandler(addr uint32, h ReadHandler) {
	b.readers[addr] = h
}

// RegisterWriteHandler binds h to writes of addr. The last registration wins.
func (b *PeripheralBus) RegisterWriteHandler(addr uint32, h WriteHandler) {
	b.writers[addr] = h
}

// MapPeripheral attaches p to the inclusive address block [start, end].
func (b *PeripheralBus) MapPeripheral(start, end uint32, p Peripheral) error {
	if end < start {
		return fmt.Errorf("invalid peripheral range 0x%08X-0x%08X", start, end)
	}
	if r, ok := b.overlapping(start, end); ok {
		return fmt.Errorf("peripheral range 0x%08X-0x%08X overlaps 0x%08X-0x%08X",
			start, end, r.start, r.end)
	}

	r := mappedRange{start: start, end: end, device: p}
	for page := start & busPageMask; ; page += busPageSize {
		b.pages[page] = append(b.pages[page], r)
		if page == end&busPageMask {
			break
		}
	}

	return nil
}

func (b *PeripheralBus) overlapping(start, end uint32) (mappedRange, bool) {
	for page := start & busPageMask; ; page += busPageSize {
		for _, r := range b.pages[page] {
			if start <= r.end && r.start <= end {
				return r, true
			}
		}
		if page == end&busPageMask {
			return mappedRange{}, false
		}
	}
}

func (b *PeripheralBus) device(addr uint32) (Peripheral, bool) {
	for _, r := range b.pages[addr&busPageMask] {
		if addr >= r.start && addr <= r.end {
			return r.device, true
		}
	}
	return nil, false
}

// Read performs a size-byte read at addr. Unhandled addresses read as 0.
func (b *PeripheralBus) Read(addr uint32, size uint8) uint32 {
	if h, ok := b.readers[addr]; ok {
		return truncate(h(addr), size)
	}
	if p, ok := b.device(addr); ok {
		return truncate(p.Read(addr), size)
	}
	if size < 4 {
		word := addr &^ 3
		if h, ok := b.readers[word]; ok {
			return truncate(h(word)>>(8*(addr&3)), size)
		}
	}

	b.log.WithFields(logrus.Fields{
		"addr": fmt.Sprintf("0x%08X", addr),
		"size": size,
	}).Debug("unmapped peripheral read")

	return 0
}

// Write performs a size-byte write at addr. Unhandled writes are dropped.
func (b *PeripheralBus) Write(addr uint32, size uint8, value uint32) {
	value = truncate(value, size)

	if h, ok := b.writers[addr]; ok {
		h(addr, value)
		return
	}
	if p, ok := b.device(addr); ok {
		p.Write(addr, value)
		return
	}
	if size < 4 {
		word := addr &^ 3
		if h, ok := b.writers[word]; ok {
			h(word, value<<(8*(addr&3)))
			return
		}
	}

	b.log.WithFields(logrus.Fields{
		"addr":  fmt.Sprintf("0x%08X", addr),
		"size":  size,
		"value": fmt.Sprintf("0x%X", value),
	}).Debug("unmapped peripheral write")
}

func truncate(v uint32, size uint8) uint32 {
	switch size {
	case 1:
		return v & 0xFF
	case 2:
		return v & 0xFFFF
	}
	return v
}
