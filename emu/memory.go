// Package emu provides functional Thumb emulation.
package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Address map.
const (
	FlashBase      uint32 = 0x00000000
	SRAMBase       uint32 = 0x20000000
	PeripheralBase uint32 = 0x40000000
	PeripheralEnd  uint32 = 0x60000000
	SystemBase     uint32 = 0xE0000000

	DefaultFlashSize = 256 * 1024
	DefaultSRAMSize  = 32 * 1024

	// erasedByte is the content of unprogrammed flash and of SRAM at power-up.
	erasedByte = 0xFF
)

// AccessKind classifies a memory access reported to an AccessObserver.
type AccessKind uint8

// Access kinds.
const (
	AccessFetch AccessKind = iota
	AccessRead
	AccessWrite
)

// AccessObserver is notified of every flash and SRAM access. It is used by
// models that only account for traffic, such as a flash read cache.
type AccessObserver interface {
	ObserveAccess(kind AccessKind, addr uint32, size uint8)
}

// Memory is the microcontroller address space: flash, SRAM and the
// peripheral regions routed through a PeripheralBus. Addresses outside
// these regions, or past the end of a backing array, read as 0 and ignore
// writes.
type Memory struct {
	flash    []byte
	sram     []byte
	bus      *PeripheralBus
	observer AccessObserver
	log      *logrus.Logger
}

// NewMemory creates an address space with the given backing sizes. A nil
// bus gets a fresh PeripheralBus; a nil logger uses the standard logger.
func NewMemory(flashSize, sramSize int, bus *PeripheralBus, logger *logrus.Logger) *Memory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bus == nil {
		bus = NewPeripheralBus(logger)
	}

	m := &Memory{
		flash: make([]byte, flashSize),
		sram:  make([]byte, sramSize),
		bus:   bus,
		log:   logger,
	}
	fill(m.flash, erasedByte)
	fill(m.sram, erasedByte)

	return m
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// Bus returns the peripheral bus.
func (m *Memory) Bus() *PeripheralBus {
	return m.bus
}

// SetObserver installs an access observer. nil removes it.
func (m *Memory) SetObserver(o AccessObserver) {
	m.observer = o
}

// FlashSize returns the size of the flash backing array.
func (m *Memory) FlashSize() int {
	return len(m.flash)
}

// SRAMSize returns the size of the SRAM backing array.
func (m *Memory) SRAMSize() int {
	return len(m.sram)
}

// ProgramFlash copies data into flash at offset. Ordinary stores cannot
// modify flash; this is the programming path used by loaders.
func (m *Memory) ProgramFlash(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.flash)) {
		return fmt.Errorf("image of %d bytes at 0x%X exceeds flash size 0x%X",
			len(data), offset, len(m.flash))
	}
	copy(m.flash[offset:], data)
	return nil
}

// EraseFlash restores flash to its unprogrammed state.
func (m *Memory) EraseFlash() {
	fill(m.flash, erasedByte)
}

// ReadFlash copies n bytes of flash starting at offset into a new slice
// without notifying the observer. Bytes past the backing array read as 0.
func (m *Memory) ReadFlash(offset uint32, n int) []byte {
	out := make([]byte, n)
	if uint64(offset) < uint64(len(m.flash)) {
		copy(out, m.flash[offset:])
	}
	return out
}

// backing returns the byte slice holding [addr, addr+size) or nil when the
// range is not backed by storage.
func (m *Memory) backing(addr uint32, size uint8) []byte {
	var region []byte
	var off uint32

	switch {
	case addr < SRAMBase:
		region, off = m.flash, addr-FlashBase
	case addr < PeripheralBase:
		region, off = m.sram, addr-SRAMBase
	default:
		return nil
	}

	if uint64(off)+uint64(size) > uint64(len(region)) {
		return nil
	}
	return region[off : off+uint32(size)]
}

func isPeripheral(addr uint32) bool {
	return (addr >= PeripheralBase && addr < PeripheralEnd) || addr >= SystemBase
}

func (m *Memory) read(addr uint32, size uint8) uint32 {
	if isPeripheral(addr) {
		return m.bus.Read(addr, size)
	}

	b := m.backing(addr, size)
	if b == nil {
		return 0
	}
	if m.observer != nil {
		m.observer.ObserveAccess(AccessRead, addr, size)
	}

	switch size {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}

func (m *Memory) write(addr uint32, size uint8, value uint32) {
	if isPeripheral(addr) {
		m.bus.Write(addr, size, value)
		return
	}

	if addr < SRAMBase {
		m.log.WithFields(logrus.Fields{
			"addr":  fmt.Sprintf("0x%08X", addr),
			"value": fmt.Sprintf("0x%X", value),
		}).Warn("store to flash ignored")
		return
	}

	b := m.backing(addr, size)
	if b == nil {
		return
	}
	if m.observer != nil {
		m.observer.ObserveAccess(AccessWrite, addr, size)
	}

	switch size {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	default:
		binary.LittleEndian.PutUint32(b, value)
	}
}

// Read8 reads a byte from memory.
func (m *Memory) Read8(addr uint32) uint8 {
	return uint8(m.read(addr, 1))
}

// Read16 reads a halfword (little-endian) from memory.
func (m *Memory) Read16(addr uint32) uint16 {
	return uint16(m.read(addr, 2))
}

// Read32 reads a word (little-endian) from memory.
func (m *Memory) Read32(addr uint32) uint32 {
	return m.read(addr, 4)
}

// Write8 writes a byte to memory.
func (m *Memory) Write8(addr uint32, value uint8) {
	m.write(addr, 1, uint32(value))
}

// Write16 writes a halfword (little-endian) to memory.
func (m *Memory) Write16(addr uint32, value uint16) {
	m.write(addr, 2, uint32(value))
}

// Write32 writes a word (little-endian) to memory.
func (m *Memory) Write32(addr uint32, value uint32) {
	m.write(addr, 4, value)
}

// fetch16 reads an instruction halfword without touching the peripheral
// bus. Only flash and SRAM hold code.
func (m *Memory) fetch16(addr uint32) (uint16, bool) {
	b := m.backing(addr, 2)
	if b == nil {
		return 0, false
	}
	if m.observer != nil {
		m.observer.ObserveAccess(AccessFetch, addr, 2)
	}
	return binary.LittleEndian.Uint16(b), true
}
