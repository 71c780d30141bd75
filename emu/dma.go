// Package emu provides functional Thumb emulation.
package emu

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DMAC register map.
const (
	DMACBase uint32 = 0x41004800

	DMACBaseAddr  = DMACBase + 0x34
	DMACWrbAddr   = DMACBase + 0x38
	DMACChID      = DMACBase + 0x3F
	DMACChCtrlA   = DMACBase + 0x40
	DMACChIntFlag = DMACBase + 0x4E
	DMACChStatus  = DMACBase + 0x4F
)

const (
	chctrlaSWRST  = 1 << 0
	chctrlaENABLE = 1 << 1

	chintflagTCMPL = 1 << 1

	btctrlDSTINC = 1 << 11

	descriptorSize = 0x10
)

// Descriptor is a DMA transfer descriptor as laid out in SRAM.
type Descriptor struct {
	BTCTRL   uint16
	BTCNT    uint16
	SRCADDR  uint32
	DSTADDR  uint32
	DESCADDR uint32
}

// DMAController models the DMAC. A write of CHCTRLA.ENABLE runs the
// selected channel's transfer to completion inside the write and raises the
// DMA completion exception. Transfers are byte-wide and go through Memory so
// a destination may be a peripheral data register.
type DMAController struct {
	memory *Memory
	signal func()
	log    *logrus.Logger

	baseAddr  uint32
	wrbAddr   uint32
	channelID uint8

	// next is the descriptor to run on the next trigger; 0 restarts at the
	// channel's first descriptor.
	next uint32

	transfers uint64
	bytes     uint64
}

// NewDMAController creates a DMAC that reads descriptors from memory and
// calls signal when a transfer completes.
func NewDMAController(memory *Memory, signal func(), logger *logrus.Logger) *DMAController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DMAController{
		memory: memory,
		signal: signal,
		log:    logger,
	}
}

// Register installs the DMAC register handlers on bus.
func (d *DMAController) Register(bus *PeripheralBus) {
	bus.RegisterWriteHandler(DMACBaseAddr, func(_ uint32, v uint32) { d.baseAddr = v })
	bus.RegisterReadHandler(DMACBaseAddr, func(uint32) uint32 { return d.baseAddr })
	bus.RegisterWriteHandler(DMACWrbAddr, func(_ uint32, v uint32) { d.wrbAddr = v })
	bus.RegisterReadHandler(DMACWrbAddr, func(uint32) uint32 { return d.wrbAddr })
	bus.RegisterWriteHandler(DMACChID, func(_ uint32, v uint32) { d.channelID = uint8(v) })
	bus.RegisterReadHandler(DMACChID, func(uint32) uint32 { return uint32(d.channelID) })
	bus.RegisterWriteHandler(DMACChCtrlA, func(_ uint32, v uint32) {
		if v&chctrlaENABLE != 0 && v&chctrlaSWRST == 0 {
			d.Trigger()
		}
	})
	bus.RegisterReadHandler(DMACChIntFlag, func(uint32) uint32 { return chintflagTCMPL })
	bus.RegisterReadHandler(DMACChStatus, func(uint32) uint32 { return 0 })
}

// Reset forgets the descriptor chain position and register contents.
func (d *DMAController) Reset() {
	d.baseAddr = 0
	d.wrbAddr = 0
	d.channelID = 0
	d.next = 0
}

// ReadDescriptor loads the descriptor at addr.
func (d *DMAController) ReadDescriptor(addr uint32) Descriptor {
	return Descriptor{
		BTCTRL:   d.memory.Read16(addr),
		BTCNT:    d.memory.Read16(addr + 0x2),
		SRCADDR:  d.memory.Read32(addr + 0x4),
		DSTADDR:  d.memory.Read32(addr + 0x8),
		DESCADDR: d.memory.Read32(addr + 0xC),
	}
}

// Trigger runs one descriptor of the selected channel and signals
// completion.
func (d *DMAController) Trigger() {
	addr := d.next
	if addr == 0 {
		addr = d.baseAddr + uint32(d.channelID)*descriptorSize
	}

	desc := d.ReadDescriptor(addr)

	d.log.WithFields(logrus.Fields{
		"channel":    d.channelID,
		"descriptor": fmt.Sprintf("0x%08X", addr),
		"btctrl":     fmt.Sprintf("0x%04X", desc.BTCTRL),
		"btcnt":      desc.BTCNT,
		"src":        fmt.Sprintf("0x%08X", desc.SRCADDR),
		"dst":        fmt.Sprintf("0x%08X", desc.DSTADDR),
		"next":       fmt.Sprintf("0x%08X", desc.DESCADDR),
	}).Debug("dma transfer")

	dst := desc.DSTADDR
	for i := uint32(0); i < uint32(desc.BTCNT); i++ {
		d.memory.Write8(dst, d.memory.Read8(desc.SRCADDR+i))
		if desc.BTCTRL&btctrlDSTINC != 0 {
			dst++
		}
	}

	d.next = desc.DESCADDR
	d.transfers++
	d.bytes += uint64(desc.BTCNT)

	if d.signal != nil {
		d.signal()
	}
}

// Transfers returns the number of completed transfers.
func (d *DMAController) Transfers() uint64 {
	return d.transfers
}

// BytesTransferred returns the number of bytes moved by all transfers.
func (d *DMAController) BytesTransferred() uint64 {
	return d.bytes
}
