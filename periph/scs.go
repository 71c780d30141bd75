package periph

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/emu"
)

// NVIC interrupt enable registers in the System Control Space.
const (
	SCSBase   uint32 = 0xE000E000
	NVICSetEn        = SCSBase + 0x100
	NVICClrEn        = SCSBase + 0x180
)

// SCS records the NVIC interrupt enable mask. Enabling an interrupt does
// not affect delivery; the emulator raises its exceptions unconditionally.
type SCS struct {
	enabled uint32
	log     *logrus.Logger
}

// NewSCS creates the System Control Space registers.
func NewSCS(logger *logrus.Logger) *SCS {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SCS{log: logger}
}

// Register installs SETENA and CLRENA on bus.
func (s *SCS) Register(bus *emu.PeripheralBus) {
	read := func(uint32) uint32 { return s.enabled }

	bus.RegisterReadHandler(NVICSetEn, read)
	bus.RegisterReadHandler(NVICClrEn, read)
	bus.RegisterWriteHandler(NVICSetEn, func(_ uint32, v uint32) {
		s.enabled |= v
		s.log.WithField("mask", fmt.Sprintf("0x%08X", v)).Debug("NVIC enable")
	})
	bus.RegisterWriteHandler(NVICClrEn, func(_ uint32, v uint32) {
		s.enabled &^= v
		s.log.WithField("mask", fmt.Sprintf("0x%08X", v)).Debug("NVIC disable")
	})
}

// Enabled returns the interrupt enable mask.
func (s *SCS) Enabled() uint32 {
	return s.enabled
}

// IsEnabled reports whether external interrupt irq is enabled.
func (s *SCS) IsEnabled(irq int) bool {
	return s.enabled&(1<<irq) != 0
}
