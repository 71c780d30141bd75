package periph

import (
	"github.com/sarchlab/m0sim/emu"
)

// SERCOM register layout.
const (
	Sercom0Base  uint32 = 0x42000800
	SercomStride uint32 = 0x400

	sercomINTFLAG = 0x18
	sercomDATA    = 0x28

	// DRE, TXC and RXC: always ready.
	sercomReady = 0b111
)

// DataListener receives each byte written to DATA.
type DataListener func(b uint8)

// Sercom models the data path of a SERCOM in USART or SPI mode. Writes to
// DATA are delivered to listeners immediately; a listener may load the
// receive byte with SetData before the firmware reads DATA.
type Sercom struct {
	index int
	rx    uint8

	listeners []DataListener
}

// NewSercom creates SERCOMn.
func NewSercom(index int) *Sercom {
	return &Sercom{index: index}
}

// Base returns the register block address.
func (s *Sercom) Base() uint32 {
	return Sercom0Base + uint32(s.index)*SercomStride
}

// Index returns n for SERCOMn.
func (s *Sercom) Index() int {
	return s.index
}

// Register installs the INTFLAG and DATA handlers on bus.
func (s *Sercom) Register(bus *emu.PeripheralBus) {
	base := s.Base()

	bus.RegisterReadHandler(base+sercomINTFLAG, func(uint32) uint32 {
		return sercomReady
	})
	bus.RegisterReadHandler(base+sercomDATA, func(uint32) uint32 {
		return uint32(s.rx)
	})
	bus.RegisterWriteHandler(base+sercomDATA, func(_ uint32, v uint32) {
		b := uint8(v)
		for _, l := range s.listeners {
			l(b)
		}
	})
}

// AddDataListener registers l for transmitted bytes.
func (s *Sercom) AddDataListener(l DataListener) {
	s.listeners = append(s.listeners, l)
}

// SetData loads the byte returned by the next DATA read.
func (s *Sercom) SetData(b uint8) {
	s.rx = b
}
