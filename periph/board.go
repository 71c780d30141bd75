package periph

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/emu"
)

// NumSercoms is the number of SERCOM instances on the ATSAMD21.
const NumSercoms = 6

// Board wires the peripherals of a handheld ATSAMD21 board: two PORT
// groups, all SERCOMs, an ST7735 display and the button shift register
// sharing one SPI SERCOM, and the NVIC enable registers.
type Board struct {
	PortA   *Port
	PortB   *Port
	Sercoms [NumSercoms]*Sercom
	Display *ST7735
	Buttons *Buttons
	SCS     *SCS
}

// NewBoard creates the peripherals and registers them on bus. spi selects
// the SERCOM connected to the display and buttons.
func NewBoard(bus *emu.PeripheralBus, spi int, logger *logrus.Logger) (*Board, error) {
	b := &Board{
		PortA: NewPort(PortABase),
		PortB: NewPort(PortBBase),
		SCS:   NewSCS(logger),
	}

	if err := b.PortA.Map(bus); err != nil {
		return nil, err
	}
	if err := b.PortB.Map(bus); err != nil {
		return nil, err
	}

	for i := range b.Sercoms {
		b.Sercoms[i] = NewSercom(i)
		b.Sercoms[i].Register(bus)
	}

	b.Display = NewST7735(b.Sercoms[spi], b.PortB)
	b.Buttons = NewButtons(b.Sercoms[spi], b.PortB)
	b.SCS.Register(bus)

	return b, nil
}
