package periph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/periph"
)

var _ = Describe("Buttons", func() {
	var (
		memory  *emu.Memory
		sercom  *periph.Sercom
		buttons *periph.Buttons
	)

	poll := func() uint8 {
		memory.Write8(sercom.Base()+0x28, 0)
		return memory.Read8(sercom.Base() + 0x28)
	}

	BeforeEach(func() {
		var bus *emu.PeripheralBus
		memory, bus = newMemory()
		portB := periph.NewPort(periph.PortBBase)
		Expect(portB.Map(bus)).To(Succeed())
		sercom = periph.NewSercom(1)
		sercom.Register(bus)
		buttons = periph.NewButtons(sercom, portB)
	})

	It("should read all released", func() {
		Expect(buttons.State()).To(Equal(uint8(0xFF)))
		Expect(poll()).To(Equal(uint8(0xFF)))
	})

	It("should clear the bit of a held button", func() {
		buttons.Press(periph.ButtonA)
		buttons.Set(periph.ButtonDown, true)
		Expect(poll()).To(Equal(uint8(0xEE)))

		buttons.Release(periph.ButtonA)
		buttons.Set(periph.ButtonDown, false)
		Expect(poll()).To(Equal(uint8(0xFF)))
	})

	It("should not answer while its chip select is high", func() {
		memory.Write32(periph.PortBBase+0x18, 1<<3)
		sercom.SetData(0x5A)
		buttons.Press(periph.ButtonMenu)

		Expect(poll()).To(Equal(uint8(0x5A)))
	})

	It("should name buttons", func() {
		Expect(periph.ButtonMenu.String()).To(Equal("menu"))
		Expect(periph.Button(9).String()).To(Equal("unknown"))
	})
})
