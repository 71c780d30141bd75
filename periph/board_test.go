package periph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/periph"
)

var _ = Describe("Board", func() {
	It("should share the SPI SERCOM between display and buttons", func() {
		memory, bus := newMemory()
		board, err := periph.NewBoard(bus, 1, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		board.Buttons.Press(periph.ButtonUp)
		spi := board.Sercoms[1].Base() + 0x28

		// Display deselected, buttons selected.
		memory.Write32(periph.PortBBase+0x18, 1<<22)
		memory.Write8(spi, 0)

		Expect(memory.Read8(spi)).To(Equal(uint8(0xF7)))
		Expect(board.Display.Pixels()).To(BeZero())
	})

	It("should fail on a bus that already has the PORT mapped", func() {
		_, bus := newMemory()
		_, err := periph.NewBoard(bus, 1, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		_, err = periph.NewBoard(bus, 1, quietLogger())
		Expect(err).To(MatchError(ContainSubstring("mapping PORT")))
	})
})
