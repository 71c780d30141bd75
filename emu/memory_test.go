package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/emu"
)

type recordingPeripheral struct {
	reads  []uint32
	writes map[uint32]uint32
}

func (p *recordingPeripheral) Read(addr uint32) uint32 {
	p.reads = append(p.reads, addr)
	return addr & 0xFF
}

func (p *recordingPeripheral) Write(addr uint32, value uint32) {
	p.writes[addr] = value
}

type accessCounter struct {
	counts map[emu.AccessKind]int
}

func (c *accessCounter) ObserveAccess(kind emu.AccessKind, _ uint32, _ uint8) {
	c.counts[kind]++
}

var _ = Describe("Memory", func() {
	var (
		bus    *emu.PeripheralBus
		memory *emu.Memory
	)

	BeforeEach(func() {
		bus = emu.NewPeripheralBus(quietLogger())
		memory = emu.NewMemory(0x1000, 0x1000, bus, quietLogger())
	})

	Describe("backing storage", func() {
		It("should start erased", func() {
			Expect(memory.Read32(0x0)).To(Equal(uint32(0xFFFFFFFF)))
			Expect(memory.Read8(emu.SRAMBase)).To(Equal(uint8(0xFF)))
		})

		It("should store SRAM little-endian", func() {
			memory.Write32(emu.SRAMBase+0x10, 0xDEADBEEF)

			Expect(memory.Read8(emu.SRAMBase + 0x10)).To(Equal(uint8(0xEF)))
			Expect(memory.Read16(emu.SRAMBase + 0x12)).To(Equal(uint16(0xDEAD)))
			Expect(memory.Read32(emu.SRAMBase + 0x10)).To(Equal(uint32(0xDEADBEEF)))
		})

		It("should ignore ordinary stores to flash", func() {
			memory.Write32(0x100, 0x12345678)

			Expect(memory.Read32(0x100)).To(Equal(uint32(0xFFFFFFFF)))
		})

		It("should program flash through the programming path", func() {
			Expect(memory.ProgramFlash(0x10, []byte{1, 2, 3, 4})).To(Succeed())

			Expect(memory.Read32(0x10)).To(Equal(uint32(0x04030201)))
		})

		It("should copy flash without notifying the observer", func() {
			counter := &accessCounter{counts: map[emu.AccessKind]int{}}
			memory.SetObserver(counter)
			Expect(memory.ProgramFlash(0xFFE, []byte{0xAA, 0xBB})).To(Succeed())

			Expect(memory.ReadFlash(0xFFC, 6)).To(Equal([]byte{0xFF, 0xFF, 0xAA, 0xBB, 0, 0}))
			Expect(counter.counts).To(BeEmpty())
		})

		It("should reject images larger than flash", func() {
			err := memory.ProgramFlash(0xFFE, []byte{1, 2, 3, 4})

			Expect(err).To(MatchError(ContainSubstring("exceeds flash size")))
		})

		It("should treat addresses past the backing arrays as unmodeled", func() {
			memory.Write32(emu.SRAMBase+0x2000, 0x1234)

			Expect(memory.Read32(emu.SRAMBase + 0x2000)).To(Equal(uint32(0)))
			Expect(memory.Read32(0x8000)).To(Equal(uint32(0)))
			Expect(memory.Read32(0x60000000)).To(Equal(uint32(0)))
		})
	})

	Describe("peripheral dispatch", func() {
		It("should route reads and writes to registered handlers", func() {
			var written uint32
			bus.RegisterWriteHandler(0x40001000, func(_ uint32, v uint32) { written = v })
			bus.RegisterReadHandler(0x40001000, func(uint32) uint32 { return 0xCAFE })

			memory.Write32(0x40001000, 0x55)

			Expect(written).To(Equal(uint32(0x55)))
			Expect(memory.Read32(0x40001000)).To(Equal(uint32(0xCAFE)))
		})

		It("should let the last registration win", func() {
			bus.RegisterReadHandler(0x40001000, func(uint32) uint32 { return 1 })
			bus.RegisterReadHandler(0x40001000, func(uint32) uint32 { return 2 })

			Expect(memory.Read32(0x40001000)).To(Equal(uint32(2)))
		})

		It("should read 0 and drop writes for unmapped registers", func() {
			memory.Write32(0x40002000, 0xFFFFFFFF)

			Expect(memory.Read32(0x40002000)).To(Equal(uint32(0)))
		})

		It("should extract byte lanes from word handlers", func() {
			bus.RegisterReadHandler(0x40003000, func(uint32) uint32 { return 0x44332211 })

			Expect(memory.Read8(0x40003002)).To(Equal(uint8(0x33)))
			Expect(memory.Read16(0x40003002)).To(Equal(uint16(0x4433)))
		})

		It("should shift narrow writes into the lane of a word handler", func() {
			var written uint32
			bus.RegisterWriteHandler(0x40003000, func(_ uint32, v uint32) { written = v })

			memory.Write8(0x40003001, 0xAB)

			Expect(written).To(Equal(uint32(0xAB00)))
		})

		It("should route the system control space", func() {
			bus.RegisterReadHandler(0xE000E100, func(uint32) uint32 { return 7 })

			Expect(memory.Read32(0xE000E100)).To(Equal(uint32(7)))
		})

		It("should dispatch mapped peripherals with absolute addresses", func() {
			p := &recordingPeripheral{writes: map[uint32]uint32{}}
			Expect(bus.MapPeripheral(0x41000000, 0x410001FF, p)).To(Succeed())

			memory.Write16(0x41000104, 0xBEEF)

			Expect(p.writes).To(HaveKeyWithValue(uint32(0x41000104), uint32(0xBEEF)))
			Expect(memory.Read8(0x410001F0)).To(Equal(uint8(0xF0)))
			Expect(memory.Read8(0x41000200)).To(Equal(uint8(0)))
		})

		It("should prefer exact handlers over mapped peripherals", func() {
			p := &recordingPeripheral{writes: map[uint32]uint32{}}
			Expect(bus.MapPeripheral(0x41000000, 0x410000FF, p)).To(Succeed())
			bus.RegisterReadHandler(0x41000010, func(uint32) uint32 { return 0x99 })

			Expect(memory.Read32(0x41000010)).To(Equal(uint32(0x99)))
			Expect(p.reads).To(BeEmpty())
		})

		It("should reject overlapping and inverted ranges", func() {
			p := &recordingPeripheral{writes: map[uint32]uint32{}}
			Expect(bus.MapPeripheral(0x41000000, 0x410000FF, p)).To(Succeed())

			Expect(bus.MapPeripheral(0x410000F0, 0x410001FF, p)).To(HaveOccurred())
			Expect(bus.MapPeripheral(0x41000300, 0x41000200, p)).To(HaveOccurred())
		})
	})

	Describe("fixed status registers", func() {
		It("should report clocks and conversions as ready", func() {
			Expect(memory.Read32(emu.SysctrlPCLKSR) & 0x10).NotTo(BeZero())
			Expect(memory.Read8(emu.GclkSTATUS)).To(Equal(uint8(0)))
			Expect(memory.Read8(emu.AdcINTFLAG) & 0x01).To(Equal(uint8(1)))
			Expect(memory.Read8(emu.AdcSTATUS)).To(Equal(uint8(0)))
		})
	})

	Describe("access observer", func() {
		It("should see flash and SRAM traffic but not peripheral traffic", func() {
			counter := &accessCounter{counts: map[emu.AccessKind]int{}}
			memory.SetObserver(counter)

			memory.Read32(0x0)
			memory.Write8(emu.SRAMBase, 1)
			memory.Read32(0x40002000)

			Expect(counter.counts[emu.AccessRead]).To(Equal(1))
			Expect(counter.counts[emu.AccessWrite]).To(Equal(1))
		})
	})
})
