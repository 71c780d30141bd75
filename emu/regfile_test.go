package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/emu"
)

var _ = Describe("RegFile", func() {
	It("should pack flags into the top nibble", func() {
		f := emu.Flags{N: true, C: true}

		Expect(f.Pack()).To(Equal(uint32(0xA0000000)))
	})

	It("should round-trip every flag combination", func() {
		for bits := uint32(0); bits < 16; bits++ {
			packed := bits << 28
			Expect(emu.Unpack(packed).Pack()).To(Equal(packed))
		}
	})

	It("should ignore bits outside the flags when unpacking", func() {
		Expect(emu.Unpack(0x0FFFFFFF)).To(Equal(emu.Flags{}))
	})

	It("should ignore out-of-range register indices", func() {
		rf := &emu.RegFile{}
		rf.WriteReg(16, 42)

		Expect(rf.ReadReg(16)).To(Equal(uint32(0)))
		Expect(rf.R).To(Equal([16]uint32{}))
	})
})
