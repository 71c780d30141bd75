package emu_test

import (
	"encoding/binary"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/timing/latency"
)

const (
	stackTop   = uint32(0x20001000)
	entryPoint = uint32(0x40)
)

// firmware builds a flash image with a vector table and Thumb code.
type firmware struct {
	data []byte
}

func newFirmware() *firmware {
	f := &firmware{data: make([]byte, 0x200)}
	for i := range f.data {
		f.data[i] = 0xFF
	}
	f.word(0x00, stackTop)
	f.word(0x04, entryPoint|1)
	return f
}

func (f *firmware) word(off, v uint32) *firmware {
	binary.LittleEndian.PutUint32(f.data[off:], v)
	return f
}

func (f *firmware) code(off uint32, hws ...uint16) *firmware {
	for i, hw := range hws {
		binary.LittleEndian.PutUint16(f.data[off+uint32(2*i):], hw)
	}
	return f
}

func load(e *emu.Emulator, f *firmware) {
	Expect(e.LoadFlash(f.data, 0)).To(Succeed())
}

var _ = Describe("Emulator", func() {
	var e *emu.Emulator

	BeforeEach(func() {
		e = emu.NewEmulator(
			emu.WithLogger(quietLogger()),
			emu.WithTickThreshold(0),
		)
	})

	Describe("NewEmulator", func() {
		It("should create an emulator with initialized components", func() {
			Expect(e).NotTo(BeNil())
			Expect(e.RegFile()).NotTo(BeNil())
			Expect(e.Memory()).NotTo(BeNil())
			Expect(e.Bus()).To(BeIdenticalTo(e.Memory().Bus()))
			Expect(e.Memory().FlashSize()).To(Equal(emu.DefaultFlashSize))
			Expect(e.Memory().SRAMSize()).To(Equal(emu.DefaultSRAMSize))
		})

		It("should use a supplied peripheral bus", func() {
			bus := emu.NewPeripheralBus(quietLogger())
			e = emu.NewEmulator(emu.WithPeripheralBus(bus), emu.WithLogger(quietLogger()))

			Expect(e.Bus()).To(BeIdenticalTo(bus))
		})
	})

	Describe("Reset", func() {
		It("should load SP, LR and PC from the vector table", func() {
			f := &firmware{data: make([]byte, 0x100)}
			copy(f.data, []byte{0x00, 0x10, 0x00, 0x20, 0x41, 0x00, 0x00, 0x00})
			load(e, f)

			Expect(e.Reg(emu.RegSP)).To(Equal(uint32(0x20001000)))
			Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x42)))
			Expect(e.Reg(emu.RegLR)).To(Equal(uint32(0xFFFFFFFF)))
			Expect(e.Interrupts().Mode()).To(Equal(emu.ModeNormal))
		})

		It("should hold for arbitrary vector words", func() {
			rng := rand.New(rand.NewSource(7))
			f := newFirmware()

			for i := 0; i < 100; i++ {
				sp := rng.Uint32()
				pc := rng.Uint32()
				f.word(0x00, sp).word(0x04, pc)
				load(e, f)

				Expect(e.Reg(emu.RegSP)).To(Equal(sp))
				Expect(e.Reg(emu.RegLR)).To(Equal(uint32(0xFFFFFFFF)))
				Expect(e.Reg(emu.RegPC)).To(Equal(pc&^1 + 2))
			}
		})

		It("should read the vector table at the load offset", func() {
			f := newFirmware().word(0x04, 0x2101)
			Expect(e.LoadFlash(f.data, 0x2000)).To(Succeed())

			Expect(e.Reg(emu.RegSP)).To(Equal(stackTop))
			Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x2102)))
		})
	})

	Describe("Step", func() {
		Context("data processing", func() {
			It("should execute MOVS R0, #128 leaving C and V alone", func() {
				load(e, newFirmware().code(entryPoint, 0x2080))
				e.SetFlags(emu.Flags{C: true, V: true})

				result := e.Step()

				Expect(result).To(Equal(emu.StepResult{}))
				Expect(e.Reg(0)).To(Equal(uint32(128)))
				Expect(e.Flags()).To(Equal(emu.Flags{C: true, V: true}))
				Expect(e.Reg(emu.RegPC)).To(Equal(entryPoint + 4))
				Expect(e.InstructionCount()).To(Equal(uint64(1)))
			})

			It("should run a small arithmetic sequence", func() {
				load(e, newFirmware().code(entryPoint,
					0x2005, // MOVS R0, #5
					0x2103, // MOVS R1, #3
					0x1842, // ADDS R2, R0, R1
					0x1A43, // SUBS R3, R0, R1
					0x4348, // MULS R0, R1
					0x424C, // NEGS R4, R1
				))

				e.Run(6)

				Expect(e.Reg(0)).To(Equal(uint32(15)))
				Expect(e.Reg(2)).To(Equal(uint32(8)))
				Expect(e.Reg(3)).To(Equal(uint32(2)))
				Expect(e.Reg(4)).To(Equal(uint32(0xFFFFFFFD)))
				Expect(e.Flags().N).To(BeTrue())
			})

			It("should widen LSRS #0 to a shift of 32", func() {
				load(e, newFirmware().code(entryPoint, 0x0808)) // LSRS R0, R1, #32
				e.SetReg(1, 0x80000000)

				e.Step()

				Expect(e.Reg(0)).To(Equal(uint32(0)))
				Expect(e.Flags().C).To(BeTrue())
				Expect(e.Flags().Z).To(BeTrue())
			})

			It("should not touch flags for hi-register MOV and ADD", func() {
				load(e, newFirmware().code(entryPoint,
					0x4680, // MOV R8, R0
					0x4440, // ADD R0, R8
				))
				e.SetReg(0, 0x80000000)

				e.Run(2)

				Expect(e.Reg(8)).To(Equal(uint32(0x80000000)))
				Expect(e.Reg(0)).To(Equal(uint32(0)))
				Expect(e.Flags()).To(Equal(emu.Flags{}))
			})

			It("should extend and reverse", func() {
				load(e, newFirmware().code(entryPoint,
					0xB208, // SXTH R0, R1
					0xB24A, // SXTB R2, R1
					0xBA0B, // REV R3, R1
					0xBA4C, // REV16 R4, R1
				))
				e.SetReg(1, 0x12348580)

				e.Run(4)

				Expect(e.Reg(0)).To(Equal(uint32(0xFFFF8580)))
				Expect(e.Reg(2)).To(Equal(uint32(0xFFFFFF80)))
				Expect(e.Reg(3)).To(Equal(uint32(0x80853412)))
				Expect(e.Reg(4)).To(Equal(uint32(0x34128085)))
			})
		})

		Context("compare and branch", func() {
			It("should set Z on equal operands and take BEQ", func() {
				load(e, newFirmware().code(entryPoint,
					0x4288, // CMP R0, R1
					0xD002, // BEQ +4
				))
				e.SetReg(0, 7)
				e.SetReg(1, 7)

				e.Step()
				Expect(e.Flags().Z).To(BeTrue())

				e.Step()
				// BEQ at 0x42: target = 0x42 + 4 + 2*2
				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x4A + 2)))
			})

			It("should fall through BEQ on unequal operands", func() {
				load(e, newFirmware().code(entryPoint, 0x4288, 0xD002))
				e.SetReg(0, 7)
				e.SetReg(1, 8)

				e.Run(2)

				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x44 + 2)))
			})

			It("should loop with a backward branch", func() {
				load(e, newFirmware().code(entryPoint,
					0x2003, // MOVS R0, #3
					0x3801, // loop: SUBS R0, #1
					0xD1FD, // BNE loop
					0x2163, // MOVS R1, #99
				))

				e.Run(1 + 3*2 + 1)

				Expect(e.Reg(0)).To(Equal(uint32(0)))
				Expect(e.Reg(1)).To(Equal(uint32(99)))
			})
		})

		Context("calls", func() {
			It("should join a BL pair and return with BX LR", func() {
				load(e, newFirmware().code(entryPoint,
					0xF000, 0xF802, // BL 0x48
					0x2101,         // MOVS R1, #1
					0x2000,         // MOVS R0, #0
					0x4770,         // 0x48: BX LR
				))

				e.Step()
				Expect(e.Reg(emu.RegLR)).To(Equal(uint32(0x45)))
				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x4A)))

				e.Step()
				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x46)))

				e.Step()
				Expect(e.Reg(1)).To(Equal(uint32(1)))
			})

			It("should execute split BL halves over two steps", func() {
				load(e, newFirmware().code(entryPoint,
					0xF001, // BL prefix: LR = 0x44 + 0x1000
					0x46C0, // MOV R8, R8
					0xF802, // BL suffix: PC = LR + 4
				))

				e.Step()
				Expect(e.Reg(emu.RegLR)).To(Equal(uint32(0x1044)))

				e.Run(2)
				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x1048 + 2)))
				Expect(e.Reg(emu.RegLR)).To(Equal(uint32(0x47)))
			})

			It("should call through BLX and return through POP {PC}", func() {
				load(e, newFirmware().code(entryPoint,
					0x4798, // BLX R3
					0x2101, // MOVS R1, #1
				).code(0x80,
					0xB500, // PUSH {LR}
					0x2263, // MOVS R2, #99
					0xBD00, // POP {PC}
				))
				e.SetReg(3, 0x81)

				e.Run(5)

				Expect(e.Reg(2)).To(Equal(uint32(99)))
				Expect(e.Reg(1)).To(Equal(uint32(1)))
				Expect(e.Reg(emu.RegSP)).To(Equal(stackTop))
			})
		})

		Context("loads and stores", func() {
			It("should load a literal relative to the aligned PC", func() {
				load(e, newFirmware().
					code(entryPoint, 0x4801). // LDR R0, [PC, #4]
					word(0x48, 0xCAFEBABE))

				e.Step()

				Expect(e.Reg(0)).To(Equal(uint32(0xCAFEBABE)))
			})

			It("should store and load every width", func() {
				load(e, newFirmware().code(entryPoint,
					0x6008, // STR R0, [R1, #0]
					0x784A, // LDRB R2, [R1, #1]
					0x884B, // LDRH R3, [R1, #2]
					0x568C, // LDRSB R4, [R1, R2]
					0x5E8D, // LDRSH R5, [R1, R2]
				))
				e.SetReg(0, 0x8081F233)
				e.SetReg(1, emu.SRAMBase+0x100)

				e.Run(2)
				Expect(e.Reg(2)).To(Equal(uint32(0xF2)))

				e.SetReg(2, 2)
				e.Run(3)
				Expect(e.Reg(3)).To(Equal(uint32(0x8081)))
				Expect(e.Reg(4)).To(Equal(uint32(0xFFFFFF81)))
				Expect(e.Reg(5)).To(Equal(uint32(0xFFFF8081)))
			})

			It("should round-trip PUSH and POP of R0-R7", func() {
				load(e, newFirmware().code(entryPoint,
					0xB4FF, // PUSH {R0-R7}
					0xBCFF, // POP {R0-R7}
				))
				for r := 0; r < 8; r++ {
					e.SetReg(r, uint32(0x1000+r))
				}

				e.Step()
				Expect(e.Reg(emu.RegSP)).To(Equal(stackTop - 32))
				Expect(e.Memory().Read32(stackTop - 32)).To(Equal(uint32(0x1000)))
				for r := 0; r < 8; r++ {
					e.SetReg(r, 0)
				}

				e.Step()
				for r := 0; r < 8; r++ {
					Expect(e.Reg(r)).To(Equal(uint32(0x1000 + r)))
				}
				Expect(e.Reg(emu.RegSP)).To(Equal(stackTop))
			})

			It("should write back LDMIA and STMIA", func() {
				load(e, newFirmware().code(entryPoint,
					0xC003, // STMIA R0!, {R0, R1}
					0xCA0C, // LDMIA R2!, {R2, R3}
				))
				e.SetReg(0, emu.SRAMBase)
				e.SetReg(1, 0x11)
				e.SetReg(2, emu.SRAMBase)

				e.Run(2)

				Expect(e.Reg(0)).To(Equal(emu.SRAMBase + 8))
				Expect(e.Reg(2)).To(Equal(emu.SRAMBase))
				Expect(e.Reg(3)).To(Equal(uint32(0x11)))
			})

			It("should adjust SP and address SP-relative slots", func() {
				load(e, newFirmware().code(entryPoint,
					0xB082, // SUB SP, #8
					0x9001, // STR R0, [SP, #4]
					0xA901, // ADD R1, SP, #4
					0x9A01, // LDR R2, [SP, #4]
					0xB002, // ADD SP, #8
				))
				e.SetReg(0, 0x77)

				e.Run(5)

				Expect(e.Reg(1)).To(Equal(stackTop - 4))
				Expect(e.Reg(2)).To(Equal(uint32(0x77)))
				Expect(e.Reg(emu.RegSP)).To(Equal(stackTop))
			})
		})

		Context("system instructions", func() {
			It("should move flags through MSR and MRS", func() {
				load(e, newFirmware().code(entryPoint,
					0xF380, 0x8800, // MSR APSR, R0
					0xF3EF, 0x8100, // MRS R1, APSR
					0xF3EF, 0x8208, // MRS R2, MSP
				))
				e.SetReg(0, 0xF0000000)

				e.Step()
				Expect(e.Flags()).To(Equal(emu.Flags{N: true, Z: true, C: true, V: true}))
				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x44 + 2)))

				e.Run(2)
				Expect(e.Reg(1)).To(Equal(uint32(0xF0000000)))
				Expect(e.Reg(2)).To(Equal(stackTop))
			})

			It("should treat barriers, hints and CPS as no-ops", func() {
				load(e, newFirmware().code(entryPoint,
					0xB672,         // CPSID i
					0xF3BF, 0x8F5F, // DMB
					0xBF00,         // NOP
					0xB662,         // CPSIE i
				))

				result := e.Run(4)

				Expect(result.Undecoded).To(BeFalse())
				Expect(e.Reg(emu.RegPC)).To(Equal(uint32(0x4A + 2)))
			})
		})

		Context("unrecognised encodings", func() {
			It("should skip them and report the soft failure", func() {
				load(e, newFirmware().code(entryPoint, 0xDE00, 0x2080))

				Expect(e.Decoded(entryPoint)).To(BeFalse())
				Expect(e.Decoded(entryPoint + 2)).To(BeTrue())

				result := e.Step()
				Expect(result.Undecoded).To(BeTrue())
				Expect(result.Err).NotTo(HaveOccurred())
				Expect(e.Reg(emu.RegPC)).To(Equal(entryPoint + 4))
				Expect(e.UndecodedCount()).To(Equal(uint64(1)))

				e.Step()
				Expect(e.Reg(0)).To(Equal(uint32(128)))
			})
		})

		Context("code outside flash", func() {
			It("should decode SRAM-resident code on the fly", func() {
				load(e, newFirmware())
				e.Memory().Write16(emu.SRAMBase+0x100, 0x2080)
				e.SetReg(emu.RegPC, emu.SRAMBase+0x100+2)

				e.Step()

				Expect(e.Reg(0)).To(Equal(uint32(128)))
				Expect(e.Reg(emu.RegPC)).To(Equal(emu.SRAMBase + 0x104))
			})
		})
	})

	Describe("Decode cache", func() {
		It("should produce identical traces after re-decoding the same image", func() {
			f := newFirmware().code(entryPoint,
				0x2005, // MOVS R0, #5
				0x2107, // MOVS R1, #7
				0x4348, // MULS R0, R1
				0x1A42, // SUBS R2, R0, R1
				0x4288, // CMP R0, R1
				0xDCF9, // BGT back to 0x40
			)

			trace := func() [][16]uint32 {
				load(e, f)
				var out [][16]uint32
				for i := 0; i < 20; i++ {
					e.Step()
					regs := e.RegFile().R
					regs[0] ^= e.Flags().Pack()
					out = append(out, regs)
				}
				return out
			}

			first := trace()
			second := trace()

			Expect(second).To(Equal(first))
		})
	})

	Describe("Max instructions", func() {
		It("should stop with an error once the limit is reached", func() {
			e = emu.NewEmulator(emu.WithLogger(quietLogger()), emu.WithMaxInstructions(2))
			load(e, newFirmware().code(entryPoint, 0x46C0, 0x46C0, 0x46C0))

			result := e.Run(10)

			Expect(result.Err).To(MatchError(emu.ErrMaxInstructions))
			Expect(e.InstructionCount()).To(Equal(uint64(2)))
		})
	})

	Describe("Cycle accounting", func() {
		It("should stay at zero without a latency table", func() {
			load(e, newFirmware().code(entryPoint, 0x46C0, 0x46C0))
			e.Run(2)

			Expect(e.CycleCount()).To(BeZero())
		})

		It("should charge taken branches and loads", func() {
			e = emu.NewEmulator(
				emu.WithLogger(quietLogger()),
				emu.WithTickThreshold(0),
				emu.WithLatencyTable(latency.NewTable()),
			)
			// MOVS R0, #1; CMP R0, #1; BEQ +2; NOP; LDR R1, [SP]
			load(e, newFirmware().code(entryPoint, 0x2001, 0x2801, 0xD000, 0x46C0, 0x9900))

			e.Run(4)

			Expect(e.Reg(emu.RegPC)).To(Equal(entryPoint + 10 + 2))
			Expect(e.CycleCount()).To(Equal(uint64(1 + 1 + 2 + 2)))
		})
	})

	Describe("Access observer", func() {
		It("should see instruction fetches", func() {
			counter := &accessCounter{counts: map[emu.AccessKind]int{}}
			e = emu.NewEmulator(emu.WithLogger(quietLogger()), emu.WithAccessObserver(counter))
			load(e, newFirmware().code(entryPoint, 0x46C0, 0x46C0))
			counter.counts = map[emu.AccessKind]int{}

			e.Run(2)

			Expect(counter.counts[emu.AccessFetch]).To(Equal(2))
		})
	})

	Describe("LoadFlash", func() {
		It("should reject images that do not fit", func() {
			e = emu.NewEmulator(emu.WithLogger(quietLogger()), emu.WithFlashSize(0x100))

			Expect(e.LoadFlash(make([]byte, 0x200), 0)).To(MatchError(ContainSubstring("loading flash")))
		})
	})
})
