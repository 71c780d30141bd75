// Package benchmarks provides timing benchmark infrastructure for m0sim calibration.
package benchmarks

import "encoding/binary"

// GetMicrobenchmarks returns the standard set of microbenchmarks for
// Cortex-M0+ calibration. Each benchmark targets a specific core
// characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		mixedOperations(),
		loopCountdown(),
		stackFrames(),
	}
}

// GetCoreBenchmarks returns a minimal set of 3 core benchmarks for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopCountdown(),
		functionCalls(),
		branchTaken(),
	}
}

// 1. Arithmetic Sequential - Tests ALU throughput with independent operations
func arithmeticSequential() Benchmark {
	var code []uint16
	for i := 0; i < 20; i++ {
		code = append(code, EncodeADDSImm(uint8(i%5), 1))
	}
	code = append(code, haltInstruction)

	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "20 independent ADDS across 5 registers - measures ALU throughput",
		Program:     BuildProgram(code...),
		ExpectedR0:  4,
	}
}

// 2. Dependency Chain - back-to-back updates of one register
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent ADDS (R0 = R0 + 1)",
		Program:     buildDependencyChain(20),
		ExpectedR0:  20,
	}
}

func buildDependencyChain(n int) []byte {
	code := make([]uint16, 0, n+1)
	for i := 0; i < n; i++ {
		code = append(code, EncodeADDSImm(0, 1))
	}
	code = append(code, haltInstruction)
	return BuildProgram(code...)
}

// 3. Memory Sequential - SRAM stores and loads
func memorySequential() Benchmark {
	return Benchmark{
		Name:        "memory_sequential",
		Description: "4 stores and 2 loads to consecutive SRAM words",
		Program: BuildProgram(
			EncodeMOVSImm(1, 0x20),
			EncodeLSLSImm(1, 1, 24), // R1 = 0x20000000
			EncodeMOVSImm(0, 7),
			EncodeSTRImm(0, 1, 0),
			EncodeSTRImm(0, 1, 4),
			EncodeSTRImm(0, 1, 8),
			EncodeSTRImm(0, 1, 12),
			EncodeMOVSImm(0, 0),
			EncodeLDRImm(2, 1, 0),
			EncodeLDRImm(3, 1, 12),
			EncodeADDSReg(0, 2, 3),
			haltInstruction,
		),
		ExpectedR0: 14,
	}
}

// 4. Function Calls - BL/BX pairs
func functionCalls() Benchmark {
	const calls = 5
	// Calls start at CodeBase, the halt follows, then the callee.
	callee := CodeBase + calls*4 + 2

	var code []uint16
	for i := 0; i < calls; i++ {
		addr := CodeBase + uint32(i)*4
		code = append(code, EncodeBL(int32(callee)-int32(addr+4))...)
	}
	code = append(code,
		haltInstruction,
		EncodeADDSImm(0, 1),
		EncodeBXLR(),
	)

	return Benchmark{
		Name:        "function_calls",
		Description: "5 BL/BX LR call-return pairs - measures call overhead",
		Program:     BuildProgram(code...),
		ExpectedR0:  calls,
	}
}

// 5. Branch Taken - forward branches over dead code
func branchTaken() Benchmark {
	var code []uint16
	for i := 0; i < 5; i++ {
		code = append(code,
			EncodeB(0), // skip the next instruction
			EncodeMOVSImm(0, 99),
			EncodeADDSImm(0, 1),
		)
	}
	code = append(code, haltInstruction)

	return Benchmark{
		Name:        "branch_taken",
		Description: "5 taken unconditional branches",
		Program:     BuildProgram(code...),
		ExpectedR0:  5,
	}
}

// 6. Mixed Operations - multiply, shift and register moves
func mixedOperations() Benchmark {
	return Benchmark{
		Name:        "mixed_operations",
		Description: "MULS, shifts and register arithmetic",
		Program: BuildProgram(
			EncodeMOVSImm(0, 3),
			EncodeMOVSImm(1, 7),
			EncodeMULS(0, 1),       // R0 = 21
			EncodeLSLSImm(0, 0, 1), // R0 = 42
			EncodeMOVSImm(2, 10),
			EncodeADDSReg(3, 0, 2), // R3 = 52
			EncodeSUBSImm(3, 10),   // R3 = 42
			EncodeCMPImm(3, 42),
			EncodeBCond(0, CondNE), // not taken
			haltInstruction,
		),
		ExpectedR0: 42,
	}
}

// 7. Loop Countdown - a counted loop closed by BNE
func loopCountdown() Benchmark {
	return Benchmark{
		Name:        "loop_countdown",
		Description: "10 iterations of ADDS/SUBS/BNE - measures loop overhead",
		Program: BuildProgram(
			EncodeMOVSImm(0, 0),
			EncodeMOVSImm(1, 10),
			// loop:
			EncodeADDSImm(0, 1),
			EncodeSUBSImm(1, 1),
			EncodeBCond(-8, CondNE),
			haltInstruction,
		),
		ExpectedR0: 10,
	}
}

// 8. Stack Frames - PUSH/POP with a return through PC
func stackFrames() Benchmark {
	// BL at CodeBase+2 calls the function after the halt.
	callee := CodeBase + 2 + 4 + 2

	code := []uint16{EncodeMOVSImm(4, 1)}
	code = append(code, EncodeBL(int32(callee)-int32(CodeBase+2+4))...)
	code = append(code,
		haltInstruction,
		// callee:
		EncodePUSH(1<<4, true),
		EncodeMOVSImm(4, 9),
		EncodeADDSReg(0, 4, 4),
		EncodePOP(1<<4, true),
	)

	return Benchmark{
		Name:        "stack_frames",
		Description: "PUSH {R4, LR} / POP {R4, PC} around a leaf body",
		Program:     BuildProgram(code...),
		ExpectedR0:  18,
	}
}

// Helper functions for building Thumb programs

// Condition codes for EncodeBCond.
const (
	CondEQ uint8 = 0x0
	CondNE uint8 = 0x1
)

// BuildProgram assembles instruction halfwords into a byte slice.
func BuildProgram(halfwords ...uint16) []byte {
	program := make([]byte, 2*len(halfwords))
	for i, hw := range halfwords {
		binary.LittleEndian.PutUint16(program[2*i:], hw)
	}
	return program
}

// EncodeMOVSImm encodes MOVS Rd, #imm8.
func EncodeMOVSImm(rd, imm uint8) uint16 {
	return 0x2000 | uint16(rd&0x7)<<8 | uint16(imm)
}

// EncodeCMPImm encodes CMP Rn, #imm8.
func EncodeCMPImm(rn, imm uint8) uint16 {
	return 0x2800 | uint16(rn&0x7)<<8 | uint16(imm)
}

// EncodeADDSImm encodes ADDS Rdn, #imm8.
func EncodeADDSImm(rdn, imm uint8) uint16 {
	return 0x3000 | uint16(rdn&0x7)<<8 | uint16(imm)
}

// EncodeSUBSImm encodes SUBS Rdn, #imm8.
func EncodeSUBSImm(rdn, imm uint8) uint16 {
	return 0x3800 | uint16(rdn&0x7)<<8 | uint16(imm)
}

// EncodeADDSReg encodes ADDS Rd, Rn, Rm.
func EncodeADDSReg(rd, rn, rm uint8) uint16 {
	return 0x1800 | uint16(rm&0x7)<<6 | uint16(rn&0x7)<<3 | uint16(rd&0x7)
}

// EncodeLSLSImm encodes LSLS Rd, Rm, #imm5.
func EncodeLSLSImm(rd, rm, imm uint8) uint16 {
	return uint16(imm&0x1F)<<6 | uint16(rm&0x7)<<3 | uint16(rd&0x7)
}

// EncodeMULS encodes MULS Rdn, Rm.
func EncodeMULS(rdn, rm uint8) uint16 {
	return 0x4340 | uint16(rm&0x7)<<3 | uint16(rdn&0x7)
}

// EncodeLDRImm encodes LDR Rt, [Rn, #offset]; offset is a multiple of 4.
func EncodeLDRImm(rt, rn uint8, offset uint32) uint16 {
	return 0x6800 | uint16(offset/4&0x1F)<<6 | uint16(rn&0x7)<<3 | uint16(rt&0x7)
}

// EncodeSTRImm encodes STR Rt, [Rn, #offset]; offset is a multiple of 4.
func EncodeSTRImm(rt, rn uint8, offset uint32) uint16 {
	return 0x6000 | uint16(offset/4&0x1F)<<6 | uint16(rn&0x7)<<3 | uint16(rt&0x7)
}

// EncodePUSH encodes PUSH {list[, LR]}.
func EncodePUSH(list uint8, lr bool) uint16 {
	hw := 0xB400 | uint16(list)
	if lr {
		hw |= 1 << 8
	}
	return hw
}

// EncodePOP encodes POP {list[, PC]}.
func EncodePOP(list uint8, pc bool) uint16 {
	hw := 0xBC00 | uint16(list)
	if pc {
		hw |= 1 << 8
	}
	return hw
}

// EncodeBXLR encodes BX LR.
func EncodeBXLR() uint16 {
	return 0x4770
}

// EncodeB encodes an unconditional branch. offset is relative to the
// instruction address plus 4.
func EncodeB(offset int32) uint16 {
	return 0xE000 | uint16(offset>>1)&0x7FF
}

// EncodeBCond encodes a conditional branch. offset is relative to the
// instruction address plus 4.
func EncodeBCond(offset int32, cond uint8) uint16 {
	return 0xD000 | uint16(cond&0xF)<<8 | uint16(offset>>1)&0xFF
}

// EncodeBL encodes BL as its two halfwords. offset is relative to the
// instruction address plus 4.
func EncodeBL(offset int32) []uint16 {
	v := uint32(offset)
	s := v >> 24 & 1
	i1 := v >> 23 & 1
	i2 := v >> 22 & 1
	j1 := ^(i1 ^ s) & 1
	j2 := ^(i2 ^ s) & 1

	hi := 0xF000 | uint16(s)<<10 | uint16(v>>12&0x3FF)
	lo := 0xD000 | uint16(j1)<<13 | uint16(j2)<<11 | uint16(v>>1&0x7FF)
	return []uint16{hi, lo}
}
