// Package insts provides Thumb instruction definitions and decoding.
//
// This package implements decoding of 16-bit Thumb machine code (the
// ARMv6-M subset executed by Cortex-M0+ parts) into structured instruction
// representations. It supports:
//   - Shifts, add/subtract and the 8-bit immediate move/compare/add/subtract
//   - Register ALU operations and hi-register operations / branch exchange
//   - Loads and stores of every width and addressing mode
//   - Push/pop, load/store multiple and stack pointer adjustment
//   - Conditional, unconditional and long branch-with-link branches
//   - Sign/zero extension, byte reversal and the system hints
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x2080, 0) // MOVS R0, #128
//	fmt.Printf("Op: %v, Rd: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Imm)
package insts
