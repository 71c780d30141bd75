// Package emu provides functional Thumb emulation.
package emu

// AddWithCarry computes a + b + carryIn modulo 2^32 and the resulting N, Z,
// C and V flags. Subtraction is AddWithCarry(a, ^b, true).
func AddWithCarry(a, b uint32, carryIn bool) (uint32, Flags) {
	var cin uint64
	if carryIn {
		cin = 1
	}

	wide := uint64(a) + uint64(b) + cin
	result := uint32(wide)

	return result, Flags{
		N: result&0x80000000 != 0,
		Z: result == 0,
		C: wide > 0xFFFFFFFF,
		V: (a^result)&(b^result)&0x80000000 != 0,
	}
}

// ALU implements Thumb arithmetic, logic and shift operations.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Add returns a + b, updating all four flags if setFlags.
func (a *ALU) Add(op1, op2 uint32, setFlags bool) uint32 {
	return a.adc(op1, op2, false, setFlags)
}

// Sub returns a - b, updating all four flags if setFlags.
func (a *ALU) Sub(op1, op2 uint32, setFlags bool) uint32 {
	return a.adc(op1, ^op2, true, setFlags)
}

// Adc returns a + b + C.
func (a *ALU) Adc(op1, op2 uint32) uint32 {
	return a.adc(op1, op2, a.regFile.Flags.C, true)
}

// Sbc returns a - b - !C.
func (a *ALU) Sbc(op1, op2 uint32) uint32 {
	return a.adc(op1, ^op2, a.regFile.Flags.C, true)
}

func (a *ALU) adc(op1, op2 uint32, carryIn, setFlags bool) uint32 {
	result, flags := AddWithCarry(op1, op2, carryIn)
	if setFlags {
		a.regFile.Flags = flags
	}
	return result
}

// Logic sets N and Z from a logical result and returns it.
func (a *ALU) Logic(result uint32, setFlags bool) uint32 {
	if setFlags {
		a.regFile.setNZ(result)
	}
	return result
}

// Mul returns the low 32 bits of op1 * op2. Only N and Z are affected.
func (a *ALU) Mul(op1, op2 uint32) uint32 {
	return a.Logic(op1*op2, true)
}

// LSL performs a logical shift left. An amount of 0 leaves C unchanged.
func (a *ALU) LSL(value, amount uint32, setFlags bool) uint32 {
	var result uint32
	carry := a.regFile.Flags.C

	switch {
	case amount == 0:
		result = value
	case amount < 32:
		carry = value&(1<<(32-amount)) != 0
		result = value << amount
	case amount == 32:
		carry = value&1 != 0
	default:
		carry = false
	}

	return a.shifted(result, carry, setFlags)
}

// LSR performs a logical shift right. An amount of 0 leaves C unchanged;
// immediate forms encode a shift of 32 as 0 and are widened by the caller.
func (a *ALU) LSR(value, amount uint32, setFlags bool) uint32 {
	var result uint32
	carry := a.regFile.Flags.C

	switch {
	case amount == 0:
		result = value
	case amount < 32:
		carry = value&(1<<(amount-1)) != 0
		result = value >> amount
	case amount == 32:
		carry = value&0x80000000 != 0
	default:
		carry = false
	}

	return a.shifted(result, carry, setFlags)
}

// ASR performs an arithmetic shift right.
func (a *ALU) ASR(value, amount uint32, setFlags bool) uint32 {
	var result uint32
	carry := a.regFile.Flags.C

	switch {
	case amount == 0:
		result = value
	case amount < 32:
		carry = value&(1<<(amount-1)) != 0
		result = uint32(int32(value) >> amount)
	default:
		carry = value&0x80000000 != 0
		result = uint32(int32(value) >> 31)
	}

	return a.shifted(result, carry, setFlags)
}

// ROR performs a rotate right by a register-specified amount.
func (a *ALU) ROR(value, amount uint32, setFlags bool) uint32 {
	result := value
	carry := a.regFile.Flags.C

	if amount != 0 {
		rot := amount & 31
		if rot != 0 {
			result = value>>rot | value<<(32-rot)
		}
		carry = result&0x80000000 != 0
	}

	return a.shifted(result, carry, setFlags)
}

// shifted commits a shift result. V is never touched by shifts.
func (a *ALU) shifted(result uint32, carry, setFlags bool) uint32 {
	if setFlags {
		a.regFile.setNZ(result)
		a.regFile.Flags.C = carry
	}
	return result
}
