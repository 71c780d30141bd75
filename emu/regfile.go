// Package emu provides functional Thumb emulation.
package emu

// Register aliases.
const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

// RegFile represents the Thumb register file.
// It contains 13 general-purpose registers (R0-R12), the stack pointer
// (R13), the link register (R14) and the program counter (R15).
type RegFile struct {
	// R holds R0-R15.
	// R[15] holds the address of the instruction being fetched plus 2.
	R [16]uint32

	// Flags holds the APSR condition flags.
	Flags Flags
}

// Flags represents the APSR condition flags.
type Flags struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
}

// Flag bit positions in the packed xPSR word.
const (
	FlagN uint32 = 1 << 31
	FlagZ uint32 = 1 << 30
	FlagC uint32 = 1 << 29
	FlagV uint32 = 1 << 28
)

// Pack returns the flags as an xPSR-style bitfield.
func (f Flags) Pack() uint32 {
	var v uint32
	if f.N {
		v |= FlagN
	}
	if f.Z {
		v |= FlagZ
	}
	if f.C {
		v |= FlagC
	}
	if f.V {
		v |= FlagV
	}
	return v
}

// Unpack restores the flags from an xPSR-style bitfield. Bits other than
// N, Z, C and V are ignored.
func Unpack(v uint32) Flags {
	return Flags{
		N: v&FlagN != 0,
		Z: v&FlagZ != 0,
		C: v&FlagC != 0,
		V: v&FlagV != 0,
	}
}

// ReadReg reads a register value. Indices above 15 read as 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg > 15 {
		return 0
	}
	return r.R[reg]
}

// WriteReg writes a value to a register. Writes to indices above 15 are
// ignored.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg > 15 {
		return
	}
	r.R[reg] = value
}

// SP returns the stack pointer.
func (r *RegFile) SP() uint32 { return r.R[RegSP] }

// SetSP sets the stack pointer.
func (r *RegFile) SetSP(v uint32) { r.R[RegSP] = v }

// LR returns the link register.
func (r *RegFile) LR() uint32 { return r.R[RegLR] }

// PC returns the program counter.
func (r *RegFile) PC() uint32 { return r.R[RegPC] }

// SetPC sets the program counter.
func (r *RegFile) SetPC(v uint32) { r.R[RegPC] = v }

// setNZ sets N and Z from a result, leaving C and V unchanged.
func (r *RegFile) setNZ(result uint32) {
	r.Flags.N = result&0x80000000 != 0
	r.Flags.Z = result == 0
}
