// Package emu provides functional Thumb emulation.
package emu

import "github.com/sarchlab/m0sim/insts"

// pipelineOffset is the distance between the address of the instruction
// being fetched and the value held in R15.
const pipelineOffset = 2

// BranchUnit implements Thumb branch operations.
//
// All targets are instruction addresses; the unit stores them in R15 with
// the pipeline offset applied so the next Step fetches from the target.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Jump branches to target. Bit 0 (the Thumb bit) is discarded.
func (b *BranchUnit) Jump(target uint32) {
	b.regFile.R[RegPC] = target&^1 + pipelineOffset
}

// B performs a PC-relative branch. base is the architectural PC of the
// branch instruction (its address plus 4).
func (b *BranchUnit) B(base uint32, offset int32) {
	b.Jump(uint32(int32(base) + offset))
}

// BCond performs a conditional branch based on the APSR flags.
func (b *BranchUnit) BCond(base uint32, offset int32, cond insts.Cond) bool {
	if !b.CheckCondition(cond) {
		return false
	}
	b.B(base, offset)
	return true
}

// BL performs a branch with link. ret is the address of the following
// instruction; it is stored in LR with the Thumb bit set.
func (b *BranchUnit) BL(base uint32, offset int32, ret uint32) {
	b.regFile.R[RegLR] = ret | 1
	b.B(base, offset)
}

// BX branches to the address held in rm.
func (b *BranchUnit) BX(rm uint8) {
	b.Jump(b.regFile.ReadReg(rm))
}

// BLX branches to the address held in rm and links to ret.
func (b *BranchUnit) BLX(rm uint8, ret uint32) {
	// Read target first in case rm is LR
	target := b.regFile.ReadReg(rm)
	b.regFile.R[RegLR] = ret | 1
	b.Jump(target)
}

// CheckCondition evaluates a Thumb condition code against the current flags.
func (b *BranchUnit) CheckCondition(cond insts.Cond) bool {
	return CheckCondition(b.regFile.Flags, cond)
}

// CheckCondition evaluates a condition code against a set of flags.
func CheckCondition(f Flags, cond insts.Cond) bool {
	switch cond {
	case insts.CondEQ:
		// Equal: Z == 1
		return f.Z
	case insts.CondNE:
		// Not Equal: Z == 0
		return !f.Z
	case insts.CondCS:
		// Carry Set / Unsigned higher or same: C == 1
		return f.C
	case insts.CondCC:
		// Carry Clear / Unsigned lower: C == 0
		return !f.C
	case insts.CondMI:
		// Minus / Negative: N == 1
		return f.N
	case insts.CondPL:
		// Plus / Positive or zero: N == 0
		return !f.N
	case insts.CondVS:
		// Overflow: V == 1
		return f.V
	case insts.CondVC:
		// No overflow: V == 0
		return !f.V
	case insts.CondHI:
		// Unsigned higher: C == 1 && Z == 0
		return f.C && !f.Z
	case insts.CondLS:
		// Unsigned lower or same: C == 0 || Z == 1
		return !f.C || f.Z
	case insts.CondGE:
		// Signed greater than or equal: N == V
		return f.N == f.V
	case insts.CondLT:
		// Signed less than: N != V
		return f.N != f.V
	case insts.CondGT:
		// Signed greater than: Z == 0 && N == V
		return !f.Z && (f.N == f.V)
	case insts.CondLE:
		// Signed less than or equal: Z == 1 || N != V
		return f.Z || (f.N != f.V)
	case insts.CondAL:
		return true
	default:
		return false
	}
}
