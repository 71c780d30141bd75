// Package emu provides functional Thumb emulation.
package emu

import "github.com/sarchlab/m0sim/insts"

// LoadStoreUnit implements Thumb load and store operations.
type LoadStoreUnit struct {
	regFile *RegFile
	memory  *Memory
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file and memory.
func NewLoadStoreUnit(regFile *RegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		memory:  memory,
	}
}

// Load performs the load selected by op: Rt = mem[addr], zero- or
// sign-extended to 32 bits.
func (lsu *LoadStoreUnit) Load(op insts.Op, rt uint8, addr uint32) {
	var value uint32

	switch op {
	case insts.OpLDR:
		value = lsu.memory.Read32(addr)
	case insts.OpLDRH:
		value = uint32(lsu.memory.Read16(addr))
	case insts.OpLDRB:
		value = uint32(lsu.memory.Read8(addr))
	case insts.OpLDRSH:
		value = uint32(int32(int16(lsu.memory.Read16(addr))))
	case insts.OpLDRSB:
		value = uint32(int32(int8(lsu.memory.Read8(addr))))
	default:
		return
	}

	lsu.regFile.WriteReg(rt, value)
}

// Store performs the store selected by op: mem[addr] = Rt, truncated to the
// access width.
func (lsu *LoadStoreUnit) Store(op insts.Op, rt uint8, addr uint32) {
	value := lsu.regFile.ReadReg(rt)

	switch op {
	case insts.OpSTR:
		lsu.memory.Write32(addr, value)
	case insts.OpSTRH:
		lsu.memory.Write16(addr, uint16(value))
	case insts.OpSTRB:
		lsu.memory.Write8(addr, uint8(value))
	}
}

// Push stores the listed registers below SP, lowest register at the lowest
// address, and decrements SP by 4 per register. RegListLR stores LR.
func (lsu *LoadStoreUnit) Push(list uint16) {
	count := popCount(list)
	sp := lsu.regFile.SP() - 4*count
	lsu.regFile.SetSP(sp)

	addr := sp
	for r := uint8(0); r < 8; r++ {
		if list&(1<<r) != 0 {
			lsu.memory.Write32(addr, lsu.regFile.R[r])
			addr += 4
		}
	}
	if list&insts.RegListLR != 0 {
		lsu.memory.Write32(addr, lsu.regFile.LR())
	}
}

// Pop loads the listed registers from SP upwards and increments SP. It
// returns the popped PC value and true if RegListPC was set; the caller
// performs the branch.
func (lsu *LoadStoreUnit) Pop(list uint16) (uint32, bool) {
	addr := lsu.regFile.SP()

	for r := uint8(0); r < 8; r++ {
		if list&(1<<r) != 0 {
			lsu.regFile.R[r] = lsu.memory.Read32(addr)
			addr += 4
		}
	}

	var pc uint32
	popPC := list&insts.RegListPC != 0
	if popPC {
		pc = lsu.memory.Read32(addr)
		addr += 4
	}

	lsu.regFile.SetSP(addr)
	return pc, popPC
}

// LoadMultiple implements LDMIA Rn!, {list}. Rn is written back unless it
// appears in the list.
func (lsu *LoadStoreUnit) LoadMultiple(rn uint8, list uint16) {
	addr := lsu.regFile.ReadReg(rn)

	for r := uint8(0); r < 8; r++ {
		if list&(1<<r) != 0 {
			lsu.regFile.R[r] = lsu.memory.Read32(addr)
			addr += 4
		}
	}

	if list&(1<<rn) == 0 {
		lsu.regFile.WriteReg(rn, addr)
	}
}

// StoreMultiple implements STMIA Rn!, {list}.
func (lsu *LoadStoreUnit) StoreMultiple(rn uint8, list uint16) {
	addr := lsu.regFile.ReadReg(rn)

	for r := uint8(0); r < 8; r++ {
		if list&(1<<r) != 0 {
			lsu.memory.Write32(addr, lsu.regFile.R[r])
			addr += 4
		}
	}

	lsu.regFile.WriteReg(rn, addr)
}

func popCount(list uint16) uint32 {
	var n uint32
	for ; list != 0; list &= list - 1 {
		n++
	}
	return n
}
