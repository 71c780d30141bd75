// Package latency provides an instruction cycle model for Thumb cores.
//
// The cycle counts describe a Cortex-M0+ and can be configured via
// TimingConfig. The model is an estimate; it does not stall the emulator.
package latency

import (
	"math/bits"

	"github.com/sarchlab/m0sim/insts"
)

// Table provides instruction cycle lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default Cortex-M0+ values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the cycles taken by inst. taken reports whether the
// instruction wrote the PC.
func (t *Table) GetLatency(inst *insts.Instruction, taken bool) uint64 {
	if inst == nil || !inst.Decoded() {
		return 1
	}

	c := t.config

	switch inst.Op {
	case insts.OpBL:
		return c.BranchLinkLatency

	case insts.OpBLPrefix, insts.OpBLSuffix:
		// The halves of a split BL share its cost.
		if taken {
			return c.BranchLinkLatency - c.ALULatency
		}
		return c.ALULatency

	case insts.OpB, insts.OpBX, insts.OpBLX:
		return c.BranchLatency

	case insts.OpBCond:
		if taken {
			return c.BranchLatency
		}
		return c.BranchNotTakenLatency

	case insts.OpMUL:
		return c.MultiplyLatency

	case insts.OpLDR, insts.OpLDRB, insts.OpLDRH, insts.OpLDRSB, insts.OpLDRSH:
		return c.LoadLatency

	case insts.OpSTR, insts.OpSTRB, insts.OpSTRH:
		return c.StoreLatency

	case insts.OpPUSH, insts.OpSTM, insts.OpLDM:
		return 1 + c.TransferLatency*uint64(bits.OnesCount16(inst.RegList))

	case insts.OpPOP:
		cycles := 1 + c.TransferLatency*uint64(bits.OnesCount16(inst.RegList))
		if inst.RegList&insts.RegListPC != 0 {
			cycles += c.PopPCPenalty
		}
		return cycles

	case insts.OpDMB, insts.OpDSB, insts.OpISB:
		return c.BarrierLatency

	case insts.OpMRS, insts.OpMSR:
		return c.SpecialRegLatency

	default:
		if taken {
			return c.BranchLatency
		}
		return c.ALULatency
	}
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	return t.IsLoadOp(inst) || t.IsStoreOp(inst)
}

// IsLoadOp returns true if the instruction reads memory.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpLDR, insts.OpLDRB, insts.OpLDRH, insts.OpLDRSB, insts.OpLDRSH,
		insts.OpLDM, insts.OpPOP:
		return true
	default:
		return false
	}
}

// IsStoreOp returns true if the instruction writes memory.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpSTR, insts.OpSTRB, insts.OpSTRH, insts.OpSTM, insts.OpPUSH:
		return true
	default:
		return false
	}
}

// IsBranchOp returns true if the instruction is a branch operation.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpB, insts.OpBCond, insts.OpBL, insts.OpBLPrefix,
		insts.OpBLSuffix, insts.OpBX, insts.OpBLX:
		return true
	default:
		return false
	}
}

// ExceptionEntry returns the cycles taken to enter an exception handler.
func (t *Table) ExceptionEntry() uint64 {
	return t.config.ExceptionEntryLatency
}

// ExceptionExit returns the cycles taken to return from a handler.
func (t *Table) ExceptionExit() uint64 {
	return t.config.ExceptionExitLatency
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
