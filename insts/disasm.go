package insts

import (
	"fmt"
	"strings"
)

var opNames = map[Op]string{
	OpLSL: "LSL", OpLSR: "LSR", OpASR: "ASR", OpADD: "ADD", OpSUB: "SUB",
	OpMOV: "MOV", OpCMP: "CMP", OpCMN: "CMN", OpAND: "AND", OpEOR: "EOR",
	OpADC: "ADC", OpSBC: "SBC", OpROR: "ROR", OpTST: "TST", OpNEG: "NEG",
	OpORR: "ORR", OpMUL: "MUL", OpBIC: "BIC", OpMVN: "MVN", OpBX: "BX",
	OpBLX: "BLX", OpLDR: "LDR", OpSTR: "STR", OpLDRB: "LDRB", OpSTRB: "STRB",
	OpLDRH: "LDRH", OpSTRH: "STRH", OpLDRSB: "LDRSB", OpLDRSH: "LDRSH",
	OpADR: "ADR", OpSXTH: "SXTH", OpSXTB: "SXTB", OpUXTH: "UXTH",
	OpUXTB: "UXTB", OpREV: "REV", OpREV16: "REV16", OpREVSH: "REVSH",
	OpPUSH: "PUSH", OpPOP: "POP", OpLDM: "LDMIA", OpSTM: "STMIA", OpB: "B",
	OpBCond: "B", OpBL: "BL", OpBLPrefix: "BL.H", OpBLSuffix: "BL.L",
	OpSVC: "SVC", OpBKPT: "BKPT", OpNOP: "NOP", OpCPS: "CPS", OpMRS: "MRS",
	OpMSR: "MSR", OpDMB: "DMB", OpDSB: "DSB", OpISB: "ISB",
}

var condNames = [...]string{
	"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "", "",
}

// String returns the mnemonic for the opcode.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "???"
}

// String returns the condition suffix, empty for always.
func (c Cond) String() string {
	return condNames[c&0xF]
}

func regName(r uint8) string {
	switch r {
	case 13:
		return "SP"
	case 14:
		return "LR"
	case 15:
		return "PC"
	}
	return fmt.Sprintf("R%d", r)
}

func regListString(list uint16) string {
	var parts []string
	for r := uint8(0); r < 8; r++ {
		if list&(1<<r) != 0 {
			parts = append(parts, regName(r))
		}
	}
	if list&RegListLR != 0 {
		parts = append(parts, "LR")
	}
	if list&RegListPC != 0 {
		parts = append(parts, "PC")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// String disassembles the instruction in unified assembler syntax. Branch
// targets are shown as offsets since the instruction carries no address.
func (i *Instruction) String() string {
	mnemonic := i.Op.String()
	if i.SetFlags && i.Op != OpCMP && i.Op != OpCMN && i.Op != OpTST {
		mnemonic += "S"
	}

	switch i.Format {
	case FormatMoveShifted:
		return fmt.Sprintf("%s %s, %s, #%d", mnemonic, regName(i.Rd), regName(i.Rm), i.Imm)
	case FormatAddSub:
		if i.Immediate {
			return fmt.Sprintf("%s %s, %s, #%d", mnemonic, regName(i.Rd), regName(i.Rn), i.Imm)
		}
		return fmt.Sprintf("%s %s, %s, %s", mnemonic, regName(i.Rd), regName(i.Rn), regName(i.Rm))
	case FormatImm8:
		return fmt.Sprintf("%s %s, #%d", mnemonic, regName(i.Rd), i.Imm)
	case FormatALU, FormatHiReg, FormatExtend, FormatReverse:
		switch i.Op {
		case OpBX, OpBLX:
			return fmt.Sprintf("%s %s", mnemonic, regName(i.Rm))
		}
		return fmt.Sprintf("%s %s, %s", mnemonic, regName(i.Rd), regName(i.Rm))
	case FormatPCRelLoad:
		return fmt.Sprintf("%s %s, [PC, #%d]", mnemonic, regName(i.Rd), i.Imm)
	case FormatLoadStoreReg, FormatLoadStoreSign:
		return fmt.Sprintf("%s %s, [%s, %s]", mnemonic, regName(i.Rd), regName(i.Rn), regName(i.Rm))
	case FormatLoadStoreImm, FormatLoadStoreHalf, FormatSPRelLoadStore:
		return fmt.Sprintf("%s %s, [%s, #%d]", mnemonic, regName(i.Rd), regName(i.Rn), i.Imm)
	case FormatLoadAddress:
		if i.Op == OpADR {
			return fmt.Sprintf("%s %s, PC, #%d", mnemonic, regName(i.Rd), i.Imm)
		}
		return fmt.Sprintf("%s %s, SP, #%d", mnemonic, regName(i.Rd), i.Imm)
	case FormatAdjustSP:
		return fmt.Sprintf("%s SP, #%d", mnemonic, i.Imm)
	case FormatPushPop:
		return fmt.Sprintf("%s %s", mnemonic, regListString(i.RegList))
	case FormatLoadStoreMultiple:
		return fmt.Sprintf("%s %s!, %s", mnemonic, regName(i.Rn), regListString(i.RegList))
	case FormatBranchCond:
		return fmt.Sprintf("%s%s %+d", mnemonic, i.Cond, i.BranchOffset)
	case FormatBranch:
		return fmt.Sprintf("%s %+d", mnemonic, i.BranchOffset)
	case FormatLongBranch:
		if i.Op == OpBLSuffix {
			return fmt.Sprintf("%s #%d", mnemonic, i.Imm)
		}
		return fmt.Sprintf("%s %+d", mnemonic, i.BranchOffset)
	case FormatMisc:
		switch i.Op {
		case OpSVC, OpBKPT:
			return fmt.Sprintf("%s #%d", mnemonic, i.Imm)
		case OpCPS:
			if i.Imm == 1 {
				return "CPSID i"
			}
			return "CPSIE i"
		}
		return mnemonic
	case FormatSystem:
		switch i.Op {
		case OpMRS:
			return fmt.Sprintf("%s %s, #%d", mnemonic, regName(i.Rd), i.Imm)
		case OpMSR:
			return fmt.Sprintf("%s #%d, %s", mnemonic, i.Imm, regName(i.Rn))
		}
		return mnemonic
	}

	return fmt.Sprintf("UNDEFINED 0x%04X", i.Raw)
}
