// Package insts provides Thumb instruction definitions and decoding.
package insts

// Op represents a Thumb opcode.
type Op uint8

// Thumb opcodes.
const (
	OpUnknown Op = iota
	OpLSL
	OpLSR
	OpASR
	OpADD
	OpSUB
	OpMOV
	OpCMP
	OpCMN
	OpAND
	OpEOR
	OpADC
	OpSBC
	OpROR
	OpTST
	OpNEG
	OpORR
	OpMUL
	OpBIC
	OpMVN
	OpBX
	OpBLX
	OpLDR
	OpSTR
	OpLDRB
	OpSTRB
	OpLDRH
	OpSTRH
	OpLDRSB
	OpLDRSH
	OpADR
	OpSXTH
	OpSXTB
	OpUXTH
	OpUXTB
	OpREV
	OpREV16
	OpREVSH
	OpPUSH
	OpPOP
	OpLDM
	OpSTM
	OpB
	OpBCond
	OpBL
	OpBLPrefix
	OpBLSuffix
	OpSVC
	OpBKPT
	OpNOP
	OpCPS
	OpMRS
	OpMSR
	OpDMB
	OpDSB
	OpISB
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown       Format = iota
	FormatMoveShifted          // Shift by immediate (LSL, LSR, ASR)
	FormatAddSub               // Add/subtract register or 3-bit immediate
	FormatImm8                 // Move/compare/add/subtract 8-bit immediate
	FormatALU                  // Register-register ALU operations
	FormatHiReg                // Hi register operations / branch exchange
	FormatPCRelLoad            // PC-relative load (literal pool)
	FormatLoadStoreReg         // Load/store word or byte, register offset
	FormatLoadStoreSign        // Load/store halfword, signed byte/halfword, register offset
	FormatLoadStoreImm         // Load/store word or byte, immediate offset
	FormatLoadStoreHalf        // Load/store halfword, immediate offset
	FormatSPRelLoadStore       // SP-relative load/store
	FormatLoadAddress          // ADR / ADD Rd, SP, #imm
	FormatAdjustSP             // ADD/SUB SP, #imm
	FormatExtend               // Sign/zero extend
	FormatReverse              // Byte reverse
	FormatPushPop              // Push/pop register list
	FormatLoadStoreMultiple    // LDMIA/STMIA
	FormatBranchCond           // Conditional branch
	FormatBranch               // Unconditional branch
	FormatLongBranch           // Long branch with link (BL) halves
	FormatMisc                 // SVC, BKPT, hints, CPS
	FormatSystem               // 32-bit MRS, MSR and barriers
)

// Cond represents a Thumb condition code.
type Cond uint8

// Thumb condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
)

// Register list bits beyond R0-R7 used by push/pop.
const (
	RegListLR uint16 = 1 << 14
	RegListPC uint16 = 1 << 15
)

// Special register numbers (SYSm) accepted by MRS and MSR.
const (
	SysAPSR    uint8 = 0
	SysIAPSR   uint8 = 1
	SysEAPSR   uint8 = 2
	SysXPSR    uint8 = 3
	SysMSP     uint8 = 8
	SysPSP     uint8 = 9
	SysPRIMASK uint8 = 16
	SysCONTROL uint8 = 20
)

// Instruction represents a decoded Thumb instruction.
type Instruction struct {
	Op     Op     // Operation code
	Format Format // Encoding format
	Size   uint8  // Encoded size in bytes (2 or 4)
	Raw    uint16 // First encoded halfword

	// Common fields
	SetFlags  bool  // true if the instruction updates condition flags
	Immediate bool  // true if the second operand is Imm rather than Rm
	Rd        uint8 // Destination register (or transfer register for loads/stores)
	Rn        uint8 // First source / base register
	Rm        uint8 // Second source / offset register

	// Immediate operand, already scaled to bytes where the encoding scales it
	Imm uint32

	// Branch fields
	BranchOffset int32 // Signed branch offset in bytes, relative to PC (address + 4)
	Cond         Cond  // Condition code for conditional branches

	// RegList holds R0-R7 in bits 0-7, plus RegListLR / RegListPC for push/pop.
	RegList uint16
}

// Decoded reports whether the instruction was recognised. An undecoded
// instruction is skipped by the emulator rather than treated as a fault.
func (i *Instruction) Decoded() bool {
	return i.Op != OpUnknown
}

// Decoder decodes Thumb machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new Thumb instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes the Thumb halfword hw. next is the halfword that follows it
// in memory and is only consulted by two-halfword encodings.
func (d *Decoder) Decode(hw, next uint16) *Instruction {
	inst := &Instruction{}
	d.DecodeInto(hw, next, inst)
	return inst
}

// DecodeInto decodes hw into inst, overwriting every field.
func (d *Decoder) DecodeInto(hw, next uint16, inst *Instruction) {
	*inst = Instruction{Op: OpUnknown, Format: FormatUnknown, Size: 2, Raw: hw}

	// Walk the format table from the most specific prefix.
	switch {
	case hw&0xF800 == 0xF000 || hw&0xF800 == 0xF800 || hw&0xF800 == 0xE800:
		d.decode32(hw, next, inst)
	case hw&0xF800 == 0xE000:
		d.decodeBranch(hw, inst)
	case hw&0xF000 == 0xD000:
		d.decodeBranchCond(hw, inst)
	case hw&0xF000 == 0xC000:
		d.decodeLoadStoreMultiple(hw, inst)
	case hw&0xF000 == 0xB000:
		d.decodeMisc(hw, inst)
	case hw&0xF000 == 0xA000:
		d.decodeLoadAddress(hw, inst)
	case hw&0xF000 == 0x9000:
		d.decodeSPRelLoadStore(hw, inst)
	case hw&0xF000 == 0x8000:
		d.decodeLoadStoreHalf(hw, inst)
	case hw&0xE000 == 0x6000:
		d.decodeLoadStoreImm(hw, inst)
	case hw&0xF000 == 0x5000:
		d.decodeLoadStoreReg(hw, inst)
	case hw&0xF800 == 0x4800:
		d.decodePCRelLoad(hw, inst)
	case hw&0xFC00 == 0x4400:
		d.decodeHiReg(hw, inst)
	case hw&0xFC00 == 0x4000:
		d.decodeALU(hw, inst)
	case hw&0xE000 == 0x2000:
		d.decodeImm8(hw, inst)
	case hw&0xF800 == 0x1800:
		d.decodeAddSub(hw, inst)
	default:
		// hw&0xE000 == 0x0000
		d.decodeMoveShifted(hw, inst)
	}
}

// decodeMoveShifted decodes shift-by-immediate instructions.
// Format: 000 | op(2) | imm5 | Rm | Rd
func (d *Decoder) decodeMoveShifted(hw uint16, inst *Instruction) {
	inst.Format = FormatMoveShifted
	inst.SetFlags = true
	inst.Immediate = true
	inst.Imm = uint32(hw>>6) & 0x1F
	inst.Rm = uint8(hw>>3) & 0x7
	inst.Rd = uint8(hw) & 0x7

	switch (hw >> 11) & 0x3 {
	case 0b00:
		inst.Op = OpLSL
	case 0b01:
		inst.Op = OpLSR
	case 0b10:
		inst.Op = OpASR
	}
}

// decodeAddSub decodes add/subtract with a register or 3-bit immediate.
// Format: 00011 | I | op | Rm/imm3 | Rn | Rd
func (d *Decoder) decodeAddSub(hw uint16, inst *Instruction) {
	inst.Format = FormatAddSub
	inst.SetFlags = true
	inst.Immediate = (hw>>10)&0x1 == 1
	inst.Rn = uint8(hw>>3) & 0x7
	inst.Rd = uint8(hw) & 0x7

	field := uint8(hw>>6) & 0x7
	if inst.Immediate {
		inst.Imm = uint32(field)
	} else {
		inst.Rm = field
	}

	if (hw>>9)&0x1 == 0 {
		inst.Op = OpADD
	} else {
		inst.Op = OpSUB
	}
}

// decodeImm8 decodes move/compare/add/subtract with an 8-bit immediate.
// Format: 001 | op(2) | Rd | imm8
func (d *Decoder) decodeImm8(hw uint16, inst *Instruction) {
	inst.Format = FormatImm8
	inst.SetFlags = true
	inst.Immediate = true
	inst.Rd = uint8(hw>>8) & 0x7
	inst.Rn = inst.Rd
	inst.Imm = uint32(hw) & 0xFF

	switch (hw >> 11) & 0x3 {
	case 0b00:
		inst.Op = OpMOV
	case 0b01:
		inst.Op = OpCMP
	case 0b10:
		inst.Op = OpADD
	case 0b11:
		inst.Op = OpSUB
	}
}

var aluOps = [16]Op{
	OpAND, OpEOR, OpLSL, OpLSR, OpASR, OpADC, OpSBC, OpROR,
	OpTST, OpNEG, OpCMP, OpCMN, OpORR, OpMUL, OpBIC, OpMVN,
}

// decodeALU decodes register-register ALU operations.
// Format: 010000 | op(4) | Rm | Rdn
func (d *Decoder) decodeALU(hw uint16, inst *Instruction) {
	inst.Format = FormatALU
	inst.SetFlags = true
	inst.Op = aluOps[(hw>>6)&0xF]
	inst.Rm = uint8(hw>>3) & 0x7
	inst.Rd = uint8(hw) & 0x7
	inst.Rn = inst.Rd
}

// decodeHiReg decodes hi register operations and branch exchange.
// Format: 010001 | op(2) | H1 | H2 | Rm | Rdn
func (d *Decoder) decodeHiReg(hw uint16, inst *Instruction) {
	inst.Format = FormatHiReg

	h1 := uint8(hw>>7) & 0x1
	h2 := uint8(hw>>6) & 0x1
	inst.Rm = h2<<3 | uint8(hw>>3)&0x7
	inst.Rd = h1<<3 | uint8(hw)&0x7
	inst.Rn = inst.Rd

	switch (hw >> 8) & 0x3 {
	case 0b00:
		inst.Op = OpADD
	case 0b01:
		inst.Op = OpCMP
		inst.SetFlags = true
	case 0b10:
		inst.Op = OpMOV
	case 0b11:
		// For BX/BLX bit 7 selects the link variant rather than H1.
		inst.Rd = 0
		inst.Rn = 0
		if h1 == 1 {
			inst.Op = OpBLX
		} else {
			inst.Op = OpBX
		}
	}
}

// decodePCRelLoad decodes a literal pool load.
// Format: 01001 | Rd | imm8
func (d *Decoder) decodePCRelLoad(hw uint16, inst *Instruction) {
	inst.Format = FormatPCRelLoad
	inst.Op = OpLDR
	inst.Immediate = true
	inst.Rd = uint8(hw>>8) & 0x7
	inst.Rn = 15
	inst.Imm = (uint32(hw) & 0xFF) << 2
}

var loadStoreRegOps = [8]Op{
	OpSTR, OpSTRH, OpSTRB, OpLDRSB, OpLDR, OpLDRH, OpLDRB, OpLDRSH,
}

// decodeLoadStoreReg decodes loads and stores with a register offset.
// Format: 0101 | opB(3) | Rm | Rn | Rt
func (d *Decoder) decodeLoadStoreReg(hw uint16, inst *Instruction) {
	opB := (hw >> 9) & 0x7
	inst.Op = loadStoreRegOps[opB]
	inst.Rm = uint8(hw>>6) & 0x7
	inst.Rn = uint8(hw>>3) & 0x7
	inst.Rd = uint8(hw) & 0x7

	switch inst.Op {
	case OpSTRH, OpLDRSB, OpLDRH, OpLDRSH:
		inst.Format = FormatLoadStoreSign
	default:
		inst.Format = FormatLoadStoreReg
	}
}

// decodeLoadStoreImm decodes word/byte loads and stores with a 5-bit offset.
// Format: 011 | B | L | imm5 | Rn | Rt
func (d *Decoder) decodeLoadStoreImm(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadStoreImm
	inst.Immediate = true
	inst.Rn = uint8(hw>>3) & 0x7
	inst.Rd = uint8(hw) & 0x7

	imm5 := uint32(hw>>6) & 0x1F
	byteAccess := (hw>>12)&0x1 == 1
	load := (hw>>11)&0x1 == 1

	switch {
	case byteAccess && load:
		inst.Op = OpLDRB
		inst.Imm = imm5
	case byteAccess:
		inst.Op = OpSTRB
		inst.Imm = imm5
	case load:
		inst.Op = OpLDR
		inst.Imm = imm5 << 2
	default:
		inst.Op = OpSTR
		inst.Imm = imm5 << 2
	}
}

// decodeLoadStoreHalf decodes halfword loads and stores with a 5-bit offset.
// Format: 1000 | L | imm5 | Rn | Rt
func (d *Decoder) decodeLoadStoreHalf(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadStoreHalf
	inst.Immediate = true
	inst.Rn = uint8(hw>>3) & 0x7
	inst.Rd = uint8(hw) & 0x7
	inst.Imm = (uint32(hw>>6) & 0x1F) << 1

	if (hw>>11)&0x1 == 1 {
		inst.Op = OpLDRH
	} else {
		inst.Op = OpSTRH
	}
}

// decodeSPRelLoadStore decodes SP-relative word loads and stores.
// Format: 1001 | L | Rt | imm8
func (d *Decoder) decodeSPRelLoadStore(hw uint16, inst *Instruction) {
	inst.Format = FormatSPRelLoadStore
	inst.Immediate = true
	inst.Rd = uint8(hw>>8) & 0x7
	inst.Rn = 13
	inst.Imm = (uint32(hw) & 0xFF) << 2

	if (hw>>11)&0x1 == 1 {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}
}

// decodeLoadAddress decodes ADR and ADD Rd, SP, #imm.
// Format: 1010 | SP | Rd | imm8
func (d *Decoder) decodeLoadAddress(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadAddress
	inst.Immediate = true
	inst.Rd = uint8(hw>>8) & 0x7
	inst.Imm = (uint32(hw) & 0xFF) << 2

	if (hw>>11)&0x1 == 1 {
		inst.Op = OpADD
		inst.Rn = 13
	} else {
		inst.Op = OpADR
		inst.Rn = 15
	}
}

// decodeMisc decodes the 1011 miscellaneous space: SP adjust, extends,
// push/pop, CPS, byte reverse, BKPT and hints.
func (d *Decoder) decodeMisc(hw uint16, inst *Instruction) {
	switch {
	case hw&0xFF00 == 0xB000:
		// ADD/SUB SP, SP, #imm7*4
		inst.Format = FormatAdjustSP
		inst.Immediate = true
		inst.Rd = 13
		inst.Rn = 13
		inst.Imm = (uint32(hw) & 0x7F) << 2
		if (hw>>7)&0x1 == 1 {
			inst.Op = OpSUB
		} else {
			inst.Op = OpADD
		}
	case hw&0xFF00 == 0xB200:
		inst.Format = FormatExtend
		inst.Rm = uint8(hw>>3) & 0x7
		inst.Rd = uint8(hw) & 0x7
		inst.Op = [4]Op{OpSXTH, OpSXTB, OpUXTH, OpUXTB}[(hw>>6)&0x3]
	case hw&0xF600 == 0xB400:
		// 1011 L 10 R | register list
		inst.Format = FormatPushPop
		inst.RegList = hw & 0xFF
		r := (hw>>8)&0x1 == 1
		if (hw>>11)&0x1 == 1 {
			inst.Op = OpPOP
			if r {
				inst.RegList |= RegListPC
			}
		} else {
			inst.Op = OpPUSH
			if r {
				inst.RegList |= RegListLR
			}
		}
	case hw&0xFFE8 == 0xB660:
		// CPSIE/CPSID; bit 4 set disables
		inst.Format = FormatMisc
		inst.Op = OpCPS
		inst.Imm = uint32(hw>>4) & 0x1
	case hw&0xFF00 == 0xBA00:
		inst.Format = FormatReverse
		inst.Rm = uint8(hw>>3) & 0x7
		inst.Rd = uint8(hw) & 0x7
		switch (hw >> 6) & 0x3 {
		case 0b00:
			inst.Op = OpREV
		case 0b01:
			inst.Op = OpREV16
		case 0b11:
			inst.Op = OpREVSH
		default:
			inst.Format = FormatUnknown
		}
	case hw&0xFF00 == 0xBE00:
		inst.Format = FormatMisc
		inst.Op = OpBKPT
		inst.Imm = uint32(hw) & 0xFF
	case hw&0xFF0F == 0xBF00:
		// NOP, YIELD, WFE, WFI, SEV; IT blocks (non-zero mask) are not ARMv6-M
		inst.Format = FormatMisc
		inst.Op = OpNOP
		inst.Imm = uint32(hw>>4) & 0xF
	}
}

// decodeLoadStoreMultiple decodes LDMIA/STMIA with writeback.
// Format: 1100 | L | Rn | register list
func (d *Decoder) decodeLoadStoreMultiple(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadStoreMultiple
	inst.Rn = uint8(hw>>8) & 0x7
	inst.RegList = hw & 0xFF

	if (hw>>11)&0x1 == 1 {
		inst.Op = OpLDM
	} else {
		inst.Op = OpSTM
	}
}

// decodeBranchCond decodes conditional branches and SVC.
// Format: 1101 | cond | imm8
func (d *Decoder) decodeBranchCond(hw uint16, inst *Instruction) {
	cond := Cond((hw >> 8) & 0xF)

	switch cond {
	case 0b1110:
		// UDF, permanently undefined
		return
	case 0b1111:
		inst.Format = FormatMisc
		inst.Op = OpSVC
		inst.Imm = uint32(hw) & 0xFF
		return
	}

	inst.Format = FormatBranchCond
	inst.Op = OpBCond
	inst.Cond = cond
	inst.BranchOffset = int32(int8(hw&0xFF)) << 1
}

// decodeBranch decodes the unconditional branch.
// Format: 11100 | imm11
func (d *Decoder) decodeBranch(hw uint16, inst *Instruction) {
	inst.Format = FormatBranch
	inst.Op = OpB
	inst.Cond = CondAL
	inst.BranchOffset = signExtend(uint32(hw)&0x7FF, 11) << 1
}

// decode32 decodes the halfword pairs: BL and the 32-bit system
// instructions. A long branch half that cannot be paired still decodes on
// its own so split BL halves execute over two steps.
func (d *Decoder) decode32(hw, next uint16, inst *Instruction) {
	top := hw >> 11

	switch {
	case top == 0b11110 && next&0xD000 == 0xD000:
		d.decodeBL(hw, next, inst)
	case top == 0b11110 && hw&0xFFF0 == 0xF380 && next&0xFF00 == 0x8800:
		inst.Format = FormatSystem
		inst.Op = OpMSR
		inst.Size = 4
		inst.Rn = uint8(hw) & 0xF
		inst.Imm = uint32(next) & 0xFF
	case hw == 0xF3EF && next&0xF000 == 0x8000:
		inst.Format = FormatSystem
		inst.Op = OpMRS
		inst.Size = 4
		inst.Rd = uint8(next>>8) & 0xF
		inst.Imm = uint32(next) & 0xFF
	case hw == 0xF3BF && next&0xFF00 == 0x8F00:
		inst.Format = FormatSystem
		inst.Size = 4
		inst.Imm = uint32(next) & 0xF
		switch (next >> 4) & 0xF {
		case 0x4:
			inst.Op = OpDSB
		case 0x5:
			inst.Op = OpDMB
		case 0x6:
			inst.Op = OpISB
		default:
			inst.Format = FormatUnknown
			inst.Size = 2
		}
	case top == 0b11110:
		// Lone first half: LR = PC + (imm11 << 12)
		inst.Format = FormatLongBranch
		inst.Op = OpBLPrefix
		inst.BranchOffset = signExtend(uint32(hw)&0x7FF, 11) << 12
	case top == 0b11111:
		// Lone second half: PC = LR + (imm11 << 1)
		inst.Format = FormatLongBranch
		inst.Op = OpBLSuffix
		inst.Imm = (uint32(hw) & 0x7FF) << 1
	}
}

// decodeBL joins both halves of a long branch with link.
// First half:  11110 | S | imm10
// Second half: 11 | J1 | 1 | J2 | imm11
// offset = SignExtend(S:I1:I2:imm10:imm11:0), I1 = !(J1^S), I2 = !(J2^S)
func (d *Decoder) decodeBL(hw, next uint16, inst *Instruction) {
	inst.Format = FormatLongBranch
	inst.Op = OpBL
	inst.Size = 4
	inst.Cond = CondAL

	s := uint32(hw>>10) & 0x1
	imm10 := uint32(hw) & 0x3FF
	j1 := uint32(next>>13) & 0x1
	j2 := uint32(next>>11) & 0x1
	imm11 := uint32(next) & 0x7FF
	i1 := ^(j1 ^ s) & 0x1
	i2 := ^(j2 ^ s) & 0x1

	offset := s<<24 | i1<<23 | i2<<22 | imm10<<12 | imm11<<1
	inst.BranchOffset = signExtend(offset, 25)
}

// signExtend sign-extends the low bits of value to 32 bits.
func signExtend(value uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(value<<shift) >> shift
}
