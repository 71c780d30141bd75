// Package emu provides functional Thumb emulation.
package emu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/insts"
	"github.com/sarchlab/m0sim/timing/latency"
)

// ErrMaxInstructions is returned once the instruction limit is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// ExceptionEvent describes an exception transition performed by a step.
type ExceptionEvent uint8

// Exception events.
const (
	ExceptionNone ExceptionEvent = iota
	ExceptionEntered
	ExceptionReturned
)

// StepResult represents the result of a single step.
type StepResult struct {
	// Undecoded is true if the step landed on an encoding the decoder does
	// not recognise. The instruction was skipped.
	Undecoded bool

	// Exception reports an exception entry or return performed this step.
	Exception ExceptionEvent

	// Source is the exception source for Exception.
	Source ExceptionSource

	// Err is set if execution cannot continue.
	Err error
}

// Emulator executes Thumb instructions functionally.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	bus     *PeripheralBus
	decoder *insts.Decoder
	log     *logrus.Logger

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit
	interrupts *InterruptController
	dma        *DMAController

	// cache holds one decoded instruction per flash halfword.
	cache   []insts.Instruction
	scratch insts.Instruction

	// Construction parameters
	flashSize     int
	sramSize      int
	tickThreshold uint32
	observer      AccessObserver
	latency       *latency.Table

	primask bool

	// Execution state
	instructionCount uint64
	undecodedCount   uint64
	cycleCount       uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *logrus.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.log = logger
	}
}

// WithPeripheralBus supplies the peripheral bus instead of creating one.
func WithPeripheralBus(bus *PeripheralBus) EmulatorOption {
	return func(e *Emulator) {
		e.bus = bus
	}
}

// WithTickThreshold sets the number of instructions between SysTick
// exceptions. 0 disables the tick source.
func WithTickThreshold(n uint32) EmulatorOption {
	return func(e *Emulator) {
		e.tickThreshold = n
	}
}

// WithFlashSize sets the size of the flash backing array in bytes.
func WithFlashSize(size int) EmulatorOption {
	return func(e *Emulator) {
		e.flashSize = size
	}
}

// WithSRAMSize sets the size of the SRAM backing array in bytes.
func WithSRAMSize(size int) EmulatorOption {
	return func(e *Emulator) {
		e.sramSize = size
	}
}

// WithAccessObserver installs an observer of flash and SRAM traffic.
func WithAccessObserver(o AccessObserver) EmulatorOption {
	return func(e *Emulator) {
		e.observer = o
	}
}

// WithLatencyTable enables cycle accounting with the given table.
func WithLatencyTable(t *latency.Table) EmulatorOption {
	return func(e *Emulator) {
		e.latency = t
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new Thumb emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		decoder:       insts.NewDecoder(),
		flashSize:     DefaultFlashSize,
		sramSize:      DefaultSRAMSize,
		tickThreshold: DefaultTickThreshold,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.bus == nil {
		e.bus = NewPeripheralBus(e.log)
	}

	// Create execution units
	e.regFile = &RegFile{}
	e.memory = NewMemory(e.flashSize, e.sramSize, e.bus, e.log)
	e.memory.SetObserver(e.observer)
	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.memory)
	e.branchUnit = NewBranchUnit(e.regFile)
	e.interrupts = NewInterruptController(e.tickThreshold)
	e.dma = NewDMAController(e.memory, e.SignalDMAInterrupt, e.log)
	e.dma.Register(e.bus)

	e.cache = make([]insts.Instruction, e.flashSize/2)
	e.decodeFlash()

	return e
}

// SetAccessObserver replaces the observer of flash and SRAM traffic,
// including instruction fetches. nil removes it.
func (e *Emulator) SetAccessObserver(o AccessObserver) {
	e.observer = o
	e.memory.SetObserver(o)
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// Bus returns the peripheral bus.
func (e *Emulator) Bus() *PeripheralBus {
	return e.bus
}

// Interrupts returns the interrupt controller.
func (e *Emulator) Interrupts() *InterruptController {
	return e.interrupts
}

// DMA returns the DMA controller.
func (e *Emulator) DMA() *DMAController {
	return e.dma
}

// Reg returns register i (0-15).
func (e *Emulator) Reg(i int) uint32 {
	return e.regFile.ReadReg(uint8(i))
}

// SetReg sets register i (0-15).
func (e *Emulator) SetReg(i int, v uint32) {
	e.regFile.WriteReg(uint8(i), v)
}

// Flags returns the condition flags.
func (e *Emulator) Flags() Flags {
	return e.regFile.Flags
}

// SetFlags replaces the condition flags.
func (e *Emulator) SetFlags(f Flags) {
	e.regFile.Flags = f
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// CycleCount returns the estimated cycles spent so far. It stays 0 unless a
// latency table was supplied.
func (e *Emulator) CycleCount() uint64 {
	return e.cycleCount
}

// UndecodedCount returns the number of steps that skipped an unrecognised
// encoding.
func (e *Emulator) UndecodedCount() uint64 {
	return e.undecodedCount
}

// SignalDMAInterrupt marks a DMA completion exception pending.
func (e *Emulator) SignalDMAInterrupt() {
	e.interrupts.SignalDMA()
}

// Decoded reports whether the flash halfword at addr decodes to a known
// instruction.
func (e *Emulator) Decoded(addr uint32) bool {
	if addr&1 != 0 || int(addr/2) >= len(e.cache) {
		return false
	}
	return e.cache[addr/2].Decoded()
}

// Instruction returns the cached decode of the flash halfword at addr, or
// nil outside flash.
func (e *Emulator) Instruction(addr uint32) *insts.Instruction {
	if addr&1 != 0 || int(addr/2) >= len(e.cache) {
		return nil
	}
	return &e.cache[addr/2]
}

// LoadFlash programs data into flash at offset, resets from the vector
// table at offset and rebuilds the decode cache.
func (e *Emulator) LoadFlash(data []byte, offset uint32) error {
	if err := e.memory.ProgramFlash(offset, data); err != nil {
		return fmt.Errorf("loading flash: %w", err)
	}

	e.Reset(offset)
	e.decodeFlash()

	e.log.WithFields(logrus.Fields{
		"offset": fmt.Sprintf("0x%X", offset),
		"size":   len(data),
		"sp":     fmt.Sprintf("0x%08X", e.regFile.SP()),
		"entry":  fmt.Sprintf("0x%08X", e.regFile.PC()-pipelineOffset),
	}).Info("flash loaded")

	return nil
}

// Reset loads SP, the entry point and the exception vectors from the vector
// table at offset. General registers and flags are cleared; memory and
// peripheral registrations are kept.
func (e *Emulator) Reset(offset uint32) {
	*e.regFile = RegFile{}
	e.regFile.SetSP(e.memory.Read32(offset + vectorInitialSP))
	e.regFile.R[RegLR] = ResetLR
	e.branchUnit.Jump(e.memory.Read32(offset + vectorReset))

	e.interrupts.Reset(
		e.memory.Read32(offset+vectorSysTick),
		e.memory.Read32(offset+vectorDMAC),
	)
	e.dma.Reset()

	e.primask = false
	e.instructionCount = 0
	e.undecodedCount = 0
	e.cycleCount = 0
}

// decodeFlash decodes every flash halfword into the cache.
func (e *Emulator) decodeFlash() {
	flash := e.memory.flash
	for i := range e.cache {
		off := 2 * i
		hw := binary.LittleEndian.Uint16(flash[off:])
		next := uint16(0xFFFF)
		if off+4 <= len(flash) {
			next = binary.LittleEndian.Uint16(flash[off+2:])
		}
		e.decoder.DecodeInto(hw, next, &e.cache[i])
	}
}

// lookup returns the decoded instruction at addr. Flash is served from the
// cache; code elsewhere is decoded on every fetch.
func (e *Emulator) lookup(addr uint32) *insts.Instruction {
	if int(addr/2) < len(e.cache) {
		if e.observer != nil {
			e.observer.ObserveAccess(AccessFetch, addr, 2)
		}
		return &e.cache[addr/2]
	}

	hw, ok := e.memory.fetch16(addr)
	if !ok {
		e.scratch = insts.Instruction{Size: 2, Raw: 0}
		return &e.scratch
	}
	next, _ := e.memory.fetch16(addr + 2)
	e.decoder.DecodeInto(hw, next, &e.scratch)
	return &e.scratch
}

// Step performs one unit of work: an exception entry, or the execution of
// one instruction (preceded by an exception return when the handler has
// branched to the return address).
func (e *Emulator) Step() StepResult {
	// Check instruction limit before executing
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	if src, vector, ok := e.interrupts.next(); ok {
		e.enterException(src, vector)
		if e.latency != nil {
			e.cycleCount += e.latency.ExceptionEntry()
		}
		return StepResult{Exception: ExceptionEntered, Source: src}
	}

	var result StepResult
	if e.interrupts.Mode() == ModeException &&
		e.regFile.PC()-pipelineOffset == ExcReturnAddress {
		result.Exception = ExceptionReturned
		result.Source = e.interrupts.Active()
		e.exitException()
		if e.latency != nil {
			e.cycleCount += e.latency.ExceptionExit()
		}
	}

	addr := e.regFile.PC() - pipelineOffset
	inst := e.lookup(addr &^ 1)

	e.regFile.R[RegPC] += 2

	if !inst.Decoded() {
		result.Undecoded = true
		e.undecodedCount++
		e.log.WithFields(logrus.Fields{
			"pc":     fmt.Sprintf("0x%08X", addr),
			"opcode": fmt.Sprintf("0x%04X", inst.Raw),
		}).Warn("undecoded instruction skipped")
	} else {
		if inst.Size == 4 {
			e.regFile.R[RegPC] += 2
		}
		if e.log.IsLevelEnabled(logrus.TraceLevel) {
			e.log.WithField("pc", fmt.Sprintf("0x%08X", addr)).Trace(inst.String())
		}
		e.execute(addr, inst)
	}

	if e.latency != nil {
		taken := e.regFile.PC() != addr+uint32(inst.Size)+pipelineOffset
		e.cycleCount += e.latency.GetLatency(inst, taken)
	}

	e.instructionCount++
	e.interrupts.Tick()

	return result
}

// Run executes n steps, stopping early on an error. It returns the result
// of the last step.
func (e *Emulator) Run(n uint64) StepResult {
	var result StepResult
	for i := uint64(0); i < n; i++ {
		result = e.Step()
		if result.Err != nil {
			break
		}
	}
	return result
}

// execute dispatches and executes a decoded instruction. addr is the
// instruction address; R15 already points past it.
func (e *Emulator) execute(addr uint32, inst *insts.Instruction) {
	// base is the architectural PC value seen by the instruction.
	base := addr + 4
	next := addr + uint32(inst.Size)
	rf := e.regFile

	switch inst.Format {
	case insts.FormatMoveShifted:
		e.executeMoveShifted(inst)
	case insts.FormatAddSub:
		op2 := rf.ReadReg(inst.Rm)
		if inst.Immediate {
			op2 = inst.Imm
		}
		if inst.Op == insts.OpADD {
			rf.WriteReg(inst.Rd, e.alu.Add(rf.ReadReg(inst.Rn), op2, true))
		} else {
			rf.WriteReg(inst.Rd, e.alu.Sub(rf.ReadReg(inst.Rn), op2, true))
		}
	case insts.FormatImm8:
		e.executeImm8(inst)
	case insts.FormatALU:
		e.executeALU(inst)
	case insts.FormatHiReg:
		e.executeHiReg(inst, next)
	case insts.FormatPCRelLoad:
		e.lsu.Load(insts.OpLDR, inst.Rd, base&^3+inst.Imm)
	case insts.FormatLoadStoreReg, insts.FormatLoadStoreSign:
		e.loadStore(inst, rf.ReadReg(inst.Rn)+rf.ReadReg(inst.Rm))
	case insts.FormatLoadStoreImm, insts.FormatLoadStoreHalf, insts.FormatSPRelLoadStore:
		e.loadStore(inst, rf.ReadReg(inst.Rn)+inst.Imm)
	case insts.FormatLoadAddress:
		if inst.Op == insts.OpADR {
			rf.WriteReg(inst.Rd, base&^3+inst.Imm)
		} else {
			rf.WriteReg(inst.Rd, rf.SP()+inst.Imm)
		}
	case insts.FormatAdjustSP:
		if inst.Op == insts.OpADD {
			rf.SetSP(rf.SP() + inst.Imm)
		} else {
			rf.SetSP(rf.SP() - inst.Imm)
		}
	case insts.FormatExtend:
		rf.WriteReg(inst.Rd, extend(inst.Op, rf.ReadReg(inst.Rm)))
	case insts.FormatReverse:
		rf.WriteReg(inst.Rd, reverse(inst.Op, rf.ReadReg(inst.Rm)))
	case insts.FormatPushPop:
		if inst.Op == insts.OpPUSH {
			e.lsu.Push(inst.RegList)
		} else if pc, ok := e.lsu.Pop(inst.RegList); ok {
			e.branchUnit.Jump(pc)
		}
	case insts.FormatLoadStoreMultiple:
		if inst.Op == insts.OpLDM {
			e.lsu.LoadMultiple(inst.Rn, inst.RegList)
		} else {
			e.lsu.StoreMultiple(inst.Rn, inst.RegList)
		}
	case insts.FormatBranchCond:
		e.branchUnit.BCond(base, inst.BranchOffset, inst.Cond)
	case insts.FormatBranch:
		e.branchUnit.B(base, inst.BranchOffset)
	case insts.FormatLongBranch:
		e.executeLongBranch(inst, base, next)
	case insts.FormatMisc:
		e.executeMisc(addr, inst)
	case insts.FormatSystem:
		e.executeSystem(inst)
	}
}

func (e *Emulator) executeMoveShifted(inst *insts.Instruction) {
	value := e.regFile.ReadReg(inst.Rm)
	amount := inst.Imm

	var result uint32
	switch inst.Op {
	case insts.OpLSL:
		result = e.alu.LSL(value, amount, true)
	case insts.OpLSR:
		if amount == 0 {
			amount = 32
		}
		result = e.alu.LSR(value, amount, true)
	case insts.OpASR:
		if amount == 0 {
			amount = 32
		}
		result = e.alu.ASR(value, amount, true)
	}

	e.regFile.WriteReg(inst.Rd, result)
}

func (e *Emulator) executeImm8(inst *insts.Instruction) {
	rf := e.regFile

	switch inst.Op {
	case insts.OpMOV:
		rf.WriteReg(inst.Rd, e.alu.Logic(inst.Imm, true))
	case insts.OpCMP:
		e.alu.Sub(rf.ReadReg(inst.Rn), inst.Imm, true)
	case insts.OpADD:
		rf.WriteReg(inst.Rd, e.alu.Add(rf.ReadReg(inst.Rn), inst.Imm, true))
	case insts.OpSUB:
		rf.WriteReg(inst.Rd, e.alu.Sub(rf.ReadReg(inst.Rn), inst.Imm, true))
	}
}

func (e *Emulator) executeALU(inst *insts.Instruction) {
	rf := e.regFile
	rdn := rf.ReadReg(inst.Rn)
	rm := rf.ReadReg(inst.Rm)

	var result uint32
	switch inst.Op {
	case insts.OpAND:
		result = e.alu.Logic(rdn&rm, true)
	case insts.OpEOR:
		result = e.alu.Logic(rdn^rm, true)
	case insts.OpORR:
		result = e.alu.Logic(rdn|rm, true)
	case insts.OpBIC:
		result = e.alu.Logic(rdn&^rm, true)
	case insts.OpMVN:
		result = e.alu.Logic(^rm, true)
	case insts.OpLSL:
		result = e.alu.LSL(rdn, rm&0xFF, true)
	case insts.OpLSR:
		result = e.alu.LSR(rdn, rm&0xFF, true)
	case insts.OpASR:
		result = e.alu.ASR(rdn, rm&0xFF, true)
	case insts.OpROR:
		result = e.alu.ROR(rdn, rm&0xFF, true)
	case insts.OpADC:
		result = e.alu.Adc(rdn, rm)
	case insts.OpSBC:
		result = e.alu.Sbc(rdn, rm)
	case insts.OpNEG:
		result = e.alu.Sub(0, rm, true)
	case insts.OpMUL:
		result = e.alu.Mul(rdn, rm)
	case insts.OpTST:
		e.alu.Logic(rdn&rm, true)
		return
	case insts.OpCMP:
		e.alu.Sub(rdn, rm, true)
		return
	case insts.OpCMN:
		e.alu.Add(rdn, rm, true)
		return
	}

	rf.WriteReg(inst.Rd, result)
}

func (e *Emulator) executeHiReg(inst *insts.Instruction, next uint32) {
	rf := e.regFile

	switch inst.Op {
	case insts.OpADD:
		e.writeHiReg(inst.Rd, rf.ReadReg(inst.Rd)+rf.ReadReg(inst.Rm))
	case insts.OpMOV:
		e.writeHiReg(inst.Rd, rf.ReadReg(inst.Rm))
	case insts.OpCMP:
		e.alu.Sub(rf.ReadReg(inst.Rn), rf.ReadReg(inst.Rm), true)
	case insts.OpBX:
		e.branchUnit.BX(inst.Rm)
	case insts.OpBLX:
		e.branchUnit.BLX(inst.Rm, next)
	}
}

// writeHiReg writes a hi-register result; a write to PC is a branch.
func (e *Emulator) writeHiReg(rd uint8, value uint32) {
	if rd == RegPC {
		e.branchUnit.Jump(value)
		return
	}
	e.regFile.WriteReg(rd, value)
}

func (e *Emulator) loadStore(inst *insts.Instruction, addr uint32) {
	switch inst.Op {
	case insts.OpLDR, insts.OpLDRB, insts.OpLDRH, insts.OpLDRSB, insts.OpLDRSH:
		e.lsu.Load(inst.Op, inst.Rd, addr)
	default:
		e.lsu.Store(inst.Op, inst.Rd, addr)
	}
}

func (e *Emulator) executeLongBranch(inst *insts.Instruction, base, next uint32) {
	rf := e.regFile

	switch inst.Op {
	case insts.OpBL:
		e.branchUnit.BL(base, inst.BranchOffset, next)
	case insts.OpBLPrefix:
		rf.R[RegLR] = uint32(int32(base) + inst.BranchOffset)
	case insts.OpBLSuffix:
		target := rf.LR() + inst.Imm
		rf.R[RegLR] = next | 1
		e.branchUnit.Jump(target)
	}
}

func (e *Emulator) executeMisc(addr uint32, inst *insts.Instruction) {
	switch inst.Op {
	case insts.OpCPS:
		e.primask = inst.Imm == 1
	case insts.OpSVC, insts.OpBKPT:
		e.log.WithFields(logrus.Fields{
			"pc":  fmt.Sprintf("0x%08X", addr),
			"imm": inst.Imm,
		}).Debug(inst.Op.String() + " ignored")
	}
}

func (e *Emulator) executeSystem(inst *insts.Instruction) {
	rf := e.regFile
	sysm := uint8(inst.Imm)

	switch inst.Op {
	case insts.OpMRS:
		rf.WriteReg(inst.Rd, e.readSpecial(sysm))
	case insts.OpMSR:
		value := rf.ReadReg(inst.Rn)
		switch {
		case sysm <= insts.SysXPSR:
			rf.Flags = Unpack(value)
		case sysm == insts.SysMSP:
			rf.SetSP(value &^ 3)
		case sysm == insts.SysPRIMASK:
			e.primask = value&1 != 0
		}
	}
}

// readSpecial returns the value of a special register for MRS.
func (e *Emulator) readSpecial(sysm uint8) uint32 {
	switch {
	case sysm < 8:
		var v uint32
		if sysm&0x4 == 0 {
			v |= e.regFile.Flags.Pack()
		}
		if sysm&0x1 != 0 && e.interrupts.Mode() == ModeException {
			v |= e.interrupts.Active().Number()
		}
		return v
	case sysm == insts.SysMSP, sysm == insts.SysPSP:
		return e.regFile.SP()
	case sysm == insts.SysPRIMASK:
		if e.primask {
			return 1
		}
	}
	return 0
}

func extend(op insts.Op, v uint32) uint32 {
	switch op {
	case insts.OpSXTH:
		return uint32(int32(int16(v)))
	case insts.OpSXTB:
		return uint32(int32(int8(v)))
	case insts.OpUXTH:
		return v & 0xFFFF
	case insts.OpUXTB:
		return v & 0xFF
	}
	return v
}

func reverse(op insts.Op, v uint32) uint32 {
	switch op {
	case insts.OpREV:
		return v>>24 | (v>>8)&0xFF00 | (v<<8)&0xFF0000 | v<<24
	case insts.OpREV16:
		return (v>>8)&0x00FF00FF | (v<<8)&0xFF00FF00
	case insts.OpREVSH:
		return uint32(int32(int16(uint16(v)>>8 | uint16(v)<<8)))
	}
	return v
}
