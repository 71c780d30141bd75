package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds cycle counts for different instruction classes.
// Values follow the Cortex-M0+ two-stage pipeline with zero-wait-state
// memory and the single-cycle multiplier.
type TimingConfig struct {
	// ALULatency is the cost of data processing instructions (ADD, SUB,
	// MOV, logic, shifts, extends). Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// MultiplyLatency is the cost of MULS. Default: 1 cycle; 32 for the
	// iterative multiplier option.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// LoadLatency is the cost of a single LDR/LDRH/LDRB. Default: 2 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the cost of a single STR/STRH/STRB. Default: 2 cycles.
	StoreLatency uint64 `json:"store_latency"`

	// TransferLatency is the per-register cost of LDM, STM, PUSH and POP on
	// top of one issue cycle. Default: 1 cycle.
	TransferLatency uint64 `json:"transfer_latency"`

	// BranchLatency is the cost of a taken branch, including writes to PC
	// from data processing instructions. Default: 2 cycles.
	BranchLatency uint64 `json:"branch_latency"`

	// BranchNotTakenLatency is the cost of a conditional branch that falls
	// through. Default: 1 cycle.
	BranchNotTakenLatency uint64 `json:"branch_not_taken_latency"`

	// BranchLinkLatency is the cost of BL. Default: 3 cycles.
	BranchLinkLatency uint64 `json:"branch_link_latency"`

	// PopPCPenalty is added to POP when the list includes PC.
	// Default: 2 cycles.
	PopPCPenalty uint64 `json:"pop_pc_penalty"`

	// BarrierLatency is the cost of DMB, DSB and ISB. Default: 3 cycles.
	BarrierLatency uint64 `json:"barrier_latency"`

	// SpecialRegLatency is the cost of MRS and MSR. Default: 4 cycles.
	SpecialRegLatency uint64 `json:"special_reg_latency"`

	// ExceptionEntryLatency is the cost of stacking a frame and fetching
	// the vector. Default: 15 cycles.
	ExceptionEntryLatency uint64 `json:"exception_entry_latency"`

	// ExceptionExitLatency is the cost of unstacking a frame.
	// Default: 15 cycles.
	ExceptionExitLatency uint64 `json:"exception_exit_latency"`
}

// DefaultTimingConfig returns a TimingConfig with Cortex-M0+ default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:            1,
		MultiplyLatency:       1,
		LoadLatency:           2,
		StoreLatency:          2,
		TransferLatency:       1,
		BranchLatency:         2,
		BranchNotTakenLatency: 1,
		BranchLinkLatency:     3,
		PopPCPenalty:          2,
		BarrierLatency:        3,
		SpecialRegLatency:     4,
		ExceptionEntryLatency: 15,
		ExceptionExitLatency:  15,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are valid.
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("multiply_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.BranchNotTakenLatency == 0 {
		return fmt.Errorf("branch_not_taken_latency must be > 0")
	}
	if c.BranchLinkLatency <= c.ALULatency {
		return fmt.Errorf("branch_link_latency must be > alu_latency")
	}
	if c.BranchNotTakenLatency > c.BranchLatency {
		return fmt.Errorf("branch_not_taken_latency must be <= branch_latency")
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
