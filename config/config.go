// Package config holds the machine configuration for the m0sim command.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/timing/latency"
)

// MachineConfig describes the emulated board.
type MachineConfig struct {
	// FlashSize is the flash backing size in bytes. Default: 256 KiB.
	FlashSize int `json:"flash_size"`

	// SRAMSize is the SRAM backing size in bytes. Default: 32 KiB.
	SRAMSize int `json:"sram_size"`

	// LoadOffset is where raw binaries are programmed and where the vector
	// table is read from. Default: 0x2000, past the bootloader.
	LoadOffset uint32 `json:"load_offset"`

	// TickThreshold is the number of instructions between SysTick
	// exceptions. 0 disables the tick. Default: 48000.
	TickThreshold uint32 `json:"tick_threshold"`

	// MaxInstructions stops the run after this many instructions.
	// 0 means no limit.
	MaxInstructions uint64 `json:"max_instructions"`

	// StepsPerFrame is the number of steps run per display frame.
	// Default: 800000 (48 MHz at 60 frames per second).
	StepsPerFrame int `json:"steps_per_frame"`

	// Scale is the display window magnification. Default: 4.
	Scale int `json:"scale"`

	// SPISercom is the SERCOM carrying the display and button traffic.
	SPISercom int `json:"spi_sercom"`

	// ConsoleSercom is the SERCOM whose transmitted bytes are printed.
	// -1 disables the console.
	ConsoleSercom int `json:"console_sercom"`

	// Scripts lists Lua peripheral scripts to load.
	Scripts []string `json:"scripts,omitempty"`

	// LogLevel is a logrus level name. Default: "warning".
	LogLevel string `json:"log_level"`

	// Timing configures the cycle estimate. Nil disables cycle accounting.
	Timing *latency.TimingConfig `json:"timing,omitempty"`
}

// SERCOM instances on the ATSAMD21.
const numSercoms = 6

// DefaultMachineConfig returns the configuration of an ATSAMD21G18 board.
func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		FlashSize:     emu.DefaultFlashSize,
		SRAMSize:      emu.DefaultSRAMSize,
		LoadOffset:    0x2000,
		TickThreshold: emu.DefaultTickThreshold,
		StepsPerFrame: 800000,
		Scale:         4,
		SPISercom:     1,
		ConsoleSercom: 5,
		LogLevel:      logrus.WarnLevel.String(),
		Timing:        latency.DefaultTimingConfig(),
	}
}

// LoadConfig loads a MachineConfig from a JSON file. Fields missing from
// the file keep their defaults.
func LoadConfig(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine config file: %w", err)
	}

	config := DefaultMachineConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse machine config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a MachineConfig to a JSON file.
func (c *MachineConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize machine config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write machine config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a usable machine.
func (c *MachineConfig) Validate() error {
	if c.FlashSize <= 0 || c.FlashSize%2 != 0 {
		return fmt.Errorf("flash_size must be a positive even number")
	}
	if c.FlashSize > int(emu.SRAMBase) {
		return fmt.Errorf("flash_size exceeds the flash region")
	}
	if c.SRAMSize <= 0 {
		return fmt.Errorf("sram_size must be > 0")
	}
	if c.LoadOffset%4 != 0 {
		return fmt.Errorf("load_offset must be word aligned")
	}
	if int(c.LoadOffset) >= c.FlashSize {
		return fmt.Errorf("load_offset must lie inside flash")
	}
	if c.StepsPerFrame <= 0 {
		return fmt.Errorf("steps_per_frame must be > 0")
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be > 0")
	}
	if c.SPISercom < 0 || c.SPISercom >= numSercoms {
		return fmt.Errorf("spi_sercom must be in [0, %d)", numSercoms)
	}
	if c.ConsoleSercom < -1 || c.ConsoleSercom >= numSercoms {
		return fmt.Errorf("console_sercom must be -1 or in [0, %d)", numSercoms)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Timing != nil {
		if err := c.Timing.Validate(); err != nil {
			return fmt.Errorf("timing: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy of the MachineConfig.
func (c *MachineConfig) Clone() *MachineConfig {
	clone := *c
	if c.Scripts != nil {
		clone.Scripts = append([]string(nil), c.Scripts...)
	}
	if c.Timing != nil {
		clone.Timing = c.Timing.Clone()
	}
	return &clone
}

// Logger returns a logrus logger at the configured level.
func (c *MachineConfig) Logger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// EmulatorOptions translates the configuration into emulator options.
func (c *MachineConfig) EmulatorOptions(logger *logrus.Logger) []emu.EmulatorOption {
	opts := []emu.EmulatorOption{
		emu.WithLogger(logger),
		emu.WithFlashSize(c.FlashSize),
		emu.WithSRAMSize(c.SRAMSize),
		emu.WithTickThreshold(c.TickThreshold),
		emu.WithMaxInstructions(c.MaxInstructions),
	}
	if c.Timing != nil {
		opts = append(opts, emu.WithLatencyTable(latency.NewTableWithConfig(c.Timing)))
	}
	return opts
}
