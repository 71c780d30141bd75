// Package main provides the entry point for m0sim.
// m0sim emulates a Cortex-M0+ (ATSAMD21) handheld board: the Thumb core,
// its display, buttons and serial console.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/frontend"
	"github.com/sarchlab/m0sim/loader"
	"github.com/sarchlab/m0sim/timing/latency"
)

// scriptList collects repeated -script flags.
type scriptList []string

func (s *scriptList) String() string { return strings.Join(*s, ",") }

func (s *scriptList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var (
	configPath   = flag.String("config", "", "Path to machine configuration JSON file")
	timingPath   = flag.String("timing-config", "", "Path to timing configuration JSON file")
	noTiming     = flag.Bool("no-timing", false, "Disable cycle estimation")
	saveConfig   = flag.String("save-config", "", "Write the effective machine configuration to this file")
	headless     = flag.Bool("headless", false, "Run without a window")
	steps        = flag.Uint64("steps", 0, "Steps to run in headless mode (0 = until the instruction limit)")
	maxInstr     = flag.Uint64("max-instr", 0, "Stop after this many instructions (0 = config value)")
	offset       = flag.Int64("offset", -1, "Flash offset of raw binaries and the vector table (-1 = config value)")
	logLevel     = flag.String("log-level", "", "Log level: panic, fatal, error, warning, info, debug, trace")
	screenshot   = flag.String("screenshot", "", "Save the display to this BMP file on exit")
	consoleInput = flag.Bool("console-input", false, "Forward terminal keystrokes to the serial console")
	showStats    = flag.Bool("stats", false, "Print execution statistics on exit")
	scripts      scriptList
)

func init() {
	flag.Var(&scripts, "script", "Lua peripheral script (repeatable)")
}

func main() {
	flag.Parse()
	os.Exit(run())
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: m0sim [options] <firmware.bin|.hex|.elf>\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func run() int {
	cfg, err := machineConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *saveConfig != "" {
		if err := cfg.SaveConfig(*saveConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			return 1
		}
		if flag.NArg() < 1 {
			return 0
		}
	}

	if flag.NArg() < 1 {
		usage()
		return 1
	}

	firmwarePath := flag.Arg(0)
	logger := cfg.Logger()

	img, err := loader.Load(firmwarePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading firmware: %v\n", err)
		return 1
	}

	m, err := newMachine(cfg, logger, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer m.Close()

	if err := m.Load(img); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading firmware: %v\n", err)
		return 1
	}

	if *consoleInput && m.console != nil {
		if err := m.console.StartInput(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if *headless {
		err = runHeadless(m)
	} else {
		title := "m0sim - " + filepath.Base(firmwarePath)
		err = frontend.NewWindow(m, cfg.Scale, title).Run()
	}

	// Restore the terminal before printing anything.
	if m.console != nil {
		m.console.Stop()
	}

	code := 0
	if err != nil && !isNormalStop(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	}

	if *screenshot != "" {
		if err := frontend.SaveScreenshot(*screenshot, m.Frame(), cfg.Scale); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving screenshot: %v\n", err)
			code = 1
		}
	}

	if *showStats {
		fmt.Fprintf(os.Stderr, "\nFirmware: %s (%s, %d bytes at 0x%X)\n",
			firmwarePath, img.Format, len(img.Data), img.Base)
		m.Stats().Print(os.Stderr)
	}

	return code
}

// machineConfig builds the configuration from the config file and the
// command line overrides.
func machineConfig() (*config.MachineConfig, error) {
	cfg := config.DefaultMachineConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *timingPath != "" {
		timing, err := latency.LoadConfig(*timingPath)
		if err != nil {
			return nil, fmt.Errorf("loading timing config: %w", err)
		}
		cfg.Timing = timing
	}
	if *noTiming {
		cfg.Timing = nil
	}
	if *maxInstr > 0 {
		cfg.MaxInstructions = *maxInstr
	}
	if *offset >= 0 {
		cfg.LoadOffset = uint32(*offset)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg.Scripts = append(cfg.Scripts, scripts...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine config: %w", err)
	}
	return cfg, nil
}

// runHeadless runs -steps steps, or frame after frame until the machine
// stops when no step count is given.
func runHeadless(m *machine) error {
	if *steps > 0 {
		return m.Run(*steps)
	}
	for {
		if err := m.RunFrame(); err != nil {
			return err
		}
	}
}

func isNormalStop(err error) bool {
	return errors.Is(err, emu.ErrMaxInstructions) ||
		errors.Is(err, frontend.ErrClosed) ||
		errors.Is(err, errInterrupted)
}
