// Package main provides a profiling wrapper for m0sim to identify performance bottlenecks.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/config"
	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/loader"
	"github.com/sarchlab/m0sim/periph"
)

var (
	timing      = flag.Bool("timing", false, "Enable cycle estimation")
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	instruction = flag.Uint64("max-instr", 100000000, "max instructions to execute (0 = unlimited)")
	offset      = flag.Uint("offset", 0x2000, "flash offset of raw binaries and the vector table")
	interval    = flag.Duration("interval", time.Second, "rate report interval (0 = final report only)")
)

// batch is the number of steps run between clock checks.
const batch = 100000

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <firmware>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	firmwarePath := flag.Arg(0)

	img, err := loader.Load(firmwarePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading firmware: %v\n", err)
		os.Exit(1)
	}

	e, err := newEmulator(img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s (%s, %d bytes)\n", firmwarePath, img.Format, len(img.Data))

	start := time.Now()
	err = run(e, start.Add(*duration), *interval, os.Stdout)
	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	instrCount := e.InstructionCount()

	fmt.Printf("\nProfiling Results:\n")
	if err != nil {
		fmt.Printf("Stopped: %v\n", err)
	}
	fmt.Printf("Instructions executed: %d\n", instrCount)
	if e.CycleCount() > 0 {
		fmt.Printf("Estimated cycles: %d\n", e.CycleCount())
	}
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
}

// newEmulator builds a quiet board and loads img.
func newEmulator(img *loader.Image) (*emu.Emulator, error) {
	cfg := config.DefaultMachineConfig()
	cfg.LogLevel = logrus.ErrorLevel.String()
	cfg.MaxInstructions = *instruction
	cfg.LoadOffset = uint32(*offset)
	if !*timing {
		cfg.Timing = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger()
	e := emu.NewEmulator(cfg.EmulatorOptions(logger)...)
	if _, err := periph.NewBoard(e.Bus(), cfg.SPISercom, logger); err != nil {
		return nil, err
	}

	base := img.Base
	if img.Format == loader.FormatBinary {
		base = cfg.LoadOffset
	}
	if err := e.Memory().ProgramFlash(base, img.Data); err != nil {
		return nil, err
	}
	if err := e.LoadFlash(nil, cfg.LoadOffset); err != nil {
		return nil, err
	}
	return e, nil
}

// run steps e until the deadline or the instruction limit, printing the
// execution rate every interval.
func run(e *emu.Emulator, deadline time.Time, interval time.Duration, w io.Writer) error {
	lastReport := time.Now()
	lastCount := e.InstructionCount()

	for {
		if result := e.Run(batch); result.Err != nil {
			if errors.Is(result.Err, emu.ErrMaxInstructions) {
				return nil
			}
			return result.Err
		}

		now := time.Now()
		if now.After(deadline) {
			return fmt.Errorf("timeout reached")
		}

		if interval > 0 && now.Sub(lastReport) >= interval {
			count := e.InstructionCount()
			mips := float64(count-lastCount) / now.Sub(lastReport).Seconds() / 1e6
			fmt.Fprintf(w, "%.2f MIPS (%d instructions)\n", mips, count)
			lastReport, lastCount = now, count
		}
	}
}
