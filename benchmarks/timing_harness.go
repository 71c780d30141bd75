// Package benchmarks provides timing benchmark infrastructure for m0sim calibration.
package benchmarks

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/m0sim/emu"
	"github.com/sarchlab/m0sim/timing/cache"
	"github.com/sarchlab/m0sim/timing/latency"
)

// Memory layout of a benchmark image.
const (
	// CodeBase is where benchmark programs are placed in flash.
	CodeBase uint32 = 0x40
	// StackTop is the initial SP.
	StackTop uint32 = 0x20001000

	flashSize = 0x1000
	sramSize  = 0x1000
)

// haltInstruction is B to itself; reaching it ends a benchmark.
const haltInstruction = 0xE7FE

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the estimated core cycle count
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// FlashStalls is the wait states charged by the NVM read cache model
	FlashStalls uint64 `json:"flash_stalls"`

	// InstructionsRetired is the number of executed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles, including flash wait states, per instruction
	CPI float64 `json:"cpi"`

	// NVM cache stats (if enabled)
	NVMHits   uint64 `json:"nvm_hits,omitempty"`
	NVMMisses uint64 `json:"nvm_misses,omitempty"`

	// R0 is the value of R0 when the program halted
	R0 uint32 `json:"r0"`

	// Halted is false if the step limit ran out first
	Halted bool `json:"halted"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Program is the Thumb machine code, placed at CodeBase. It must end
	// by branching to itself.
	Program []byte

	// ExpectedR0 is the expected R0 on halt (for validation)
	ExpectedR0 uint32
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableNVMCache charges flash wait states through the NVM cache model
	EnableNVMCache bool

	// Timing is the latency configuration (default: latency.DefaultTimingConfig)
	Timing *latency.TimingConfig

	// MaxSteps bounds each benchmark run
	MaxSteps uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableNVMCache: true,
		Timing:         latency.DefaultTimingConfig(),
		MaxSteps:       1000000,
		Output:         os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Timing == nil {
		config.Timing = latency.DefaultTimingConfig()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// image builds a flash image with a vector table pointing at the program.
func image(program []byte) []byte {
	img := make([]byte, int(CodeBase)+len(program))
	for i := range img[:CodeBase] {
		img[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(img[0:], StackTop)
	binary.LittleEndian.PutUint32(img[4:], CodeBase|1)
	copy(img[CodeBase:], program)
	return img
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	// Create fresh state; the tick is off so runs are deterministic
	e := emu.NewEmulator(
		emu.WithLogger(logger),
		emu.WithFlashSize(flashSize),
		emu.WithSRAMSize(sramSize),
		emu.WithTickThreshold(0),
		emu.WithLatencyTable(latency.NewTableWithConfig(h.config.Timing)),
	)
	if err := e.LoadFlash(image(bench.Program), 0); err != nil {
		return BenchmarkResult{}, err
	}

	var nvm *cache.Cache
	if h.config.EnableNVMCache {
		nvm = cache.New(cache.DefaultNVMConfig(), cache.NewFlashBacking(e.Memory()))
		e.SetAccessObserver(nvm)
	}

	// Run simulation and measure time
	start := time.Now()
	halted := false
	for i := uint64(0); i < h.config.MaxSteps; i++ {
		if inst := e.Instruction(e.Reg(15) - 2); inst != nil && inst.Raw == haltInstruction {
			halted = true
			break
		}
		if result := e.Step(); result.Err != nil {
			return BenchmarkResult{}, result.Err
		}
	}
	wallTime := time.Since(start)

	result := BenchmarkResult{
		Name:                bench.Name,
		Description:         bench.Description,
		SimulatedCycles:     e.CycleCount(),
		InstructionsRetired: e.InstructionCount(),
		R0:                  e.Reg(0),
		Halted:              halted,
		WallTime:            wallTime,
	}

	// Collect cache stats if enabled
	if nvm != nil {
		stats := nvm.Stats()
		result.FlashStalls = stats.Stalls
		result.NVMHits = stats.Hits
		result.NVMMisses = stats.Misses
	}

	if result.InstructionsRetired > 0 {
		result.CPI = float64(result.SimulatedCycles+result.FlashStalls) /
			float64(result.InstructionsRetired)
	}

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== m0sim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  R0: %d\n", r.R0)
		if !r.Halted {
			_, _ = fmt.Fprintln(h.config.Output, "  (step limit reached before halt)")
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Flash Stalls:         %d\n", r.FlashStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)

		if r.NVMHits > 0 || r.NVMMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- NVM Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.NVMHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.NVMMisses)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,flash_stalls,instructions,cpi,nvm_hits,nvm_misses,r0")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.FlashStalls,
			r.InstructionsRetired,
			r.CPI,
			r.NVMHits,
			r.NVMMisses,
			r.R0,
		)
	}
}

// PrintJSON outputs benchmark results as an indented JSON array.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
