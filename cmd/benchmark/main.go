// Command benchmark runs the m0sim timing benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv            Output results in CSV format (default: human-readable)
//	-json           Output results as JSON
//	-core           Run only the core benchmarks
//	-no-nvm-cache   Disable NVM read cache wait states
//	-timing-config  Path to timing configuration JSON file
//
// Example:
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// The benchmark results can be compared against cycle counts measured on
// ATSAMD21 hardware with the SysTick counter to calibrate the latency table.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/m0sim/benchmarks"
	"github.com/sarchlab/m0sim/timing/latency"
)

func main() {
	// Parse flags
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	coreOnly := flag.Bool("core", false, "Run only the core benchmarks")
	noNVMCache := flag.Bool("no-nvm-cache", false, "Disable NVM read cache wait states")
	timingPath := flag.String("timing-config", "", "Path to timing configuration JSON file")
	flag.Parse()

	// Configure harness
	config := benchmarks.DefaultConfig()
	config.EnableNVMCache = !*noNVMCache
	config.Output = os.Stdout

	if *timingPath != "" {
		timing, err := latency.LoadConfig(*timingPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
		if err := timing.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid timing config: %v\n", err)
			os.Exit(1)
		}
		config.Timing = timing
	}

	// Create harness and add benchmarks
	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	human := !*csvOutput && !*jsonOutput

	// Print configuration
	if human {
		fmt.Println("m0sim Timing Benchmark Harness")
		fmt.Println("==============================")
		fmt.Printf("NVM cache: %v\n", config.EnableNVMCache)
		fmt.Println("")
	}

	// Run benchmarks
	results, err := harness.RunAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Output results
	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}
}
