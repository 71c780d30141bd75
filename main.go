// Package main provides the entry point for m0sim.
// m0sim is a Cortex-M0+ (ATSAMD21) handheld emulator.
//
// For the full CLI, use: go run ./cmd/m0sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("m0sim - Cortex-M0+ Handheld Emulator")
	fmt.Println("Thumb core, ST7735 display, buttons and serial console")
	fmt.Println("")
	fmt.Println("Usage: m0sim [options] <firmware.bin|.hex|.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -headless     Run without a window")
	fmt.Println("  -steps        Steps to run in headless mode")
	fmt.Println("  -config       Path to machine configuration JSON file")
	fmt.Println("  -stats        Print execution statistics on exit")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/m0sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/m0sim' instead.")
	}
}
