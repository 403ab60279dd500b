// Package main provides the entry point for pmgen.
// pmgen generates a disassembler processor-specification module from a
// newline-delimited dump of a processor's opcodes and instructions.
//
// For the full CLI, use: go run ./cmd/pmgen
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("pmgen - Processor Module Generator")
	fmt.Println("")
	fmt.Println("Usage: pmgen -input-file <dump.txt> [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -input-file      Newline delimited opcode/instruction dump (required)")
	fmt.Println("  -processor-name  Name of the target processor")
	fmt.Println("  -endian          big or little")
	fmt.Println("  -v               Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/pmgen' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/pmgen' instead.")
	}
}
