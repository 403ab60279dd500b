// Package main provides the pmgen command line interface.
// pmgen turns a newline-delimited instruction-set dump into a generalized
// processor specification module.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/xyproto/env/v2"

	"github.com/revtools/pmgen/combine"
	"github.com/revtools/pmgen/emit"
	"github.com/revtools/pmgen/insts"
	"github.com/revtools/pmgen/layout"
	"github.com/revtools/pmgen/regs"
)

var (
	inputFile = flag.String("input-file", "",
		"Path to a newline delimited text file containing all opcodes and instructions for the processor. Required.")
	processorName = flag.String("processor-name", env.Str("PMGEN_PROCESSOR", "MyProc"),
		"Name of the target processor")
	processorFamily = flag.String("processor-family", env.Str("PMGEN_FAMILY", "MyProcFamily"),
		"Name of the target processor's family")
	endian = flag.String("endian", env.Str("PMGEN_ENDIAN", "big"),
		"Endianness of the processor, big or little")
	alignment = flag.Uint("alignment", 1, "Instruction alignment of the processor")
	bitness   = flag.Uint("bitness", 32, "Bitness of the processor")
	configPath = flag.String("config", "",
		"Path to a JSON configuration file; explicit flags override its values")
	outputDir = flag.String("output-dir", ".",
		"Directory the processor module is written into")
	additionalRegisters = flag.String("additional-registers", "",
		"Comma separated list of additional register names")
	printRegistersOnly = flag.Bool("print-registers-only", false,
		"Only print the registers found in the instruction set, then exit")
	omitOpcodes = flag.Bool("omit-opcodes", false,
		"Do not print opcode comments in the emitted specification")
	omitExamples = flag.Bool("omit-example-instructions", false,
		"Do not print example combined instructions in the emitted specification")
	skipCombining = flag.Bool("skip-instruction-combining", false,
		"Do not combine instructions; useful for debugging")
	skipMalformed = flag.Bool("skip-malformed-lines", false,
		"Skip lines that fail to parse instead of aborting")
	dumpParsed = flag.Bool("dump-parsed", false,
		"Dump the combined in-memory model; useful for debugging")
	verbose = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: pmgen -input-file <dump.txt> [options]\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(log); err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(log *logrus.Logger) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	set := regs.DefaultSet(splitList(*additionalRegisters)...)
	log.WithField("registers", set.Len()).Debug("initialized register catalog")

	f, err := os.Open(*inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	var opts []insts.ParseOption
	if *skipMalformed {
		opts = append(opts, insts.SkipMalformed())
	}
	log.Info("parsing instructions")
	list, err := insts.Parse(f, set, opts...)
	if err != nil {
		return err
	}
	log.WithField("count", len(list)).Info("parsed instructions")

	observed := insts.ObservedRegisters(list)
	if *printRegistersOnly {
		fmt.Printf("Found registers: %s\n", strings.Join(observed, " "))
		fmt.Println("Pass -additional-registers if any are missing.")
		return nil
	}

	pd := &insts.ParsedData{
		Config:       *cfg,
		Instructions: list,
		Registers:    observed,
	}

	if !*skipCombining {
		log.Info("combining duplicate instructions")
		pd.Instructions = combine.Duplicates(pd.Instructions)

		log.Info("combining immediate instructions")
		pd.Instructions, err = combine.Immediates(pd.Instructions)
		if err != nil {
			return err
		}

		log.Info("combining register instructions")
		table := combine.NewAttachTable()
		pd.Instructions, err = combine.Registers(pd.Instructions, table)
		if err != nil {
			return err
		}
		pd.Attaches = table.Finalize()
		log.WithFields(logrus.Fields{
			"instructions": len(pd.Instructions),
			"attaches":     len(pd.Attaches),
		}).Info("combined instructions")
	}

	log.Info("computing token layout")
	if err := layout.Compute(pd, set); err != nil {
		return err
	}

	if *dumpParsed {
		spew.Fdump(os.Stderr, pd)
	}

	log.Info("generating processor specification")
	dir, err := emit.WriteModule(pd, *outputDir)
	if err != nil {
		return err
	}
	log.WithField("dir", dir).Info("created processor module directory")

	return nil
}

// buildConfig resolves the run configuration: file values (when -config is
// given) under explicitly set flags, over the defaults.
func buildConfig() (*insts.Config, error) {
	cfg := insts.DefaultConfig()
	if *configPath != "" {
		loaded, err := insts.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if setFlags["processor-name"] || cfg.ProcessorName == "" {
		cfg.ProcessorName = *processorName
	}
	if setFlags["processor-family"] || cfg.ProcessorFamily == "" {
		cfg.ProcessorFamily = *processorFamily
	}
	if setFlags["endian"] || cfg.Endian == "" {
		cfg.Endian = *endian
	}
	if setFlags["alignment"] || cfg.Alignment == 0 {
		cfg.Alignment = *alignment
	}
	if setFlags["bitness"] || cfg.Bitness == 0 {
		cfg.Bitness = *bitness
	}
	if setFlags["omit-opcodes"] {
		cfg.OmitOpcodes = *omitOpcodes
	}
	if setFlags["omit-example-instructions"] {
		cfg.OmitExampleInstructions = *omitExamples
	}
	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
