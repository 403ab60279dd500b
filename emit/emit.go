// Package emit renders the finalized model as an on-disk processor module:
// a SLEIGH-style specification plus language-definition stubs.
package emit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/revtools/pmgen/insts"
)

// WriteModule writes the processor module into dir/<ProcessorName>/ and
// returns that path. The ParsedData is read-only here.
func WriteModule(pd *insts.ParsedData, dir string) (string, error) {
	moduleDir := filepath.Join(dir, pd.Config.ProcessorName)
	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create module directory: %w", err)
	}

	files := map[string]string{
		pd.Config.ProcessorName + ".slaspec": Slaspec(pd),
		pd.Config.ProcessorName + ".ldefs":   Ldefs(pd),
		pd.Config.ProcessorName + ".pspec":   Pspec(pd),
	}
	for name, content := range files {
		path := filepath.Join(moduleDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return moduleDir, nil
}

// Slaspec renders the instruction set as a SLEIGH-style specification.
func Slaspec(pd *insts.ParsedData) string {
	cfg := pd.Config
	regSize := int(cfg.Bitness) / 8
	if regSize == 0 {
		regSize = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s processor specification\n", cfg.ProcessorName)
	fmt.Fprintf(&b, "# Family: %s\n\n", cfg.ProcessorFamily)
	fmt.Fprintf(&b, "define endian=%s;\n", cfg.Endian)
	fmt.Fprintf(&b, "define alignment=%d;\n\n", cfg.Alignment)
	fmt.Fprintf(&b, "define space ram type=ram_space size=%d default;\n", regSize)
	fmt.Fprintf(&b, "define space register type=register_space size=%d;\n\n", regSize)

	if len(pd.Registers) > 0 {
		fmt.Fprintf(&b, "define register offset=0 size=%d [ %s ];\n\n",
			regSize, strings.Join(pd.Registers, " "))
	}

	writeTokenDefs(&b, pd)
	writeAttaches(&b, pd)
	writeConstructors(&b, pd)

	return b.String()
}

// writeTokenDefs emits one token definition per distinct instruction
// width, holding every named bit field seen at that width. SLEIGH numbers
// bits with 0 at the least significant end, so slices are flipped here.
func writeTokenDefs(b *strings.Builder, pd *insts.ParsedData) {
	type fieldDef struct {
		name   string
		lo, hi int
	}
	defs := make(map[int][]fieldDef)
	seen := make(map[string]bool)
	var widths []int
	for i, ins := range pd.Instructions {
		if _, ok := defs[ins.Width]; !ok {
			widths = append(widths, ins.Width)
			defs[ins.Width] = nil
		}
		for _, tok := range pd.Tokens[i] {
			key := fmt.Sprintf("%d/%s", ins.Width, tok.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			defs[ins.Width] = append(defs[ins.Width], fieldDef{
				name: tok.Name,
				lo:   ins.Width - 1 - tok.Slice.End(),
				hi:   ins.Width - 1 - tok.Slice.Start,
			})
		}
	}

	for _, w := range widths {
		fmt.Fprintf(b, "define token instr%d(%d)\n", w, w)
		for _, d := range defs[w] {
			fmt.Fprintf(b, "    %s = (%d,%d)\n", d.name, d.lo, d.hi)
		}
		b.WriteString(";\n\n")
	}
}

// writeAttaches emits one attach statement per attach variable, binding
// every field that references it.
func writeAttaches(b *strings.Builder, pd *insts.ParsedData) {
	fieldsByAttach := make(map[int][]string)
	seen := make(map[string]bool)
	for i := range pd.Instructions {
		for _, tok := range pd.Tokens[i] {
			if tok.Kind != insts.TokenRegister {
				continue
			}
			id := tok.Field.AttachID
			key := fmt.Sprintf("%d/%s", id, tok.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			fieldsByAttach[id] = append(fieldsByAttach[id], tok.Name)
		}
	}

	for _, a := range pd.Attaches {
		fields := fieldsByAttach[a.ID]
		if len(fields) == 0 {
			continue
		}
		fmt.Fprintf(b, "attach variables [ %s ] [ %s ];\n",
			strings.Join(fields, " "), strings.Join(a.Registers, " "))
	}
	if len(pd.Attaches) > 0 {
		b.WriteString("\n")
	}
}

func writeConstructors(b *strings.Builder, pd *insts.ParsedData) {
	for i, ins := range pd.Instructions {
		if !pd.Config.OmitExampleInstructions && len(ins.Examples) > 0 {
			b.WriteString("# combined from:\n")
			for _, ex := range ins.Examples {
				fmt.Fprintf(b, "#   %s\n", ex)
			}
		}
		if !pd.Config.OmitOpcodes {
			fmt.Fprintf(b, "# encoding: %s\n", ins.EncodingBits())
		}

		var pattern []string
		for _, tok := range pd.Tokens[i] {
			if tok.Kind == insts.TokenOpcode {
				pattern = append(pattern, fmt.Sprintf("%s=0b%s", tok.Name, tok.Bits))
			} else {
				pattern = append(pattern, tok.Name)
			}
		}

		display := ins.OperandText()
		if display != "" {
			display = " " + display
		}
		fmt.Fprintf(b, ":%s%s is %s { }\n\n", ins.Mnemonic, display, strings.Join(pattern, " & "))
	}
}

// Ldefs renders the language-definitions stub.
func Ldefs(pd *insts.ParsedData) string {
	cfg := pd.Config
	endian := "BE"
	if cfg.Endian == "little" {
		endian = "LE"
	}
	id := fmt.Sprintf("%s:%s:%d:default", cfg.ProcessorName, endian, cfg.Bitness)

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<language_definitions>\n")
	fmt.Fprintf(&b, "  <language processor=%q endian=%q size=\"%d\" variant=\"default\"\n",
		cfg.ProcessorName, cfg.Endian, cfg.Bitness)
	fmt.Fprintf(&b, "            slafile=\"%s.sla\" processorspec=\"%s.pspec\" id=%q>\n",
		cfg.ProcessorName, cfg.ProcessorName, id)
	fmt.Fprintf(&b, "    <description>%s (%s)</description>\n", cfg.ProcessorName, cfg.ProcessorFamily)
	b.WriteString("  </language>\n")
	b.WriteString("</language_definitions>\n")
	return b.String()
}

// Pspec renders the processor-spec stub. The program counter register is
// taken from the observed registers when one is recognizably named.
func Pspec(pd *insts.ParsedData) string {
	pc := "pc"
	observed := make(map[string]bool, len(pd.Registers))
	for _, reg := range pd.Registers {
		observed[reg] = true
	}
	for _, cand := range []string{"pc", "ip", "eip", "rip"} {
		if observed[cand] {
			pc = cand
			break
		}
	}

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<processor_spec>\n")
	fmt.Fprintf(&b, "  <programcounter register=%q/>\n", pc)
	b.WriteString("</processor_spec>\n")
	return b.String()
}
