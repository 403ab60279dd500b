package insts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strconv"
	"strings"

	"github.com/revtools/pmgen/regs"
)

// ErrMalformedLine reports a source line that cannot be decomposed into
// opcode bits plus a mnemonic.
var ErrMalformedLine = errors.New("malformed instruction line")

type parser struct {
	skipMalformed bool
}

// ParseOption configures Parse.
type ParseOption func(*parser)

// SkipMalformed makes Parse skip lines that fail to decompose instead of
// aborting on the first one.
func SkipMalformed() ParseOption {
	return func(p *parser) {
		p.skipMalformed = true
	}
}

// Parse reads a newline-delimited instruction-set dump and returns one
// Instruction per parsable line, in source order.
//
// Line grammar: one or more opcode groups (binary digits, or hex with a 0x
// prefix), a mnemonic, then a comma-separated operand list. Blank lines and
// lines starting with "//" are skipped. Operand text is classified against
// the register set, then as a numeric literal; anything else stays fixed
// text. Parse never mutates the register set.
//
// An empty input yields an empty slice and no error.
func Parse(r io.Reader, set *regs.Set, opts ...ParseOption) ([]*Instruction, error) {
	p := &parser{}
	for _, opt := range opts {
		opt(p)
	}

	var out []*Instruction

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		ins, err := parseLine(line, set)
		if err != nil {
			if p.skipMalformed {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %q", err, lineNum, line)
		}
		ins.SrcIndex = len(out)
		out = append(out, ins)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instruction dump: %w", err)
	}

	return out, nil
}

func parseLine(line string, set *regs.Set) (*Instruction, error) {
	fields := strings.Fields(line)

	// Leading fields of binary or hex digits form the encoding.
	var enc strings.Builder
	i := 0
	for ; i < len(fields); i++ {
		b, ok := encodingBits(fields[i])
		if !ok {
			break
		}
		enc.WriteString(b)
	}
	if enc.Len() == 0 {
		return nil, fmt.Errorf("%w: no opcode bits", ErrMalformedLine)
	}
	if i >= len(fields) {
		return nil, fmt.Errorf("%w: no mnemonic", ErrMalformedLine)
	}

	ins := &Instruction{
		Mnemonic: fields[i],
		Width:    enc.Len(),
		Source:   line,
	}
	i++

	for _, raw := range strings.Split(strings.Join(fields[i:], " "), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ins.Operands = append(ins.Operands, classifyOperand(raw, set))
	}

	locateImmediates(ins, enc.String())

	return ins, nil
}

// encodingBits interprets one leading field as opcode bits: a run of binary
// digits is taken verbatim, a 0x-prefixed hex value expands to four bits
// per digit.
func encodingBits(field string) (string, bool) {
	if strings.HasPrefix(field, "0x") || strings.HasPrefix(field, "0X") {
		digits := field[2:]
		if digits == "" {
			return "", false
		}
		v, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return "", false
		}
		width := 4 * len(digits)
		return zeroPadBinary(v, width), true
	}

	for _, c := range field {
		if c != '0' && c != '1' {
			return "", false
		}
	}
	return field, true
}

func classifyOperand(raw string, set *regs.Set) Operand {
	if canonical, ok := set.Canonical(raw); ok {
		return Operand{Kind: OperandRegister, Text: canonical}
	}
	if value, width, ok := parseImmediate(raw); ok {
		return Operand{
			Kind:  OperandImmediate,
			Text:  raw,
			Value: value,
			// Width here is the literal's textual width; Start is fixed up
			// by locateImmediates once the literal is found in the encoding.
			Slice: BitSlice{Start: -1, Width: width},
		}
	}
	return Operand{Kind: OperandFixed, Text: raw}
}

// parseImmediate recognizes #-prefixed, hex, binary, and decimal literals.
// The returned width is the literal's encoded width, taken from its textual
// form: four bits per hex digit, one per binary digit, and the minimal
// width for decimal values.
func parseImmediate(raw string) (value uint64, width int, ok bool) {
	s := strings.TrimPrefix(raw, "#")
	if s == "" {
		return 0, 0, false
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "0x"):
		digits := s[2:]
		v, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return 0, 0, false
		}
		return v, 4 * len(digits), true
	case strings.HasPrefix(lower, "0b"):
		digits := s[2:]
		v, err := strconv.ParseUint(digits, 2, 64)
		if err != nil {
			return 0, 0, false
		}
		return v, len(digits), true
	default:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return v, minBitWidth(v), true
	}
}

// locateImmediates finds each immediate literal's bits inside the encoding
// and rebuilds the encoding as literal and immediate tokens. The search
// runs right to left so low-order placements win, and claimed bits are
// never reused by a later literal. A literal that cannot be found leaves
// its operand concrete with no slice.
func locateImmediates(ins *Instruction, enc string) {
	claimed := make([]bool, len(enc))
	owner := make([]int, len(enc)) // operand index per claimed bit
	for n := range ins.Operands {
		op := &ins.Operands[n]
		if op.Kind != OperandImmediate {
			continue
		}
		width := op.Slice.Width
		op.Slice = BitSlice{}
		if width == 0 || width > len(enc) {
			continue
		}
		pattern := zeroPadBinary(op.Value, width)
		if len(pattern) > width {
			// Value does not fit its textual width; cannot be located.
			continue
		}
		for start := len(enc) - width; start >= 0; start-- {
			if enc[start:start+width] != pattern {
				continue
			}
			if anyClaimed(claimed, start, width) {
				continue
			}
			for b := start; b < start+width; b++ {
				claimed[b] = true
				owner[b] = n
			}
			op.Slice = BitSlice{Start: start, Width: width}
			break
		}
	}

	// Rebuild the encoding as alternating literal and immediate tokens.
	ins.Encoding = ins.Encoding[:0]
	pos := 0
	for pos < len(enc) {
		end := pos
		if claimed[pos] {
			n := owner[pos]
			for end < len(enc) && claimed[end] && owner[end] == n {
				end++
			}
			ins.Encoding = append(ins.Encoding, EncToken{
				Kind:    EncImmediate,
				Bits:    enc[pos:end],
				OpIndex: n,
			})
		} else {
			for end < len(enc) && !claimed[end] {
				end++
			}
			ins.Encoding = append(ins.Encoding, EncToken{
				Kind: EncLiteral,
				Bits: enc[pos:end],
			})
		}
		pos = end
	}
}

func anyClaimed(claimed []bool, start, width int) bool {
	for b := start; b < start+width; b++ {
		if claimed[b] {
			return true
		}
	}
	return false
}

func minBitWidth(v uint64) int {
	if v == 0 {
		return 1
	}
	return bits.Len64(v)
}

func zeroPadBinary(v uint64, width int) string {
	s := strconv.FormatUint(v, 2)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ObservedRegisters returns the distinct register names used as operands,
// in first-seen source order.
func ObservedRegisters(list []*Instruction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ins := range list {
		for _, op := range ins.Operands {
			if op.Kind != OperandRegister || seen[op.Text] {
				continue
			}
			seen[op.Text] = true
			out = append(out, op.Text)
		}
	}
	return out
}
