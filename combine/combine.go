// Package combine merges structurally related instructions into
// generalized constructor patterns.
//
// The three passes run in the fixed order Duplicates, Immediates,
// Registers. Each pass takes the instruction sequence and returns the
// rewritten sequence; any subset may be skipped without breaking the
// encoding-width invariant. Output order is always first-seen source order.
package combine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/revtools/pmgen/insts"
)

// Combining error kinds.
var (
	// ErrInconsistentImmediatePlacement reports a group whose members place
	// the "same" immediate field at different bit positions, or whose
	// encodings disagree outside the field.
	ErrInconsistentImmediatePlacement = errors.New("inconsistent immediate placement")

	// ErrRegisterGroupTooSmall reports an attach table entry built from
	// fewer than two registers. The grouping preconditions make this
	// unreachable; it is checked defensively.
	ErrRegisterGroupTooSmall = errors.New("register group too small")
)

// Duplicates collapses instructions with equal mnemonic, operand sequence,
// and encoding to the first occurrence. Running it twice is a no-op.
func Duplicates(list []*insts.Instruction) []*insts.Instruction {
	seen := make(map[string]bool, len(list))
	out := make([]*insts.Instruction, 0, len(list))
	for _, ins := range list {
		key := groupKey(ins, -1) + "|" + ins.EncodingBits()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ins)
	}
	return out
}

// groupKey renders an instruction's identity for grouping. The operand at
// the wildcard position (if any) renders as a placeholder so instructions
// differing only there share a key.
func groupKey(ins *insts.Instruction, wildcard int) string {
	var b strings.Builder
	b.WriteString(ins.Mnemonic)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(ins.Width))
	for n, op := range ins.Operands {
		b.WriteByte('|')
		if n == wildcard {
			b.WriteByte('*')
			continue
		}
		switch op.Kind {
		case insts.OperandFixed:
			b.WriteString("f:")
			b.WriteString(op.Text)
		case insts.OperandRegister:
			b.WriteString("r:")
			b.WriteString(op.Text)
		case insts.OperandImmediate:
			b.WriteString("i:")
			b.WriteString(strconv.FormatUint(op.Value, 10))
			if op.Slice.Width > 0 {
				fmt.Fprintf(&b, "@%d+%d", op.Slice.Start, op.Slice.Width)
			}
		case insts.OperandField:
			fmt.Fprintf(&b, "F:%d@%d+%d", op.Field.Kind, op.Field.Slice.Start, op.Field.Slice.Width)
		}
	}
	return b.String()
}

// maxOperandCount returns the longest operand list in the sequence.
func maxOperandCount(list []*insts.Instruction) int {
	max := 0
	for _, ins := range list {
		if len(ins.Operands) > max {
			max = len(ins.Operands)
		}
	}
	return max
}

// compact drops the slots nilled out by a merge, preserving order.
func compact(list []*insts.Instruction) []*insts.Instruction {
	out := list[:0]
	for _, ins := range list {
		if ins != nil {
			out = append(out, ins)
		}
	}
	return out
}

// replaceWithField rewrites the operand at position p with the field and
// splices the field into the encoding token sequence in place of the bits
// it covers. Callers must have verified that only literal bits, or the
// operand's own immediate token, fall inside the field's slice.
func replaceWithField(ins *insts.Instruction, p int, field *insts.Field) {
	ins.Operands[p] = insts.Operand{Kind: insts.OperandField, Field: field}

	span := field.Slice
	out := make([]insts.EncToken, 0, len(ins.Encoding)+2)
	offset := 0
	inserted := false
	for _, t := range ins.Encoding {
		w := t.BitWidth()
		tStart := offset
		tEnd := offset + w - 1
		offset += w

		if tEnd < span.Start || tStart > span.End() {
			out = append(out, t)
			continue
		}
		if tStart < span.Start {
			out = append(out, insts.EncToken{
				Kind: insts.EncLiteral,
				Bits: t.Bits[:span.Start-tStart],
			})
		}
		if !inserted {
			out = append(out, insts.EncToken{Kind: insts.EncField, Field: field})
			inserted = true
		}
		if tEnd > span.End() {
			out = append(out, insts.EncToken{
				Kind: insts.EncLiteral,
				Bits: t.Bits[span.End()-tStart+1:],
			})
		}
	}
	ins.Encoding = out
}

// absorb folds a merged member's source lines into the retained
// instruction's example list.
func absorb(first, member *insts.Instruction) {
	if first.Examples == nil {
		first.Examples = []string{first.Source}
	}
	if member.Examples != nil {
		// An already-combined member lists its own source first.
		first.Examples = append(first.Examples, member.Examples...)
		return
	}
	first.Examples = append(first.Examples, member.Source)
}

// blankRegion replaces the slice's bits with '.' so encodings can be
// compared outside a candidate field.
func blankRegion(bits string, s insts.BitSlice) string {
	return bits[:s.Start] + strings.Repeat(".", s.Width) + bits[s.End()+1:]
}

// otherSliceOverlaps reports whether any located immediate operand other
// than p, or any existing field, overlaps the slice.
func otherSliceOverlaps(ins *insts.Instruction, p int, s insts.BitSlice) bool {
	for n, op := range ins.Operands {
		if n == p {
			continue
		}
		switch op.Kind {
		case insts.OperandImmediate:
			if op.Slice.Width > 0 && op.Slice.Overlaps(s) {
				return true
			}
		case insts.OperandField:
			if op.Field.Slice.Overlaps(s) {
				return true
			}
		}
	}
	return false
}
