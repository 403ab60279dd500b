// Package insts defines the instruction model produced by parsing a raw
// instruction-set dump and rewritten by the combining passes.
//
// Bit positions are numbered from 0 at the most significant bit of the
// encoding, matching the left-to-right order of the source text.
package insts

import (
	"fmt"
	"strconv"
	"strings"
)

// BitSlice identifies a contiguous run of bits within an instruction word.
type BitSlice struct {
	Start int // index of the most significant bit of the slice
	Width int
}

// End returns the index of the least significant bit of the slice.
func (s BitSlice) End() int {
	return s.Start + s.Width - 1
}

// Overlaps reports whether the two slices share any bit position.
func (s BitSlice) Overlaps(o BitSlice) bool {
	if s.Width == 0 || o.Width == 0 {
		return false
	}
	return s.Start <= o.End() && o.Start <= s.End()
}

// OperandKind classifies one operand of an instruction.
type OperandKind uint8

// Operand kinds.
const (
	OperandFixed     OperandKind = iota // literal display text
	OperandRegister                     // a register name resolved in the catalog
	OperandImmediate                    // a numeric literal
	OperandField                        // a generalized field introduced by combining
)

// Operand is one component of an instruction's display text.
type Operand struct {
	Kind OperandKind

	// Text is the source spelling: the literal text for Fixed operands,
	// the canonical register name for Register operands, and the original
	// literal text for Immediate operands.
	Text string

	// Value is the numeric value of an Immediate operand.
	Value uint64

	// Slice is the bit slice the immediate literal occupies within the
	// encoding. A zero Width means the literal could not be located and
	// the operand is never generalized.
	Slice BitSlice

	// Field is set for OperandField operands.
	Field *Field
}

// FieldKind classifies a generalized operand field.
type FieldKind uint8

// Field kinds.
const (
	FieldImmediate FieldKind = iota
	FieldRegisterAttach
)

// Field is a parameterized placeholder replacing a varying operand across
// multiple concrete instructions.
type Field struct {
	Name     string
	Kind     FieldKind
	Slice    BitSlice
	AttachID int // valid for FieldRegisterAttach
}

// AttachVariable is a named, ordered register list selected by an encoded
// value of Width bits.
type AttachVariable struct {
	ID        int
	Name      string
	Registers []string
	Width     int
}

// EncKind classifies one token of an instruction's encoding.
type EncKind uint8

// Encoding token kinds.
const (
	EncLiteral   EncKind = iota // fixed opcode bits
	EncImmediate                // bits occupied by a located immediate literal
	EncField                    // bits owned by a generalized field
)

// EncToken is one piece of an instruction's bit-level encoding.
type EncToken struct {
	Kind EncKind

	// Bits holds the concrete '0'/'1' characters for EncLiteral and
	// EncImmediate tokens.
	Bits string

	// OpIndex is the operand index an EncImmediate token encodes.
	OpIndex int

	// Field is the owning field of an EncField token.
	Field *Field
}

// BitWidth returns the number of bits the token covers.
func (t EncToken) BitWidth() int {
	if t.Kind == EncField {
		return t.Field.Slice.Width
	}
	return len(t.Bits)
}

// Instruction is one (possibly generalized) instruction pattern.
type Instruction struct {
	Encoding []EncToken
	Mnemonic string
	Operands []Operand
	Width    int

	// SrcIndex is the position of the instruction in the source dump, for
	// deterministic ordering. A combined instruction keeps the index of
	// its first member.
	SrcIndex int

	// Source is the original input line. Examples collects the source
	// lines of every member folded into a combined instruction.
	Source   string
	Examples []string
}

// CheckWidth verifies that the encoding tokens exactly cover the declared
// instruction width. It must hold before and after every combining pass.
func (i *Instruction) CheckWidth() error {
	sum := 0
	for _, t := range i.Encoding {
		sum += t.BitWidth()
	}
	if sum != i.Width {
		return fmt.Errorf("instruction %d (%s): encoding covers %d bits, width is %d",
			i.SrcIndex, i.Mnemonic, sum, i.Width)
	}
	return nil
}

// EncodingBits renders the encoding as a bit string. Bits owned by a
// generalized field render as '?'.
func (i *Instruction) EncodingBits() string {
	var b strings.Builder
	b.Grow(i.Width)
	for _, t := range i.Encoding {
		if t.Kind == EncField {
			b.WriteString(strings.Repeat("?", t.Field.Slice.Width))
			continue
		}
		b.WriteString(t.Bits)
	}
	return b.String()
}

// OperandText renders the operand list the way it appears in disassembly.
func (i *Instruction) OperandText() string {
	parts := make([]string, len(i.Operands))
	for n, op := range i.Operands {
		switch op.Kind {
		case OperandField:
			parts[n] = op.Field.Name
		case OperandImmediate:
			parts[n] = "#0x" + strconv.FormatUint(op.Value, 16)
		default:
			parts[n] = op.Text
		}
	}
	return strings.Join(parts, ",")
}

// Token is a named bit slice of the instruction word in the output
// representation.
type Token struct {
	Name  string
	Kind  TokenKind
	Slice BitSlice

	// Bits holds the concrete value of an opcode token.
	Bits string

	// Field links immediate and register-select tokens back to the
	// generalized field they express.
	Field *Field
}

// TokenKind classifies a layout token.
type TokenKind uint8

// Token kinds.
const (
	TokenOpcode TokenKind = iota
	TokenImmediate
	TokenRegister
)

// ParsedData is the aggregate the whole run operates on. It is created
// once, populated by the parser, rewritten by each combining and synthesis
// stage in order, and handed read-only to the emitter.
type ParsedData struct {
	Config       Config
	Instructions []*Instruction

	// Registers lists the distinct register names observed as operands,
	// in first-seen source order.
	Registers []string

	// Attaches is the finalized attach-variable table.
	Attaches []*AttachVariable

	// Tokens holds the layout result, parallel to Instructions.
	Tokens [][]Token
}

// CheckWidths verifies the encoding-width invariant for every instruction.
func (p *ParsedData) CheckWidths() error {
	for _, ins := range p.Instructions {
		if err := ins.CheckWidth(); err != nil {
			return err
		}
	}
	return nil
}

// AttachByID returns the attach table keyed by id.
func (p *ParsedData) AttachByID() map[int]*AttachVariable {
	m := make(map[int]*AttachVariable, len(p.Attaches))
	for _, a := range p.Attaches {
		m[a.ID] = a
	}
	return m
}
