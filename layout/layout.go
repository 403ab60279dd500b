// Package layout partitions each finalized instruction's bit width into
// non-overlapping tokens: one per generalized field, plus merged fixed
// regions covering everything else.
package layout

import (
	"errors"
	"fmt"

	"github.com/revtools/pmgen/insts"
	"github.com/revtools/pmgen/regs"
)

// Layout error kinds. All of them are fatal for the run: a model that
// fails layout cannot be emitted as a self-consistent specification.
var (
	// ErrOverlappingFields reports two operand fields claiming the same bit.
	ErrOverlappingFields = errors.New("overlapping operand fields")

	// ErrFieldWidthMismatch reports a register-attach field whose bit slice
	// cannot hold the attach variable's selector.
	ErrFieldWidthMismatch = errors.New("operand field width mismatch")

	// ErrUnknownRegisterReference reports an attach member missing from the
	// register set. Parser classification makes this unreachable; it is
	// checked defensively.
	ErrUnknownRegisterReference = errors.New("unknown register reference")
)

// Compute derives the token layout for every instruction and stores it in
// pd.Tokens. The byte/word context (endianness, alignment) comes once from
// pd.Config and is not re-derived per instruction.
func Compute(pd *insts.ParsedData, set *regs.Set) error {
	if err := pd.CheckWidths(); err != nil {
		return err
	}

	attach := pd.AttachByID()
	pd.Tokens = make([][]insts.Token, len(pd.Instructions))
	for i, ins := range pd.Instructions {
		toks, err := Tokens(ins, attach, set)
		if err != nil {
			return err
		}
		pd.Tokens[i] = toks
	}
	return nil
}

// Tokens partitions one instruction's width into tokens. Contiguous fixed
// regions merge into a single opcode token each.
func Tokens(ins *insts.Instruction, attach map[int]*insts.AttachVariable, set *regs.Set) ([]insts.Token, error) {
	if err := checkFieldOverlap(ins); err != nil {
		return nil, err
	}

	var toks []insts.Token
	offset := 0
	for _, t := range ins.Encoding {
		w := t.BitWidth()
		switch t.Kind {
		case insts.EncField:
			f := t.Field
			tok, err := fieldToken(ins, f, attach, set)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
		default:
			// Concrete bits, including located immediate literals that no
			// pass generalized, become fixed opcode bits.
			if n := len(toks) - 1; n >= 0 && toks[n].Kind == insts.TokenOpcode {
				toks[n].Slice.Width += w
				toks[n].Bits += t.Bits
			} else {
				toks = append(toks, insts.Token{
					Kind:  insts.TokenOpcode,
					Slice: insts.BitSlice{Start: offset, Width: w},
					Bits:  t.Bits,
				})
			}
		}
		offset += w
	}
	if offset != ins.Width {
		return nil, fmt.Errorf("instruction %d (%s): tokens cover %d bits, width is %d",
			ins.SrcIndex, ins.Mnemonic, offset, ins.Width)
	}

	for n := range toks {
		if toks[n].Kind == insts.TokenOpcode {
			toks[n].Name = fmt.Sprintf("op_%d_%d", toks[n].Slice.Start, toks[n].Slice.Width)
		}
	}
	return toks, nil
}

func checkFieldOverlap(ins *insts.Instruction) error {
	var fields []*insts.Field
	for _, op := range ins.Operands {
		if op.Kind == insts.OperandField {
			fields = append(fields, op.Field)
		}
	}
	for a := 0; a < len(fields); a++ {
		for b := a + 1; b < len(fields); b++ {
			if fields[a].Slice.Overlaps(fields[b].Slice) {
				return fmt.Errorf(
					"%w: instruction %d (%s): %s bits %d..%d vs %s bits %d..%d",
					ErrOverlappingFields, ins.SrcIndex, ins.Mnemonic,
					fields[a].Name, fields[a].Slice.Start, fields[a].Slice.End(),
					fields[b].Name, fields[b].Slice.Start, fields[b].Slice.End())
			}
		}
	}
	return nil
}

func fieldToken(ins *insts.Instruction, f *insts.Field, attach map[int]*insts.AttachVariable, set *regs.Set) (insts.Token, error) {
	switch f.Kind {
	case insts.FieldRegisterAttach:
		a, ok := attach[f.AttachID]
		if !ok {
			return insts.Token{}, fmt.Errorf(
				"%w: instruction %d (%s): attach table %d does not exist",
				ErrUnknownRegisterReference, ins.SrcIndex, ins.Mnemonic, f.AttachID)
		}
		if a.Width != f.Slice.Width {
			return insts.Token{}, fmt.Errorf(
				"%w: instruction %d (%s): %s needs %d selector bits, slice %d..%d has %d",
				ErrFieldWidthMismatch, ins.SrcIndex, ins.Mnemonic, a.Name,
				a.Width, f.Slice.Start, f.Slice.End(), f.Slice.Width)
		}
		for _, reg := range a.Registers {
			if !set.Contains(reg) {
				return insts.Token{}, fmt.Errorf(
					"%w: instruction %d (%s): register %q in %s",
					ErrUnknownRegisterReference, ins.SrcIndex, ins.Mnemonic, reg, a.Name)
			}
		}
		return insts.Token{Name: f.Name, Kind: insts.TokenRegister, Slice: f.Slice, Field: f}, nil
	default:
		return insts.Token{Name: f.Name, Kind: insts.TokenImmediate, Slice: f.Slice, Field: f}, nil
	}
}
