package combine

import (
	"fmt"
	"strconv"

	"github.com/revtools/pmgen/insts"
)

// Immediates merges groups of instructions that differ only in the value
// of one located immediate operand. The varying position becomes an
// immediate field whose slice is the union of the member literals' bit
// slices, anchored at a common low bit.
//
// Candidate operand positions are swept from the last operand to the
// first, so a group sharing a longer operand prefix wins when an
// instruction could join more than one; remaining ties resolve by source
// order. Groups of one are left concrete.
func Immediates(list []*insts.Instruction) ([]*insts.Instruction, error) {
	out := make([]*insts.Instruction, len(list))
	copy(out, list)

	for p := maxOperandCount(out) - 1; p >= 0; p-- {
		groups := make(map[string][]int)
		var order []string
		for idx, ins := range out {
			if ins == nil || p >= len(ins.Operands) {
				continue
			}
			op := ins.Operands[p]
			if op.Kind != insts.OperandImmediate || op.Slice.Width == 0 {
				continue
			}
			key := groupKey(ins, p)
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], idx)
		}

		for _, key := range order {
			members := groups[key]
			if len(members) < 2 {
				continue
			}
			if err := mergeImmediateGroup(out, members, p); err != nil {
				return nil, err
			}
		}
	}

	return compact(out), nil
}

func mergeImmediateGroup(out []*insts.Instruction, members []int, p int) error {
	first := out[members[0]]
	end := first.Operands[p].Slice.End()
	minStart := first.Operands[p].Slice.Start

	for _, idx := range members[1:] {
		s := out[idx].Operands[p].Slice
		if s.End() != end {
			return fmt.Errorf(
				"%w: %s operand %d: literal at bits ending %d vs %d (instructions %d, %d)",
				ErrInconsistentImmediatePlacement, first.Mnemonic, p,
				end, s.End(), first.SrcIndex, out[idx].SrcIndex)
		}
		if s.Start < minStart {
			minStart = s.Start
		}
	}
	union := insts.BitSlice{Start: minStart, Width: end - minStart + 1}

	base := blankRegion(first.EncodingBits(), union)
	for _, idx := range members {
		member := out[idx]
		if otherSliceOverlaps(member, p, union) {
			return fmt.Errorf(
				"%w: %s operand %d: field bits %d..%d overlap another operand (instruction %d)",
				ErrInconsistentImmediatePlacement, member.Mnemonic, p,
				union.Start, union.End(), member.SrcIndex)
		}
		mb := member.EncodingBits()
		slice := mb[union.Start : union.End()+1]
		got, err := strconv.ParseUint(slice, 2, 64)
		if err != nil {
			return fmt.Errorf(
				"%w: %s operand %d: bits %d..%d are not concrete (instruction %d)",
				ErrInconsistentImmediatePlacement, member.Mnemonic, p,
				union.Start, union.End(), member.SrcIndex)
		}
		if got != member.Operands[p].Value {
			return fmt.Errorf(
				"%w: %s operand %d: bits %d..%d encode %d, literal is %d (instruction %d)",
				ErrInconsistentImmediatePlacement, member.Mnemonic, p,
				union.Start, union.End(), got, member.Operands[p].Value, member.SrcIndex)
		}
		if blankRegion(mb, union) != base {
			return fmt.Errorf(
				"%w: %s operand %d: encodings disagree outside bits %d..%d (instructions %d, %d)",
				ErrInconsistentImmediatePlacement, member.Mnemonic, p,
				union.Start, union.End(), first.SrcIndex, member.SrcIndex)
		}
	}

	field := &insts.Field{
		Name:  fmt.Sprintf("imm_%d_%d", union.Start, union.Width),
		Kind:  insts.FieldImmediate,
		Slice: union,
	}
	replaceWithField(first, p, field)
	for _, idx := range members[1:] {
		absorb(first, out[idx])
		out[idx] = nil
	}
	return nil
}
