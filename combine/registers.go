package combine

import (
	"fmt"

	"github.com/revtools/pmgen/insts"
)

// Registers merges groups of instructions that differ only in one register
// operand. The selector bits are the contiguous span covering every bit
// position where the member encodings differ; the distinct registers, in
// first-seen order, form (or reuse) an attach variable, and the varying
// position becomes a register-attach field.
//
// Groups whose encodings do not actually encode the register choice (no
// differing bits, conflicting selector values, or selector bits colliding
// with an existing field) are left concrete rather than merged: keeping
// them un-generalized is lossless, merging them would not be.
func Registers(list []*insts.Instruction, table *AttachTable) ([]*insts.Instruction, error) {
	out := make([]*insts.Instruction, len(list))
	copy(out, list)

	for p := maxOperandCount(out) - 1; p >= 0; p-- {
		groups := make(map[string][]int)
		var order []string
		for idx, ins := range out {
			if ins == nil || p >= len(ins.Operands) {
				continue
			}
			if ins.Operands[p].Kind != insts.OperandRegister {
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
			if err := mergeRegisterGroup(out, members, p, table); err != nil {
				return nil, err
			}
		}
	}

	return compact(out), nil
}

func mergeRegisterGroup(out []*insts.Instruction, members []int, p int, table *AttachTable) error {
	first := out[members[0]]
	base := first.EncodingBits()

	// Selector bits are wherever any member disagrees with the first.
	lo, hi := -1, -1
	for _, idx := range members[1:] {
		mb := out[idx].EncodingBits()
		for b := 0; b < len(base); b++ {
			if mb[b] == base[b] {
				continue
			}
			if lo == -1 || b < lo {
				lo = b
			}
			if b > hi {
				hi = b
			}
		}
	}
	if lo == -1 {
		// Identical encodings with different register text: the register is
		// not encoded, so there is nothing to generalize.
		return nil
	}
	span := insts.BitSlice{Start: lo, Width: hi - lo + 1}

	selectors := make(map[string]string, len(members))
	var registers []string
	seen := make(map[string]bool, len(members))
	for _, idx := range members {
		member := out[idx]
		if otherSliceOverlaps(member, p, span) {
			return nil
		}
		mb := member.EncodingBits()
		sel := mb[span.Start : span.End()+1]
		reg := member.Operands[p].Text
		if prev, ok := selectors[sel]; ok && prev != reg {
			// The same selector value names two registers; the group cannot
			// be encoded as a single attach field.
			return nil
		}
		selectors[sel] = reg
		if !seen[reg] {
			seen[reg] = true
			registers = append(registers, reg)
		}
	}
	if len(registers) < 2 {
		return nil
	}

	attach, err := table.Intern(registers)
	if err != nil {
		return err
	}

	field := &insts.Field{
		Name:     fmt.Sprintf("reg_%d_%d", span.Start, span.Width),
		Kind:     insts.FieldRegisterAttach,
		Slice:    span,
		AttachID: attach.ID,
	}
	replaceWithField(first, p, field)
	for _, idx := range members[1:] {
		absorb(first, out[idx])
		out[idx] = nil
	}
	return nil
}
