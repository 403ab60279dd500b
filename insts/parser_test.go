package insts_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/revtools/pmgen/insts"
	"github.com/revtools/pmgen/regs"
)

var _ = Describe("Parser", func() {
	var set *regs.Set

	BeforeEach(func() {
		set = regs.DefaultSet()
	})

	parse := func(text string, opts ...insts.ParseOption) []*insts.Instruction {
		list, err := insts.Parse(strings.NewReader(text), set, opts...)
		Expect(err).ToNot(HaveOccurred())
		return list
	}

	It("should parse opcode, mnemonic, and operands", func() {
		list := parse("0001 ADD r1, r2\n")

		Expect(list).To(HaveLen(1))
		ins := list[0]
		Expect(ins.Mnemonic).To(Equal("ADD"))
		Expect(ins.Width).To(Equal(4))
		Expect(ins.Operands).To(HaveLen(2))
		Expect(ins.Operands[0].Kind).To(Equal(insts.OperandRegister))
		Expect(ins.Operands[0].Text).To(Equal("r1"))
		Expect(ins.Operands[1].Text).To(Equal("r2"))
		Expect(ins.CheckWidth()).To(Succeed())
	})

	It("should concatenate multiple opcode groups", func() {
		list := parse("0001 1010 NOP\n")

		Expect(list[0].Width).To(Equal(8))
		Expect(list[0].EncodingBits()).To(Equal("00011010"))
	})

	It("should expand hex opcode groups to four bits per digit", func() {
		list := parse("0x2A NOP\n")

		Expect(list[0].Width).To(Equal(8))
		Expect(list[0].EncodingBits()).To(Equal("00101010"))
	})

	It("should classify registers case-insensitively", func() {
		list := parse("0001 MOV R1, SP\n")

		Expect(list[0].Operands[0].Kind).To(Equal(insts.OperandRegister))
		Expect(list[0].Operands[0].Text).To(Equal("r1"))
		Expect(list[0].Operands[1].Text).To(Equal("sp"))
	})

	It("should keep unrecognized operand text as fixed", func() {
		list := parse("0001 JMP [r2+4]\n")

		Expect(list[0].Operands[0].Kind).To(Equal(insts.OperandFixed))
		Expect(list[0].Operands[0].Text).To(Equal("[r2+4]"))
	})

	It("should locate a hex immediate literal in the encoding", func() {
		list := parse("0010 0011 MOV r1, #0x3\n")

		op := list[0].Operands[1]
		Expect(op.Kind).To(Equal(insts.OperandImmediate))
		Expect(op.Value).To(Equal(uint64(3)))
		Expect(op.Slice).To(Equal(insts.BitSlice{Start: 4, Width: 4}))
		Expect(list[0].CheckWidth()).To(Succeed())
	})

	It("should prefer the rightmost placement of a literal", func() {
		// "11" appears at bits 0..1 and 4..5; the low placement wins.
		list := parse("1100 11 LDI #0b11\n")

		Expect(list[0].Operands[0].Slice).To(Equal(insts.BitSlice{Start: 4, Width: 2}))
	})

	It("should leave an unlocatable immediate concrete", func() {
		list := parse("0000 MOV r1, #0x7\n")

		op := list[0].Operands[1]
		Expect(op.Kind).To(Equal(insts.OperandImmediate))
		Expect(op.Slice.Width).To(Equal(0))
	})

	It("should not claim the same bits for two immediates", func() {
		list := parse("0101 0101 OUT #0x5, #0x5\n")

		a := list[0].Operands[0].Slice
		b := list[0].Operands[1].Slice
		Expect(a.Width).To(Equal(4))
		Expect(b.Width).To(Equal(4))
		Expect(a.Overlaps(b)).To(BeFalse())
	})

	It("should fail on a line without opcode bits", func() {
		_, err := insts.Parse(strings.NewReader("ADD r1, r2\n"), set)

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, insts.ErrMalformedLine)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("line 1"))
	})

	It("should fail on a line without a mnemonic", func() {
		_, err := insts.Parse(strings.NewReader("0001 0010\n"), set)

		Expect(errors.Is(err, insts.ErrMalformedLine)).To(BeTrue())
	})

	It("should skip malformed lines when asked to", func() {
		list := parse("bogus line\n0001 NOP\n", insts.SkipMalformed())

		Expect(list).To(HaveLen(1))
		Expect(list[0].Mnemonic).To(Equal("NOP"))
	})

	It("should return an empty sequence for empty input", func() {
		list := parse("\n\n// comment only\n")

		Expect(list).To(BeEmpty())
	})

	It("should number instructions in source order", func() {
		list := parse("0001 NOP\n0010 HLT\n")

		Expect(list[0].SrcIndex).To(Equal(0))
		Expect(list[1].SrcIndex).To(Equal(1))
	})

	It("should not mutate the register set", func() {
		before := set.Len()
		parse("0001 ADD r1, notareg\n")

		Expect(set.Len()).To(Equal(before))
	})

	Describe("ObservedRegisters", func() {
		It("should list distinct registers in first-seen order", func() {
			list := parse("0001 ADD r2, r1\n0010 SUB r1, r3\n")

			Expect(insts.ObservedRegisters(list)).To(Equal([]string{"r2", "r1", "r3"}))
		})
	})
})
