package combine_test

import (
	"errors"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/revtools/pmgen/combine"
	"github.com/revtools/pmgen/insts"
	"github.com/revtools/pmgen/regs"
)

// parseAll runs the parser over a multi-line dump with the default
// register set.
func parseAll(lines ...string) []*insts.Instruction {
	set := regs.DefaultSet()
	list, err := insts.Parse(strings.NewReader(strings.Join(lines, "\n")), set)
	Expect(err).ToNot(HaveOccurred())
	return list
}

// checkWidths asserts the encoding-width invariant over a sequence.
func checkWidths(list []*insts.Instruction) {
	for _, ins := range list {
		Expect(ins.CheckWidth()).To(Succeed())
	}
}

// enumerate expands every generalized field of an instruction into all of
// its concrete encodings.
func enumerate(ins *insts.Instruction) []string {
	out := []string{""}
	for _, t := range ins.Encoding {
		var next []string
		switch t.Kind {
		case insts.EncField:
			w := t.Field.Slice.Width
			for _, prefix := range out {
				for v := 0; v < 1<<w; v++ {
					bits := strconv.FormatInt(int64(v), 2)
					bits = strings.Repeat("0", w-len(bits)) + bits
					next = append(next, prefix+bits)
				}
			}
		default:
			for _, prefix := range out {
				next = append(next, prefix+t.Bits)
			}
		}
		out = next
	}
	return out
}

var _ = Describe("Duplicates", func() {
	It("should collapse exact duplicates to the first occurrence", func() {
		list := parseAll(
			"0001 ADD r1, r2",
			"0001 ADD r1, r2",
		)

		out := combine.Duplicates(list)

		Expect(out).To(HaveLen(1))
		Expect(out[0].SrcIndex).To(Equal(0))
		checkWidths(out)
	})

	It("should keep instructions that differ in any component", func() {
		list := parseAll(
			"0001 ADD r1, r2",
			"0001 ADD r1, r3",
			"0010 ADD r1, r2",
		)

		Expect(combine.Duplicates(list)).To(HaveLen(3))
	})

	It("should be idempotent", func() {
		list := parseAll(
			"0001 ADD r1, r2",
			"0001 ADD r1, r2",
			"0010 SUB r1, r2",
		)

		once := combine.Duplicates(list)
		twice := combine.Duplicates(once)

		Expect(twice).To(Equal(once))
	})
})

var _ = Describe("Immediates", func() {
	It("should merge a group differing only in one immediate", func() {
		list := parseAll(
			"0010 0001 MOV r1, #0x1",
			"0010 0010 MOV r1, #0x2",
			"0010 0011 MOV r1, #0x3",
		)

		out, err := combine.Immediates(list)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		ins := out[0]
		Expect(ins.Operands[1].Kind).To(Equal(insts.OperandField))
		field := ins.Operands[1].Field
		Expect(field.Kind).To(Equal(insts.FieldImmediate))
		Expect(field.Slice).To(Equal(insts.BitSlice{Start: 4, Width: 4}))
		Expect(ins.EncodingBits()).To(Equal("0010????"))
		checkWidths(out)
	})

	It("should widen the field to the union of literal slices", func() {
		// Decimal literals carry their minimal width, so #1 occupies one
		// bit and #2/#3 two; all anchor at the same low bit.
		list := parseAll(
			"0010 01 MOV r1, #1",
			"0010 10 MOV r1, #2",
			"0010 11 MOV r1, #3",
		)

		out, err := combine.Immediates(list)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Operands[1].Field.Slice).To(Equal(insts.BitSlice{Start: 4, Width: 2}))
		checkWidths(out)
	})

	It("should leave a single unmatched instruction concrete", func() {
		list := parseAll("0010 0001 MOV r1, #0x1")

		out, err := combine.Immediates(list)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Operands[1].Kind).To(Equal(insts.OperandImmediate))
	})

	It("should reject literals anchored at different bit offsets", func() {
		list := parseAll(
			"0001 000 TRAP #0x1",
			"0000 010 TRAP #0x2",
		)

		_, err := combine.Immediates(list)

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, combine.ErrInconsistentImmediatePlacement)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("TRAP"))
	})

	It("should not merge instructions whose opcodes differ elsewhere", func() {
		list := parseAll(
			"0010 0001 MOV r1, #0x1",
			"1111 0010 MOV r1, #0x2",
		)

		_, err := combine.Immediates(list)

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, combine.ErrInconsistentImmediatePlacement)).To(BeTrue())
	})

	It("should generalize the later operand when two immediates vary", func() {
		list := parseAll(
			"1110 0001 0011 OUT #0x1, #0x3",
			"1110 0001 0100 OUT #0x1, #0x4",
		)

		out, err := combine.Immediates(list)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Operands[0].Kind).To(Equal(insts.OperandImmediate))
		Expect(out[0].Operands[0].Value).To(Equal(uint64(1)))
		Expect(out[0].Operands[1].Kind).To(Equal(insts.OperandField))
		Expect(out[0].Operands[1].Field.Slice).To(Equal(insts.BitSlice{Start: 8, Width: 4}))
	})

	It("should reproduce every original encoding exactly once", func() {
		list := parseAll(
			"1100 00 LDI #0b00",
			"1100 01 LDI #0b01",
			"1100 10 LDI #0b10",
			"1100 11 LDI #0b11",
		)
		var originals []string
		for _, ins := range list {
			originals = append(originals, ins.EncodingBits())
		}

		out, err := combine.Immediates(list)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(enumerate(out[0])).To(ConsistOf(originals))
	})

	It("should collect member source lines as examples", func() {
		list := parseAll(
			"0010 0001 MOV r1, #0x1",
			"0010 0010 MOV r1, #0x2",
		)

		out, err := combine.Immediates(list)

		Expect(err).ToNot(HaveOccurred())
		Expect(out[0].Examples).To(Equal([]string{
			"0010 0001 MOV r1, #0x1",
			"0010 0010 MOV r1, #0x2",
		}))
	})
})

var _ = Describe("Registers", func() {
	var table *combine.AttachTable

	BeforeEach(func() {
		table = combine.NewAttachTable()
	})

	It("should merge a two-register group into a one-bit attach field", func() {
		list := parseAll(
			"0011 0 PUSH r1",
			"0011 1 PUSH r2",
		)

		out, err := combine.Registers(list, table)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		field := out[0].Operands[0].Field
		Expect(field.Kind).To(Equal(insts.FieldRegisterAttach))
		Expect(field.Slice).To(Equal(insts.BitSlice{Start: 4, Width: 1}))

		attaches := table.Finalize()
		Expect(attaches).To(HaveLen(1))
		Expect(attaches[0].Registers).To(Equal([]string{"r1", "r2"}))
		Expect(attaches[0].Width).To(Equal(1))
		checkWidths(out)
	})

	It("should order attach registers by first occurrence", func() {
		list := parseAll(
			"0110 10 INC r2",
			"0110 00 INC r0",
			"0110 11 INC r3",
			"0110 01 INC r1",
		)

		out, err := combine.Registers(list, table)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(table.Finalize()[0].Registers).To(Equal([]string{"r2", "r0", "r3", "r1"}))
	})

	It("should reuse an attach variable with an equal register list", func() {
		list := parseAll(
			"0011 0 PUSH r1",
			"0011 1 PUSH r2",
			"0101 0 POP r1",
			"0101 1 POP r2",
		)

		out, err := combine.Registers(list, table)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(table.Finalize()).To(HaveLen(1))
		Expect(out[0].Operands[0].Field.AttachID).To(Equal(out[1].Operands[0].Field.AttachID))
	})

	It("should leave groups whose encodings do not differ concrete", func() {
		list := parseAll(
			"1010 0 CLR r0",
			"1010 0 CLR r1",
		)

		out, err := combine.Registers(list, table)

		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(table.Finalize()).To(BeEmpty())
	})

	It("should leave a single unmatched instruction concrete", func() {
		list := parseAll("0011 0 PUSH r1")

		out, err := combine.Registers(list, table)

		Expect(err).ToNot(HaveOccurred())
		Expect(out[0].Operands[0].Kind).To(Equal(insts.OperandRegister))
	})
})

var _ = Describe("AttachTable", func() {
	It("should reject lists of fewer than two registers", func() {
		_, err := combine.NewAttachTable().Intern([]string{"r1"})

		Expect(errors.Is(err, combine.ErrRegisterGroupTooSmall)).To(BeTrue())
	})

	It("should hold no two entries with equal register lists", func() {
		table := combine.NewAttachTable()
		a, err := table.Intern([]string{"r1", "r2"})
		Expect(err).ToNot(HaveOccurred())
		b, err := table.Intern([]string{"r1", "r2"})
		Expect(err).ToNot(HaveOccurred())
		c, err := table.Intern([]string{"r2", "r1"})
		Expect(err).ToNot(HaveOccurred())

		Expect(a.ID).To(Equal(b.ID))
		Expect(c.ID).ToNot(Equal(a.ID))
		Expect(table.Finalize()).To(HaveLen(2))
	})

	It("should derive range names from numbered registers", func() {
		table := combine.NewAttachTable()
		_, err := table.Intern([]string{"r0", "r1", "r2", "r3"})
		Expect(err).ToNot(HaveOccurred())

		Expect(table.Finalize()[0].Name).To(Equal("r0_r3"))
	})

	It("should fall back to positional names for mixed registers", func() {
		table := combine.NewAttachTable()
		_, err := table.Intern([]string{"sp", "r1"})
		Expect(err).ToNot(HaveOccurred())

		Expect(table.Finalize()[0].Name).To(Equal("attach0"))
	})

	It("should assign minimal selector widths", func() {
		table := combine.NewAttachTable()
		_, err := table.Intern([]string{"r0", "r1", "r2"})
		Expect(err).ToNot(HaveOccurred())
		_, err = table.Intern([]string{"r0", "r1", "r2", "r3", "r4"})
		Expect(err).ToNot(HaveOccurred())

		attaches := table.Finalize()
		Expect(attaches[0].Width).To(Equal(2))
		Expect(attaches[1].Width).To(Equal(3))
	})
})

var _ = Describe("Full pipeline", func() {
	It("should preserve order and invariants through all passes", func() {
		list := parseAll(
			"0001 00 ADD r1, r2",
			"0001 00 ADD r1, r2",
			"0010 01 MOV r1, #0b01",
			"0010 10 MOV r1, #0b10",
			"0011 0 0 PUSH r1",
			"0011 1 0 PUSH r2",
			"1111 11 HLT",
		)

		out := combine.Duplicates(list)
		checkWidths(out)

		out, err := combine.Immediates(out)
		Expect(err).ToNot(HaveOccurred())
		checkWidths(out)

		table := combine.NewAttachTable()
		out, err = combine.Registers(out, table)
		Expect(err).ToNot(HaveOccurred())
		checkWidths(out)

		Expect(out).To(HaveLen(4))
		Expect(out[0].Mnemonic).To(Equal("ADD"))
		Expect(out[1].Mnemonic).To(Equal("MOV"))
		Expect(out[2].Mnemonic).To(Equal("PUSH"))
		Expect(out[3].Mnemonic).To(Equal("HLT"))
	})

	It("should produce identical output across repeated runs", func() {
		lines := []string{
			"0010 01 MOV r1, #0b01",
			"0010 10 MOV r1, #0b10",
			"0011 0 PUSH r1",
			"0011 1 PUSH r2",
		}

		run := func() ([]string, []string) {
			list := parseAll(lines...)
			out := combine.Duplicates(list)
			out, err := combine.Immediates(out)
			Expect(err).ToNot(HaveOccurred())
			table := combine.NewAttachTable()
			out, err = combine.Registers(out, table)
			Expect(err).ToNot(HaveOccurred())

			var encodings, names []string
			for _, ins := range out {
				encodings = append(encodings, ins.EncodingBits())
			}
			for _, a := range table.Finalize() {
				names = append(names, a.Name)
			}
			return encodings, names
		}

		enc1, names1 := run()
		enc2, names2 := run()

		Expect(enc2).To(Equal(enc1))
		Expect(names2).To(Equal(names1))
	})
})
