// Package regs provides the register catalog used to classify operand text.
// The catalog starts from a built-in table of register names common across
// architectures and can be extended with caller-supplied names.
package regs

import "strings"

// defaultRegisters is the built-in register table. It is intentionally
// broad: operand classification only needs name recognition, so names from
// unrelated architectures do not conflict with each other.
var defaultRegisters = []string{
	// Generic numbered general-purpose registers.
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"r16", "r17", "r18", "r19", "r20", "r21", "r22", "r23",
	"r24", "r25", "r26", "r27", "r28", "r29", "r30", "r31",

	// ARM64-style X/W registers.
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
	"x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15",
	"x16", "x17", "x18", "x19", "x20", "x21", "x22", "x23",
	"x24", "x25", "x26", "x27", "x28", "x29", "x30",
	"w0", "w1", "w2", "w3", "w4", "w5", "w6", "w7",
	"w8", "w9", "w10", "w11", "w12", "w13", "w14", "w15",

	// RISC-V ABI names.
	"zero", "ra", "gp", "tp",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11",

	// MIPS-style.
	"v0", "v1", "k0", "k1", "at", "hi", "lo",

	// x86 families.
	"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp",
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"ax", "bx", "cx", "dx", "si", "di", "bp",
	"al", "ah", "bl", "bh", "cl", "ch", "dl", "dh",

	// 8-bit micros and DSPs.
	"acc", "b", "dptr", "ix", "iy", "hl", "de", "af",

	// Common special registers.
	"sp", "pc", "lr", "fp", "sr", "psw", "ccr", "cr", "flags",
}

// Set is an immutable register catalog with case-insensitive lookup.
type Set struct {
	index map[string]int
	order []string
}

// DefaultSet builds a Set from the built-in table plus any additional
// caller-supplied register names. Duplicate names (in any case) are kept
// once, at their first position.
func DefaultSet(additional ...string) *Set {
	names := make([]string, 0, len(defaultRegisters)+len(additional))
	names = append(names, defaultRegisters...)
	names = append(names, additional...)
	return NewSet(names)
}

// NewSet builds a Set holding exactly the given register names.
func NewSet(names []string) *Set {
	s := &Set{index: make(map[string]int, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := s.index[key]; ok {
			continue
		}
		s.index[key] = len(s.order)
		s.order = append(s.order, key)
	}
	return s
}

// Contains reports whether name is a known register. Lookup is
// case-insensitive.
func (s *Set) Contains(name string) bool {
	_, ok := s.index[strings.ToLower(name)]
	return ok
}

// Canonical returns the canonical (lower-case) spelling of name if it is a
// known register.
func (s *Set) Canonical(name string) (string, bool) {
	i, ok := s.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return s.order[i], true
}

// All returns every register name in registration order.
func (s *Set) All() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of registers in the set.
func (s *Set) Len() int {
	return len(s.order)
}
