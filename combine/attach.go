package combine

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/revtools/pmgen/insts"
)

// AttachTable builds the attach-variable table incrementally during the
// register pass. Entries are content-addressed by their ordered register
// list, so two groups producing the same list share one table entry.
type AttachTable struct {
	vars  []*insts.AttachVariable
	index map[string]int
}

// NewAttachTable returns an empty table.
func NewAttachTable() *AttachTable {
	return &AttachTable{index: make(map[string]int)}
}

// Intern returns the attach variable for the given ordered register list,
// creating it if no equal list exists yet.
func (t *AttachTable) Intern(registers []string) (*insts.AttachVariable, error) {
	if len(registers) < 2 {
		return nil, fmt.Errorf("%w: got %d registers", ErrRegisterGroupTooSmall, len(registers))
	}
	key := strings.Join(registers, ",")
	if i, ok := t.index[key]; ok {
		return t.vars[i], nil
	}

	a := &insts.AttachVariable{
		ID:        len(t.vars),
		Registers: append([]string(nil), registers...),
	}
	t.index[key] = a.ID
	t.vars = append(t.vars, a)
	return a, nil
}

// Finalize assigns every entry its selector width and a stable name, and
// returns the table in creation order. Names derive from the member
// registers when they share an alphabetic prefix with numeric suffixes;
// otherwise the positional fallback attachN is used.
func (t *AttachTable) Finalize() []*insts.AttachVariable {
	used := make(map[string]bool, len(t.vars))
	for _, a := range t.vars {
		a.Width = selectorWidth(len(a.Registers))
		name := rangeName(a.Registers)
		if name == "" || used[name] {
			name = "attach" + strconv.Itoa(a.ID)
		}
		used[name] = true
		a.Name = name
	}
	return t.vars
}

// selectorWidth is ceil(log2(n)), minimum 1.
func selectorWidth(n int) int {
	if n <= 2 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// rangeName builds a name like r0_r7 when every register is the same
// alphabetic prefix plus a decimal suffix.
func rangeName(registers []string) string {
	prefix := ""
	lo, hi := 0, 0
	for n, reg := range registers {
		p, num, ok := splitRegName(reg)
		if !ok {
			return ""
		}
		if n == 0 {
			prefix, lo, hi = p, num, num
			continue
		}
		if p != prefix {
			return ""
		}
		if num < lo {
			lo = num
		}
		if num > hi {
			hi = num
		}
	}
	return fmt.Sprintf("%s%d_%s%d", prefix, lo, prefix, hi)
}

func splitRegName(reg string) (prefix string, num int, ok bool) {
	i := len(reg)
	for i > 0 && reg[i-1] >= '0' && reg[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(reg) {
		return "", 0, false
	}
	num, err := strconv.Atoi(reg[i:])
	if err != nil {
		return "", 0, false
	}
	return reg[:i], num, true
}
