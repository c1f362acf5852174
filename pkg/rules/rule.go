package rules

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-cg/pkg/rtl"
)

// MaxRules bounds the size of a rule set.
const MaxRules = 9000

// Arg selects the operand a micro-operation reads or writes.
type Arg int

const (
	ArgNone Arg = iota
	ArgDst
	ArgSrc1
	ArgSrc2
	ArgSlot1 // scratch registers allocated per rule application
	ArgSlot2
	ArgSlot3
	ArgSlot4
	ArgRAX // live-range pseudo-registers
	ArgRCX
	ArgRDX
	ArgXMM0
)

// Slots is the number of scratch slots a rule may use.
const Slots = 4

func (a Arg) String() string {
	switch a {
	case ArgNone:
		return "-"
	case ArgDst:
		return "dst"
	case ArgSrc1:
		return "src1"
	case ArgSrc2:
		return "src2"
	case ArgRAX:
		return "rax"
	case ArgRCX:
		return "rcx"
	case ArgRDX:
		return "rdx"
	case ArgXMM0:
		return "xmm0"
	}
	if a >= ArgSlot1 && a <= ArgSlot4 {
		return fmt.Sprintf("slot%d", int(a-ArgSlot1)+1)
	}
	return "?"
}

// IsSlot reports whether a names a scratch slot.
func (a Arg) IsSlot() bool { return a >= ArgSlot1 && a <= ArgSlot4 }

// MicroOp is one machine instruction emitted by a rule. The template's %vd,
// %v1 and %v2 placeholders render Dst, V1 and V2.
type MicroOp struct {
	Op       rtl.Op
	Dst      Arg
	V1       Arg
	V2       Arg
	Template string
}

// Emit builds a micro-operation.
func Emit(op rtl.Op, dst, v1, v2 Arg, template string) MicroOp {
	return MicroOp{Op: op, Dst: dst, V1: v1, V2: v2, Template: template}
}

// Rule matches an IR operation whose operands satisfy Src1 and Src2 and
// produces a Dst class at Cost. A rule with Op none is a leaf rule: it turns
// a bare operand of class Src1 into class Dst.
type Rule struct {
	Index int
	Op    rtl.Op
	Dst   NT
	Src1  NT
	Src2  NT
	Cost  int
	Ops   []MicroOp
}

// IsLeaf reports whether r matches a bare operand.
func (r *Rule) IsLeaf() bool { return r.Op == rtl.OpNone }

// Clobbers reports whether r writes its destination before its last read of
// src. Such a rule is wrong when the destination aliases that source.
func (r *Rule) Clobbers(src Arg) bool {
	written := false
	for _, m := range r.Ops {
		if written && (m.V1 == src || m.V2 == src) {
			return true
		}
		if m.Dst == ArgDst && !(m.Op == rtl.XMovToInd) {
			written = true
		}
	}
	return false
}

func (r *Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%4d %-5s %-17s %-5s %-5s %3d", r.Index, r.Dst, r.Op, r.Src1, r.Src2, r.Cost)
	for i, m := range r.Ops {
		if i > 0 {
			b.WriteString(" ;")
		}
		b.WriteString(" ")
		b.WriteString(strings.ReplaceAll(m.Template, "\t", " "))
	}
	return b.String()
}

// Set is a rule table indexed by operation.
type Set struct {
	rules  []*Rule
	byOp   map[rtl.Op][]*Rule
	leaves map[NT][]*Rule
	used   map[int]int
}

// NewSet returns an empty rule table.
func NewSet() *Set {
	return &Set{
		byOp:   make(map[rtl.Op][]*Rule),
		leaves: make(map[NT][]*Rule),
		used:   make(map[int]int),
	}
}

// Add adds a rule. When any class is a width family the rule is expanded
// into one rule per size 1..4, with template size suffixes filled in.
func (s *Set) Add(dst NT, op rtl.Op, src1, src2 NT, cost int, ops ...MicroOp) {
	if !dst.IsFamily() && !src1.IsFamily() && !src2.IsFamily() {
		s.add(dst, op, src1, src2, cost, ops)
		return
	}
	for size := 1; size <= 4; size++ {
		expanded := make([]MicroOp, len(ops))
		for i, m := range ops {
			m.Template = ExpandTemplate(m.Template, size)
			expanded[i] = m
		}
		s.add(Fin(dst, size), op, Fin(src1, size), Fin(src2, size), cost, expanded)
	}
}

func (s *Set) add(dst NT, op rtl.Op, src1, src2 NT, cost int, ops []MicroOp) {
	r := &Rule{Index: len(s.rules), Op: op, Dst: dst, Src1: src1, Src2: src2, Cost: cost, Ops: ops}
	s.rules = append(s.rules, r)
	if r.IsLeaf() {
		s.leaves[src1] = append(s.leaves[src1], r)
	} else {
		s.byOp[op] = append(s.byOp[op], r)
	}
}

// ExpandTemplate fills in a sized template: %s becomes the size letter and
// each %v1, %v2 or %vd without an explicit suffix gets the size letter.
func ExpandTemplate(t string, size int) string {
	letter := SizeLetter(size)
	var b strings.Builder
	for i := 0; i < len(t); i++ {
		c := t[i]
		if c != '%' || i+1 >= len(t) {
			b.WriteByte(c)
			continue
		}
		switch t[i+1] {
		case '%':
			b.WriteString("%%")
			i++
		case 's':
			b.WriteByte(letter)
			i++
		case 'v':
			if i+2 >= len(t) {
				b.WriteByte(c)
				continue
			}
			b.WriteString(t[i : i+3])
			i += 2
			if i+1 >= len(t) || !strings.ContainsRune("bwlqHLF", rune(t[i+1])) {
				b.WriteByte(letter)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Rules returns every rule in index order.
func (s *Set) Rules() []*Rule { return s.rules }

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// ForOp returns the rules matching IR operation op.
func (s *Set) ForOp(op rtl.Op) []*Rule { return s.byOp[op] }

// LeavesFrom returns the leaf rules consuming an operand of class n.
func (s *Set) LeavesFrom(n NT) []*Rule { return s.leaves[n] }

// MarkUsed records that selection picked r.
func (s *Set) MarkUsed(r *Rule) { s.used[r.Index]++ }

// Coverage returns how many distinct rules have been used.
func (s *Set) Coverage() (used, total int) {
	return len(s.used), len(s.rules)
}

// Unused returns the rules never picked, in index order.
func (s *Set) Unused() []*Rule {
	var out []*Rule
	for _, r := range s.rules {
		if s.used[r.Index] == 0 {
			out = append(out, r)
		}
	}
	return out
}
