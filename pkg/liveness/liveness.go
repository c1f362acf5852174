// Package liveness computes the live-range facts the register allocator
// consumes from selected machine code: live intervals over the instruction
// order, interference between overlapping intervals, spill costs and
// preferred registers.
package liveness

import (
	"sort"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/regalloc"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// Interval is the closed range of instruction positions over which a
// register must hold its value.
type Interval struct {
	Start, End int
}

func (iv Interval) overlaps(o Interval) bool {
	return iv.Start <= o.End && o.Start <= iv.End
}

// Info is the result of the analysis.
type Info struct {
	// Intervals holds one interval per virtual register. A pseudo-register
	// gets one per value it carries, from each write to its last read.
	Intervals map[int][]Interval
	Analysis  *regalloc.Analysis
}

// Defs returns the register written by in, or 0.
func Defs(in *rtl.Instr) int {
	return in.DefinedVReg()
}

// Uses returns the registers read by in. Division also reads its
// destination, the dividend.
func Uses(in *rtl.Instr) []int {
	out := in.UsedVRegs()
	if (in.Op == rtl.XDiv || in.Op == rtl.XIdiv) && in.Dst != nil && in.Dst.Kind == rtl.VReg {
		out = append(out, in.Dst.VReg)
	}
	return out
}

func isCall(op rtl.Op) bool { return op == rtl.XCall || op == rtl.OpCall }

func isMove(in *rtl.Instr) bool { return in.Op == rtl.XMov || in.Op == rtl.OpMove }

func jumpTarget(in *rtl.Instr) int {
	if !in.Op.IsJump() {
		return 0
	}
	for _, o := range []*rtl.Operand{in.Src1, in.Src2} {
		if o != nil && o.Kind == rtl.Label {
			return o.Index
		}
	}
	return 0
}

// Intervals computes the live intervals of every register in code. A
// register read before any write is live from the function entry. A call
// writes every caller-saved pseudo-register. A backward jump stretches each
// virtual register interval crossing the loop it closes over the whole loop.
func Intervals(code []rtl.Instr) map[int][]Interval {
	ivs := make(map[int][]Interval)
	touch := func(v, pos int, def bool) {
		segs := ivs[v]
		switch {
		case len(segs) == 0:
			start := pos
			if !def {
				start = 0
			}
			ivs[v] = []Interval{{Start: start, End: pos}}
		case def && x86.IsPseudo(v):
			ivs[v] = append(segs, Interval{Start: pos, End: pos})
		default:
			segs[len(segs)-1].End = pos
		}
	}
	labels := make(map[int]int)
	for pos := range code {
		in := &code[pos]
		if in.Label != 0 {
			labels[in.Label] = pos
		}
		for _, v := range Uses(in) {
			touch(v, pos, false)
		}
		if v := Defs(in); v != 0 {
			touch(v, pos, true)
		}
		if isCall(in.Op) {
			for _, p := range x86.CallerSavedPseudos() {
				touch(p, pos, true)
			}
		}
	}

	type loop struct{ head, tail int }
	var loops []loop
	for pos := range code {
		if l, ok := labels[jumpTarget(&code[pos])]; ok && l <= pos {
			loops = append(loops, loop{head: l, tail: pos})
		}
	}
	for changed := true; changed; {
		changed = false
		for _, lp := range loops {
			span := Interval{Start: lp.head, End: lp.tail}
			for v, segs := range ivs {
				if x86.IsPseudo(v) || !segs[0].overlaps(span) {
					continue
				}
				grown := Interval{Start: min(segs[0].Start, lp.head), End: max(segs[0].End, lp.tail)}
				if grown != segs[0] {
					segs[0] = grown
					changed = true
				}
			}
		}
	}
	return ivs
}

// Options configures the analysis.
type Options struct {
	Logger *zap.Logger
}

type segment struct {
	v  int
	iv Interval
}

// Analyze computes the interference graph, spill costs and hints of fn.
// Registers of different classes never interfere. Two registers interfere
// when their intervals overlap, except where one is copied into the other at
// the last read of the source. The spill cost of a register is the number of
// operands naming it. A register moved to or from a pseudo-register prefers
// that pseudo-register.
func Analyze(fn *rtl.Function, opts Options) *Info {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	code := fn.Code.Instrs()
	ivs := Intervals(code)
	an := regalloc.NewAnalysis(fn.VRegCount + 1)
	info := &Info{Intervals: ivs, Analysis: an}

	class := make(map[int]x86.Class)
	for pos := range code {
		in := &code[pos]
		for _, o := range in.Operands() {
			if o.Kind != rtl.VReg {
				continue
			}
			if _, ok := class[o.VReg]; !ok {
				class[o.VReg] = o.Class()
			}
			an.SpillCost[o.VReg]++
			if o.Preferred != 0 && an.Preferred[o.VReg] == 0 {
				an.Preferred[o.VReg] = o.Preferred
			}
		}
		if isMove(in) && in.Dst != nil && in.Src1 != nil && in.Dst.Kind == rtl.VReg && in.Src1.Kind == rtl.VReg {
			hint(an, in.Dst.VReg, in.Src1.VReg)
			hint(an, in.Src1.VReg, in.Dst.VReg)
		}
	}
	for _, p := range x86.CallerSavedPseudos() {
		class[p] = x86.PseudoReg(p).Class()
	}

	var segs []segment
	for v, list := range ivs {
		for _, iv := range list {
			segs = append(segs, segment{v: v, iv: iv})
		}
	}
	sort.Slice(segs, func(i, j int) bool {
		a, b := segs[i], segs[j]
		if a.iv.Start != b.iv.Start {
			return a.iv.Start < b.iv.Start
		}
		if a.v != b.v {
			return a.v < b.v
		}
		return a.iv.End < b.iv.End
	})
	var active []segment
	for _, s := range segs {
		keep := active[:0]
		for _, a := range active {
			if a.iv.End >= s.iv.Start {
				keep = append(keep, a)
			}
		}
		active = keep
		for _, a := range active {
			if a.v == s.v || class[a.v] != class[s.v] || x86.IsPseudo(a.v) && x86.IsPseudo(s.v) {
				continue
			}
			if copiedAtLastRead(code, a, s) || copiedAtLastRead(code, s, a) {
				continue
			}
			an.Graph.AddEdge(a.v, s.v)
		}
		active = append(active, s)
	}
	log.Debug("liveness", zap.String("function", fn.Name), zap.Int("registers", len(ivs)), zap.Int("intervals", len(segs)))
	return info
}

// copiedAtLastRead reports whether a ends exactly where b begins with a move
// of a's register into b's.
func copiedAtLastRead(code []rtl.Instr, a, b segment) bool {
	if a.iv.End != b.iv.Start {
		return false
	}
	in := &code[b.iv.Start]
	return isMove(in) && Defs(in) == b.v && in.Src1 != nil && in.Src1.Kind == rtl.VReg && in.Src1.VReg == a.v
}

// hint makes the pseudo-register p the preferred register of v.
func hint(an *regalloc.Analysis, v, p int) {
	if x86.IsPseudo(v) || !x86.IsPseudo(p) || an.Preferred[v] != 0 {
		return
	}
	an.Preferred[v] = p
}
