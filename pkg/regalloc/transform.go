package regalloc

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// assignLocations maps colors to physical registers and writes every
// register's location into each operand naming it.
func (a *Allocator) assignLocations() {
	for v, col := range a.colors {
		regs := x86.Allocatable(a.classOf(v))
		a.result.Locations[v] = Location{Reg: regs[col]}
	}
	for _, id := range a.fn.Code.IDs() {
		for _, o := range a.fn.Code.At(id).Operands() {
			if o.Kind != rtl.VReg {
				continue
			}
			loc, ok := a.result.Locations[o.VReg]
			if !ok {
				rtl.Panicf("regalloc", a.fn.Code.At(id), "r%d has no location", o.VReg)
			}
			o.PReg = loc.Reg
			o.Spilled = loc.Spilled
			if loc.Spilled {
				o.PReg = x86.NoReg
				o.StackIndex = loc.StackIndex
			}
		}
	}
}

// isSelfMove reports whether in copies a location onto itself.
func isSelfMove(in *rtl.Instr) bool {
	if in.Op != rtl.XMov || in.Dst == nil || in.Src1 == nil || in.Dst.Kind != rtl.VReg {
		return false
	}
	d, s := in.Dst, in.Src1
	switch {
	case d.Spilled:
		if s.Kind == rtl.VReg && s.Spilled || s.Kind == rtl.Stack {
			return s.StackIndex == d.StackIndex && s.Offset == 0
		}
		return false
	case s.Kind == rtl.VReg && !s.Spilled:
		return s.PReg == d.PReg
	}
	return false
}

// removeSelfMoves deletes moves made redundant by coloring. A labelled move
// leaves a labelled no-op behind.
func (a *Allocator) removeSelfMoves() int {
	n := 0
	code := a.fn.Code
	for id := code.First(); id != rtl.NoID; {
		in := code.At(id)
		if !isSelfMove(in) {
			id = code.Next(id)
			continue
		}
		a.log.Debug("self-move removed", zap.String("instr", rtl.FormatInstr(in)))
		n++
		if in.Label != 0 {
			nop := rtl.New(rtl.OpNop, nil, nil, nil)
			nop.Label = in.Label
			*in = nop
			id = code.Next(id)
			continue
		}
		id = code.Remove(id)
	}
	return n
}
