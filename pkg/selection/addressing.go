// Package selection implements instruction selection: IR instructions are
// grouped into expression trees per basic block, merged, simplified and
// constant-folded, then tiled with the rule table at minimal cost.
// This file handles operand placement before trees are built: results that
// land in memory and the operands a merged tree may read.
package selection

import (
	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
)

// splitMemoryDst rewrites an operation whose destination is a memory
// location so that it computes into a fresh register followed by a move.
// Only moves have rules storing straight to memory.
func splitMemoryDst(fn *rtl.Function, in rtl.Instr) []rtl.Instr {
	if in.Dst == nil || !in.Dst.IsMemory() || in.Op == rtl.OpMove || in.Op.IsPseudo() {
		return []rtl.Instr{in}
	}
	if ctypes.IsAggregate(in.Dst.Type) || ctypes.IsLongDouble(in.Dst.Type) {
		return []rtl.Instr{in}
	}
	tmp := fn.NewVReg(in.Dst.Type)
	compute := in
	compute.Dst = tmp
	store := rtl.New(rtl.OpMove, in.Dst, tmp, nil)
	return []rtl.Instr{compute, store}
}

// mergeable reports whether the tree of in may become a subtree of a later
// instruction: it must compute a value into a virtual register and have no
// other effect.
func mergeable(in *rtl.Instr) bool {
	if in.Dst == nil || in.Dst.Kind != rtl.VReg {
		return false
	}
	if in.Op.IsPseudo() || in.Op.IsJump() || in.Op.IsMachine() || in.Op.WritesMemory() {
		return false
	}
	switch in.Op {
	case rtl.OpVaArg, rtl.OpArgStackPadding, rtl.OpAllocateStack, rtl.OpReleaseStack:
		return false
	}
	return true
}

// writesMemory reports whether in may change memory a merged tree reads.
func writesMemory(in *rtl.Instr) bool {
	return in.Op.WritesMemory() || in.Op == rtl.OpVaArg || in.Dst.IsMemory()
}

func isCallBoundary(op rtl.Op) bool {
	switch op {
	case rtl.OpStartCall, rtl.OpCall, rtl.OpEndCall:
		return true
	}
	return false
}

// sameRepresentation reports whether a move from b to a changes nothing but
// the static type.
func sameRepresentation(a, b ctypes.Type) bool {
	if a == nil || b == nil {
		return false
	}
	if ctypes.IsPointer(a) && ctypes.IsPointer(b) {
		return true
	}
	return ctypes.Equal(a, b)
}

func isPointerToAggregate(t ctypes.Type) bool {
	return ctypes.IsAggregate(ctypes.PointerTarget(t))
}
