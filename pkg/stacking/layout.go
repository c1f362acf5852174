// Package stacking lays out the activation record of an allocated function.
// It maps stack slot indexes to offsets from the frame base, sizes the frame
// and wraps the body in a prologue and epilogue.
package stacking

import (
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

const (
	stackAlignment = 16 // rsp alignment at call sites
	slotSize       = 8
)

// x86-64 frame layout (called function's view):
//
//	+---------------------------+
//	| incoming stack arguments  |  index 2.. : +16.. from rbp
//	| return address            |  index 1   : +8
//	| saved rbp                 |  index 0   : rbp points here
//	+---------------------------+
//	| locals and spill slots    |  index -1.. : -8..
//	| alignment padding         |
//	| callee-saved registers    |  pushed after the frame is allocated
//	+---------------------------+  <- rsp
//
// A stack index n names the 8 bytes at 8*n(%rbp).

// FrameLayout describes the concrete stack frame of one function.
type FrameLayout struct {
	LocalSize    int64 // locals and spill slots, 8-byte aligned
	IncomingSize int64 // incoming stack arguments read by the body
	Padding      int64 // keeps rsp 16-byte aligned at calls
	CalleeSaved  []x86.Reg
	Leaf         bool
}

// FrameSize is the 8-byte aligned size of the local area.
func (l *FrameLayout) FrameSize() int64 { return l.LocalSize }

// AllocSize is the amount subtracted from rsp after the frame base is set.
func (l *FrameLayout) AllocSize() int64 { return l.LocalSize + l.Padding }

// SlotOffset returns the offset from the frame base of stack index index.
func (l *FrameLayout) SlotOffset(index int) int64 {
	return int64(index) * slotSize
}

// ComputeLayout computes the frame layout for an allocated function.
func ComputeLayout(fn *rtl.Function) *FrameLayout {
	info := collectStackInfo(fn)
	layout := &FrameLayout{
		LocalSize:    alignUp(max(int64(fn.StackSlots)*slotSize, info.LocalSize), slotSize),
		IncomingSize: info.IncomingSize,
		CalleeSaved:  FindUsedCalleeSaveRegs(fn),
		Leaf:         IsLeafFunction(fn),
	}
	if !layout.Leaf {
		used := layout.LocalSize + int64(len(layout.CalleeSaved))*slotSize
		layout.Padding = alignUp(used, stackAlignment) - used
	}
	return layout
}

// stackInfo holds collected info about stack usage
type stackInfo struct {
	LocalSize    int64
	IncomingSize int64
}

// collectStackInfo scans fn for stack operands, direct and spilled. Index 0
// and 1 hold the saved frame base and return address and are never valid.
func collectStackInfo(fn *rtl.Function) *stackInfo {
	info := &stackInfo{}
	for _, id := range fn.Code.IDs() {
		in := fn.Code.At(id)
		for _, o := range in.Operands() {
			index, ok := stackIndex(o)
			if !ok {
				continue
			}
			end := int64(index)*slotSize + o.Offset + int64(o.Width())
			switch {
			case index < 0:
				if lo := -(int64(index)*slotSize + o.Offset); lo > info.LocalSize {
					info.LocalSize = lo
				}
			case index >= 2:
				if inc := end - 2*slotSize; inc > info.IncomingSize {
					info.IncomingSize = inc
				}
			default:
				rtl.Panicf("stacking", in, "stack index %d addresses the saved frame", index)
			}
		}
	}
	return info
}

func stackIndex(o *rtl.Operand) (int, bool) {
	switch {
	case o.Kind == rtl.Stack:
		return o.StackIndex, true
	case o.Kind == rtl.VReg && o.Spilled:
		return o.StackIndex, true
	}
	return 0, false
}

// alignUp rounds n up to the nearest multiple of align
func alignUp(n, align int64) int64 {
	if align == 0 {
		return n
	}
	return ((n + align - 1) / align) * align
}
