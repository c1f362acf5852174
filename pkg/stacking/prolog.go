package stacking

import (
	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

func reg(r x86.Reg) *rtl.Operand { return rtl.NewPReg(r, ctypes.Long()) }

func machine(op rtl.Op, dst, src *rtl.Operand, tmpl string) rtl.Instr {
	in := rtl.New(op, dst, src, nil)
	in.Template = tmpl
	return in
}

// GeneratePrologue generates the function prologue:
//  1. Save the caller's frame base and point rbp at it
//  2. Allocate locals, spill slots and padding
//  3. Push the callee-saved registers the body uses
func GeneratePrologue(layout *FrameLayout) []rtl.Instr {
	prologue := []rtl.Instr{
		machine(rtl.XPush, nil, reg(x86.RBP), "pushq\t%v1q"),
		machine(rtl.XMov, reg(x86.RBP), reg(x86.RSP), "movq\t%v1q, %vdq"),
	}
	if n := layout.AllocSize(); n > 0 {
		prologue = append(prologue,
			machine(rtl.XStack, reg(x86.RSP), rtl.NewConst(n, ctypes.Long()), "subq\t$%v1q, %vdq"))
	}
	for _, r := range layout.CalleeSaved {
		prologue = append(prologue, machine(rtl.XPush, nil, reg(r), "pushq\t%v1q"))
	}
	return prologue
}

// GenerateEpilogue generates the instructions run before each return:
// callee-saved registers are popped in reverse order, then leave restores
// rsp and rbp.
func GenerateEpilogue(layout *FrameLayout) []rtl.Instr {
	var epilogue []rtl.Instr
	if len(layout.CalleeSaved) > 0 {
		// rsp may have moved since the pushes; point it back at them.
		below := -(layout.AllocSize() + int64(len(layout.CalleeSaved))*slotSize)
		epilogue = append(epilogue,
			machine(rtl.XLea, reg(x86.RSP), rtl.NewConst(below, ctypes.Long()), "leaq\t%v1(%%rbp), %vdq"))
	}
	for i := len(layout.CalleeSaved) - 1; i >= 0; i-- {
		epilogue = append(epilogue, machine(rtl.XPop, reg(layout.CalleeSaved[i]), nil, "popq\t%vdq"))
	}
	return append(epilogue, machine(rtl.XStack, nil, nil, "leave"))
}

// IsLeafFunction returns true if the function doesn't call other functions.
// A leaf frame needs no call-site alignment.
func IsLeafFunction(fn *rtl.Function) bool {
	for _, id := range fn.Code.IDs() {
		if op := fn.Code.At(id).Op; op == rtl.XCall || op == rtl.OpCall {
			return false
		}
	}
	return true
}
