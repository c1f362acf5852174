package stacking

import (
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// IsCalleeSaved returns true if the register must be preserved for the
// caller.
func IsCalleeSaved(reg x86.Reg) bool {
	return x86.IsCalleeSaved(reg)
}

// FindUsedCalleeSaveRegs returns the callee-saved registers fn touches, in
// push order.
func FindUsedCalleeSaveRegs(fn *rtl.Function) []x86.Reg {
	used := make(map[x86.Reg]bool)
	for _, id := range fn.Code.IDs() {
		for _, o := range fn.Code.At(id).Operands() {
			if r := o.Location(); r != x86.NoReg {
				used[r] = true
			}
		}
	}
	var result []x86.Reg
	for _, reg := range x86.CalleeSavedRegs {
		if used[reg] {
			result = append(result, reg)
		}
	}
	return result
}
