// Package x86 describes the x86-64 physical register file as seen by the
// code generator: register ids, per-width names, classes, calling convention
// register orders and the live-range pseudo-registers that stand in for fixed
// registers before allocation.
package x86

import "fmt"

// Reg is a physical register id. Integer registers are 0..15, SSE registers
// 16..31.
type Reg int

// NoReg marks an unassigned physical register.
const NoReg Reg = -1

const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

// Count is the number of physical registers, integer and SSE.
const Count = 32

// Class is a register class.
type Class int

const (
	ClassNone Class = iota
	ClassInt
	ClassSSE
)

func (c Class) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassSSE:
		return "sse"
	}
	return "none"
}

// Class returns the register class of r.
func (r Reg) Class() Class {
	switch {
	case r >= RAX && r <= R15:
		return ClassInt
	case r >= XMM0 && r <= XMM15:
		return ClassSSE
	}
	return ClassNone
}

var quadNames = [...]string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp"}
var longNames = [...]string{"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp"}
var wordNames = [...]string{"ax", "bx", "cx", "dx", "si", "di", "bp", "sp"}
var byteNames = [...]string{"al", "bl", "cl", "dl", "sil", "dil", "bpl", "spl"}

// Name returns the AT&T name of r (without the % sigil) accessed with the
// given width in bytes. SSE registers ignore the width.
func (r Reg) Name(width int) string {
	switch {
	case r >= XMM0 && r <= XMM15:
		return fmt.Sprintf("xmm%d", r-XMM0)
	case r >= R8 && r <= R15:
		n := int(r-R8) + 8
		switch width {
		case 1:
			return fmt.Sprintf("r%db", n)
		case 2:
			return fmt.Sprintf("r%dw", n)
		case 4:
			return fmt.Sprintf("r%dd", n)
		}
		return fmt.Sprintf("r%d", n)
	case r >= RAX && r <= RSP:
		switch width {
		case 1:
			return byteNames[r]
		case 2:
			return wordNames[r]
		case 4:
			return longNames[r]
		}
		return quadNames[r]
	}
	return fmt.Sprintf("?reg%d", int(r))
}

func (r Reg) String() string {
	return r.Name(8)
}

// IntArgRegs are the integer argument registers in order.
var IntArgRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

// SSEArgRegs are the SSE argument registers in order.
var SSEArgRegs = []Reg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}

// IntReturnRegs and SSEReturnRegs hold returned eightbytes in order.
var (
	IntReturnRegs = []Reg{RAX, RDX}
	SSEReturnRegs = []Reg{XMM0, XMM1}
)

// Scratch registers reserved for spill code, two per class.
var (
	IntScratch = [2]Reg{R10, R11}
	SSEScratch = [2]Reg{XMM14, XMM15}
)

// IsReserved reports whether r is never handed out by the allocator.
func IsReserved(r Reg) bool {
	switch r {
	case RSP, RBP, R10, R11, XMM14, XMM15:
		return true
	}
	return false
}

// IsCalleeSaved reports whether a function must preserve r for its caller.
func IsCalleeSaved(r Reg) bool {
	switch r {
	case RBX, R12, R13, R14, R15:
		return true
	}
	return false
}

// CalleeSavedRegs lists the callee-saved registers in push order.
var CalleeSavedRegs = []Reg{RBX, R12, R13, R14, R15}

// Allocatable returns the registers of class c available to the allocator,
// in color order.
func Allocatable(c Class) []Reg {
	var out []Reg
	lo, hi := RAX, R15
	if c == ClassSSE {
		lo, hi = XMM0, XMM15
	}
	for r := lo; r <= hi; r++ {
		if !IsReserved(r) {
			out = append(out, r)
		}
	}
	return out
}
