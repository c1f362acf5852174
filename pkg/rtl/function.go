package rtl

import (
	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// Function is one function being compiled.
type Function struct {
	Name   string
	Params []ctypes.Type
	// ParamAddressTaken marks parameters that must live in memory.
	ParamAddressTaken []bool
	Return            ctypes.Type
	Variadic          bool
	Code              *List

	// VRegCount is the highest virtual register id handed out. Ids up to
	// x86.PseudoCount are the live-range pseudo-registers.
	VRegCount int
	// StackSlots is the number of 8-byte local slots allocated below the
	// frame base.
	StackSlots int
	// LabelCount is the highest label number handed out.
	LabelCount int
	// Strings holds the string literals referenced by String operands.
	Strings []string
}

// NewFunction returns an empty function with vreg numbering past the
// pseudo-register range.
func NewFunction(name string, ret ctypes.Type, params ...ctypes.Type) *Function {
	if ret == nil {
		ret = ctypes.Void()
	}
	return &Function{
		Name:              name,
		Params:            params,
		ParamAddressTaken: make([]bool, len(params)),
		Return:            ret,
		Code:              NewList(),
		VRegCount:         x86.PseudoCount,
	}
}

// NewVReg allocates a fresh virtual register of type t.
func (f *Function) NewVReg(t ctypes.Type) *Operand {
	f.VRegCount++
	return NewVReg(f.VRegCount, t)
}

// NewLabel allocates a fresh label number.
func (f *Function) NewLabel() int {
	f.LabelCount++
	return f.LabelCount
}

// AllocateSlot reserves stack space for a value of type t and returns the
// slot operand addressing its lowest byte.
func (f *Function) AllocateSlot(t ctypes.Type) *Operand {
	size := ctypes.Sizeof(t)
	n := int((size + 7) / 8)
	if n == 0 {
		n = 1
	}
	if ctypes.Alignof(t) >= 16 && (f.StackSlots+n)%2 != 0 {
		f.StackSlots++
	}
	f.StackSlots += n
	return NewStack(-f.StackSlots, t)
}

// Emit appends an instruction built from op and operand clones.
func (f *Function) Emit(op Op, dst, src1, src2 *Operand) ID {
	return f.Code.Append(New(op, dst, src1, src2))
}

// EmitLabel appends a no-op carrying label.
func (f *Function) EmitLabel(label int) ID {
	in := New(OpNop, nil, nil, nil)
	in.Label = label
	return f.Code.Append(in)
}
