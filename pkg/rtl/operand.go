package rtl

import (
	"fmt"
	"math"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// Kind says what an operand denotes.
type Kind int

const (
	VReg   Kind = iota + 1 // virtual register
	PReg                   // physical register
	Stack                  // stack slot
	Const                  // integer constant
	FConst                 // floating constant
	String                 // string literal
	Global                 // global symbol
	Label                  // jump target
	Func                   // function symbol
	Param                  // incoming parameter, rewritten by the ABI layer
)

func (k Kind) String() string {
	names := []string{"?", "vreg", "preg", "stack", "const", "fconst", "string", "global", "label", "func", "param"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// Operand is a typed operand. The Kind fields identify the value; PReg,
// StackIndex and Spilled hold the location once a virtual register has been
// allocated.
type Operand struct {
	Kind Kind
	Type ctypes.Type

	VReg   int
	Int    int64
	Float  float64
	Index  int    // string literal index, label number, or parameter index
	Symbol string // global or function name
	Offset int64  // byte offset added to a global or stack slot

	PReg       x86.Reg
	StackIndex int // <0 locals and spills, >=2 incoming stack parameters
	Spilled    bool

	// Preferred is a live-range pseudo-register hint (0 = none).
	Preferred int
	// OriginalStackIndex is the incoming stack slot of a parameter value.
	OriginalStackIndex int
	// LvalueInRegister marks a register holding the address of the value.
	LvalueInRegister bool
}

func newOperand(k Kind, t ctypes.Type) *Operand {
	return &Operand{Kind: k, Type: t, PReg: x86.NoReg}
}

// NewVReg returns a virtual register operand.
func NewVReg(n int, t ctypes.Type) *Operand {
	o := newOperand(VReg, t)
	o.VReg = n
	return o
}

// NewPReg returns a physical register operand.
func NewPReg(r x86.Reg, t ctypes.Type) *Operand {
	o := newOperand(PReg, t)
	o.PReg = r
	return o
}

// NewConst returns an integer constant operand.
func NewConst(v int64, t ctypes.Type) *Operand {
	o := newOperand(Const, t)
	o.Int = v
	return o
}

// NewFConst returns a floating constant operand.
func NewFConst(v float64, t ctypes.Type) *Operand {
	o := newOperand(FConst, t)
	o.Float = v
	return o
}

// NewStack returns a stack slot operand.
func NewStack(index int, t ctypes.Type) *Operand {
	o := newOperand(Stack, t)
	o.StackIndex = index
	return o
}

// NewGlobal returns a global symbol operand.
func NewGlobal(name string, t ctypes.Type) *Operand {
	o := newOperand(Global, t)
	o.Symbol = name
	return o
}

// NewString returns a string literal operand. Its value is the address of
// the literal.
func NewString(index int) *Operand {
	o := newOperand(String, ctypes.Pointer(ctypes.Char()))
	o.Index = index
	return o
}

// NewLabel returns a jump target operand.
func NewLabel(n int) *Operand {
	o := newOperand(Label, nil)
	o.Index = n
	return o
}

// NewFunc returns a function symbol operand.
func NewFunc(name string) *Operand {
	o := newOperand(Func, ctypes.Tfunction{})
	o.Symbol = name
	return o
}

// NewParam returns a reference to incoming parameter i.
func NewParam(i int, t ctypes.Type) *Operand {
	o := newOperand(Param, t)
	o.Index = i
	return o
}

// Clone returns an independent copy. Cloning nil yields nil.
func (o *Operand) Clone() *Operand {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// WithType returns a clone of o carrying type t.
func (o *Operand) WithType(t ctypes.Type) *Operand {
	c := o.Clone()
	c.Type = t
	return c
}

// WithOffset returns a clone of o addressing off bytes further.
func (o *Operand) WithOffset(off int64, t ctypes.Type) *Operand {
	c := o.Clone()
	c.Offset += off
	c.Type = t
	return c
}

// IsConst reports whether o is an integer constant.
func (o *Operand) IsConst() bool {
	return o != nil && o.Kind == Const
}

// IsRegister reports whether o lives in a register: a virtual register that
// was not spilled, or a physical register.
func (o *Operand) IsRegister() bool {
	if o == nil {
		return false
	}
	switch o.Kind {
	case VReg:
		return !o.Spilled
	case PReg:
		return true
	}
	return false
}

// IsMemory reports whether o is a global or stack location.
func (o *Operand) IsMemory() bool {
	return o != nil && (o.Kind == Global || o.Kind == Stack)
}

// Class returns the register class a value of o's type occupies.
func (o *Operand) Class() x86.Class {
	if o.Kind == VReg && x86.IsPseudo(o.VReg) {
		return x86.PseudoReg(o.VReg).Class()
	}
	if ctypes.IsSSE(o.Type) {
		return x86.ClassSSE
	}
	return x86.ClassInt
}

// Width returns the size of o's value in bytes: 1, 2, 4 or 8 for scalars.
func (o *Operand) Width() int {
	if o.Type == nil {
		return 8
	}
	switch o.Type.(type) {
	case ctypes.Tint, ctypes.Tfloat:
		return int(ctypes.Sizeof(o.Type))
	}
	return 8
}

// Location returns the physical register holding o, or NoReg.
func (o *Operand) Location() x86.Reg {
	switch o.Kind {
	case PReg:
		return o.PReg
	case VReg:
		if !o.Spilled {
			return o.PReg
		}
	}
	return x86.NoReg
}

// FloatBits returns the IEEE bit pattern of a floating constant at its type's
// precision.
func (o *Operand) FloatBits() uint64 {
	if f, ok := o.Type.(ctypes.Tfloat); ok && f.Size == ctypes.F32 {
		return uint64(math.Float32bits(float32(o.Float)))
	}
	return math.Float64bits(o.Float)
}

func (o *Operand) String() string {
	if o == nil {
		return ""
	}
	var s string
	switch o.Kind {
	case VReg:
		s = fmt.Sprintf("r%d", o.VReg)
		if o.PReg != x86.NoReg {
			s += "(%" + o.PReg.Name(8) + ")"
		} else if o.Spilled {
			s += fmt.Sprintf("[S%d]", o.StackIndex)
		}
	case PReg:
		s = "%" + o.PReg.Name(8)
	case Stack:
		s = fmt.Sprintf("S[%d]", o.StackIndex)
		if o.Offset != 0 {
			s += fmt.Sprintf("+%d", o.Offset)
		}
	case Const:
		s = fmt.Sprintf("%d", o.Int)
	case FConst:
		s = fmt.Sprintf("%g", o.Float)
	case String:
		s = fmt.Sprintf("s%d", o.Index)
	case Global:
		s = o.Symbol
		if o.Offset != 0 {
			s += fmt.Sprintf("+%d", o.Offset)
		}
	case Label:
		return fmt.Sprintf("l%d", o.Index)
	case Func:
		return o.Symbol
	case Param:
		s = fmt.Sprintf("param%d", o.Index)
	}
	if o.Type != nil {
		s += ":" + o.Type.String()
	}
	return s
}
