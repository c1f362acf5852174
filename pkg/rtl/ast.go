// Package rtl defines the three-address intermediate representation consumed
// and produced by the code generator. Generic IR operations and x86 machine
// operations share one opcode space so that partially lowered sequences are
// representable. Instructions live in an index-addressed arena per function.
package rtl

// Op is an operation code, IR-level or machine-level.
type Op int

// IR operations
const (
	OpNone Op = iota
	OpNop
	OpMove          // dst = src1
	OpMoveToPtr     // *src1 = src2, dst is the pointer
	OpMovePregClass // dst = src1 moved between register classes
	OpAddressOf     // dst = &src1
	OpIndirect      // dst = *src1
	OpStartCall     // call boundary marker, src1 = call id
	OpArg           // argument src2 of call src1; after lowering, push src1
	OpArgStackPadding
	OpCallArgReg // keeps an argument register live up to the call
	OpCall       // dst = src1(...)
	OpEndCall
	OpVaStart // va_start(src1)
	OpVaArg   // dst = va_arg(src1)
	OpAllocateStack
	OpReleaseStack
	OpReturn
	OpStartLoop
	OpEndLoop
	OpJmp // jmp src1
	OpJz  // if src1 == 0 jmp src2
	OpJnz // if src1 != 0 jmp src2
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpLor
	OpLand
	OpLnot
	OpBnot
	OpBor
	OpBand
	OpXor
	OpBshl
	OpBshr // logical shift right
	OpAshr // arithmetic shift right

	irOpEnd
)

// Machine operations. They start well above the IR range.
const (
	XMov Op = 1000 + iota
	XMovz
	XMovs
	XMovFromInd
	XMovToInd
	XMovPregClass
	XLea
	XAdd
	XSub
	XMul
	XIdiv
	XDiv
	XCqto
	XCltd
	XShl
	XShr
	XSar
	XBor
	XBand
	XXor
	XBnot
	XNeg
	XCvt
	XFadd
	XFsub
	XFmul
	XFdiv
	XCmp
	XCmpz
	XComis
	XTest
	XJmp
	XJz
	XJnz
	XJe
	XJne
	XJlt
	XJgt
	XJle
	XJge
	XJb
	XJa
	XJbe
	XJae
	XSete
	XSetne
	XSetlt
	XSetgt
	XSetle
	XSetge
	XSetb
	XSeta
	XSetbe
	XSetae
	XPush
	XPop
	XCall
	XRet
	XStack

	xOpEnd
)

// IsMachine reports whether o is a machine operation.
func (o Op) IsMachine() bool {
	return o >= XMov && o < xOpEnd
}

// IsPseudo reports whether o is a marker that passes through instruction
// selection untouched.
func (o Op) IsPseudo() bool {
	switch o {
	case OpNop, OpStartCall, OpEndCall, OpStartLoop, OpEndLoop, OpCallArgReg:
		return true
	}
	return false
}

// IsJump reports whether o transfers control.
func (o Op) IsJump() bool {
	switch o {
	case OpJmp, OpJz, OpJnz, OpReturn:
		return true
	}
	return o >= XJmp && o <= XJae || o == XRet
}

// IsCommutative reports whether the operands of o can be swapped.
func (o Op) IsCommutative() bool {
	switch o {
	case OpAdd, OpMul, OpBor, OpBand, OpXor, OpEq, OpNe:
		return true
	}
	return false
}

// WritesMemory reports whether o may store to memory other than its
// destination operand.
func (o Op) WritesMemory() bool {
	switch o {
	case OpMoveToPtr, OpCall, OpStartCall, OpEndCall, OpVaStart, OpArg:
		return true
	}
	return false
}

var irOpNames = map[Op]string{
	OpNone:            "none",
	OpNop:             "nop",
	OpMove:            "move",
	OpMoveToPtr:       "move-to-ptr",
	OpMovePregClass:   "move-preg-class",
	OpAddressOf:       "address-of",
	OpIndirect:        "indirect",
	OpStartCall:       "start-call",
	OpArg:             "arg",
	OpArgStackPadding: "arg-stack-padding",
	OpCallArgReg:      "call-arg-reg",
	OpCall:            "call",
	OpEndCall:         "end-call",
	OpVaStart:         "va-start",
	OpVaArg:           "va-arg",
	OpAllocateStack:   "allocate-stack",
	OpReleaseStack:    "release-stack",
	OpReturn:          "return",
	OpStartLoop:       "start-loop",
	OpEndLoop:         "end-loop",
	OpJmp:             "jmp",
	OpJz:              "jz",
	OpJnz:             "jnz",
	OpAdd:             "add",
	OpSub:             "sub",
	OpMul:             "mul",
	OpDiv:             "div",
	OpMod:             "mod",
	OpEq:              "eq",
	OpNe:              "ne",
	OpLt:              "lt",
	OpGt:              "gt",
	OpLe:              "le",
	OpGe:              "ge",
	OpLor:             "lor",
	OpLand:            "land",
	OpLnot:            "lnot",
	OpBnot:            "bnot",
	OpBor:             "bor",
	OpBand:            "band",
	OpXor:             "xor",
	OpBshl:            "bshl",
	OpBshr:            "bshr",
	OpAshr:            "ashr",
}

var machineOpNames = []string{
	"x-mov", "x-movz", "x-movs", "x-mov-from-ind", "x-mov-to-ind", "x-mov-preg-class",
	"x-lea", "x-add", "x-sub", "x-mul", "x-idiv", "x-div", "x-cqto", "x-cltd",
	"x-shl", "x-shr", "x-sar", "x-bor", "x-band", "x-xor", "x-bnot", "x-neg", "x-cvt",
	"x-fadd", "x-fsub", "x-fmul", "x-fdiv", "x-cmp", "x-cmpz", "x-comis", "x-test",
	"x-jmp", "x-jz", "x-jnz", "x-je", "x-jne", "x-jlt", "x-jgt", "x-jle", "x-jge",
	"x-jb", "x-ja", "x-jbe", "x-jae",
	"x-sete", "x-setne", "x-setlt", "x-setgt", "x-setle", "x-setge",
	"x-setb", "x-seta", "x-setbe", "x-setae",
	"x-push", "x-pop", "x-call", "x-ret", "x-stack",
}

func (o Op) String() string {
	if name, ok := irOpNames[o]; ok {
		return name
	}
	if o.IsMachine() && int(o-XMov) < len(machineOpNames) {
		return machineOpNames[o-XMov]
	}
	return "op?"
}

// OpByName looks up an IR operation by its printed name.
func OpByName(name string) (Op, bool) {
	for op, n := range irOpNames {
		if n == name {
			return op, true
		}
	}
	return OpNone, false
}

// Instr is one instruction: an operation with up to one destination and two
// sources. Label, when non-zero, makes the instruction a jump target. Template
// is set once a machine operation has been selected; after that only operand
// locations are patched.
type Instr struct {
	Op       Op
	Label    int
	Dst      *Operand
	Src1     *Operand
	Src2     *Operand
	Template string
}

// New returns an instruction with operand clones, so the caller's operands
// stay independent of the instruction.
func New(op Op, dst, src1, src2 *Operand) Instr {
	return Instr{Op: op, Dst: dst.Clone(), Src1: src1.Clone(), Src2: src2.Clone()}
}

// Operands returns the non-nil operands of the instruction, destination first.
func (in *Instr) Operands() []*Operand {
	var out []*Operand
	for _, o := range []*Operand{in.Dst, in.Src1, in.Src2} {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// DefinedVReg returns the virtual register written by the instruction, or 0.
// Stores through a pointer define nothing.
func (in *Instr) DefinedVReg() int {
	if in.Dst == nil || in.Dst.Kind != VReg || in.Op == OpMoveToPtr || in.Op == XMovToInd {
		return 0
	}
	return in.Dst.VReg
}

// UsedVRegs returns the virtual registers read by the instruction.
func (in *Instr) UsedVRegs() []int {
	var out []int
	for _, o := range []*Operand{in.Src1, in.Src2} {
		if o != nil && o.Kind == VReg {
			out = append(out, o.VReg)
		}
	}
	if in.Dst != nil && in.Dst.Kind == VReg && (in.Op == OpMoveToPtr || in.Op == XMovToInd) {
		out = append(out, in.Dst.VReg)
	}
	return out
}
