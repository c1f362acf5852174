package regalloc

import (
	"testing"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

func spilledReg(v, slot int, t ctypes.Type) *rtl.Operand {
	o := rtl.NewVReg(v, t)
	o.Spilled = true
	o.StackIndex = slot
	return o
}

func inReg(v int, r x86.Reg, t ctypes.Type) *rtl.Operand {
	o := rtl.NewVReg(v, t)
	o.PReg = r
	return o
}

type want struct {
	op  rtl.Op
	dst string
	src string
}

func checkCode(t *testing.T, fn *rtl.Function, expect []want) {
	t.Helper()
	code := fn.Code.Instrs()
	if len(code) != len(expect) {
		for i := range code {
			t.Logf("%s", rtl.FormatInstr(&code[i]))
		}
		t.Fatalf("expected %d instructions, got %d", len(expect), len(code))
	}
	for i, w := range expect {
		in := code[i]
		if in.Op != w.op || place(in.Dst) != w.dst || place(in.Src1) != w.src {
			t.Errorf("instr %d: expected %v %s <- %s, got %v %s <- %s",
				i, w.op, w.dst, w.src, in.Op, place(in.Dst), place(in.Src1))
		}
	}
}

// place names where an operand lives.
func place(o *rtl.Operand) string {
	switch {
	case o == nil:
		return "-"
	case o.Kind == rtl.Stack:
		return rtl.NewStack(o.StackIndex, nil).String()
	case o.Kind == rtl.PReg:
		return o.PReg.Name(8)
	case o.Kind == rtl.VReg && o.Spilled:
		return "spilled"
	case o.Kind == rtl.VReg:
		return o.PReg.Name(8)
	}
	return o.String()
}

func TestSpillInPlaceUpdate(t *testing.T) {
	long := ctypes.Long()
	fn := rtl.NewFunction("f", long)
	// v += w with both in memory.
	in := rtl.New(rtl.XAdd, spilledReg(30, -1, long), spilledReg(31, -2, long), spilledReg(30, -1, long))
	in.Label = 9
	in.Template = "addq\t%v1q, %vdq"
	fn.Code.Append(in)

	if n := InsertSpillCode(fn, nil); n != 3 {
		t.Errorf("expected 3 instructions added, got %d", n)
	}
	checkCode(t, fn, []want{
		{rtl.XMov, "r10", "S[-2]"},
		{rtl.XMov, "r11", "S[-1]"},
		{rtl.XAdd, "r11", "r10"},
		{rtl.XMov, "S[-1]", "r11"},
	})
	code := fn.Code.Instrs()
	if code[0].Label != 9 || code[2].Label != 0 {
		t.Errorf("label should move to the first load")
	}
	if place(code[2].Src2) != "r11" {
		t.Errorf("in-place operand is %s", place(code[2].Src2))
	}
	if code[0].Template != "movq\t%v1q, %vdq" {
		t.Errorf("load template %q", code[0].Template)
	}
}

func TestSpillDestinationOnly(t *testing.T) {
	fn := rtl.NewFunction("f", ctypes.Int())
	fn.Emit(rtl.XMov, spilledReg(30, -3, ctypes.Int()), inReg(31, x86.RBX, ctypes.Int()), nil)

	InsertSpillCode(fn, nil)
	checkCode(t, fn, []want{
		{rtl.XMov, "r11", "rbx"},
		{rtl.XMov, "S[-3]", "r11"},
	})
	if got := fn.Code.Instrs()[1].Template; got != "movl\t%v1l, %vdl" {
		t.Errorf("store template %q", got)
	}
}

func TestSpillStoreThroughPointer(t *testing.T) {
	long := ctypes.Long()
	fn := rtl.NewFunction("f", long)
	fn.Emit(rtl.XMovToInd, spilledReg(30, -1, ctypes.Pointer(long)), spilledReg(31, -2, long), nil)

	InsertSpillCode(fn, nil)
	checkCode(t, fn, []want{
		{rtl.XMov, "r10", "S[-2]"},
		{rtl.XMov, "r11", "S[-1]"},
		{rtl.XMovToInd, "r11", "r10"},
	})
}

func TestSpillSSE(t *testing.T) {
	d := ctypes.Double()
	fn := rtl.NewFunction("f", d)
	fn.Emit(rtl.XFadd, spilledReg(30, -1, d), inReg(31, x86.XMM3, d), spilledReg(30, -1, d))

	InsertSpillCode(fn, nil)
	checkCode(t, fn, []want{
		{rtl.XMov, "xmm15", "S[-1]"},
		{rtl.XFadd, "xmm15", "xmm3"},
		{rtl.XMov, "S[-1]", "xmm15"},
	})
	if got := fn.Code.Instrs()[0].Template; got != "movsd\t%v1, %vd" {
		t.Errorf("load template %q", got)
	}
}

func TestSpillLeavesRegistersAlone(t *testing.T) {
	long := ctypes.Long()
	fn := rtl.NewFunction("f", long)
	fn.Emit(rtl.XAdd, inReg(30, x86.RAX, long), inReg(31, x86.RCX, long), inReg(30, x86.RAX, long))
	if n := InsertSpillCode(fn, nil); n != 0 || fn.Code.Len() != 1 {
		t.Errorf("expected no spill code, got %d", n)
	}
}
