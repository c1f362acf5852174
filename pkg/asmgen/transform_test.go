package asmgen

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-cg/pkg/asm"
	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/stacking"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

func emit(fn *rtl.Function, label int, op rtl.Op, dst, src *rtl.Operand, tmpl string) {
	in := rtl.New(op, dst, src, nil)
	in.Label = label
	in.Template = tmpl
	fn.Code.Append(in)
}

func TestTransformEmptyProgram(t *testing.T) {
	result, err := TransformProgram(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Functions) != 0 {
		t.Errorf("Expected 0 functions, got %d", len(result.Functions))
	}
	if len(result.Globals) != 0 {
		t.Errorf("Expected 0 globals, got %d", len(result.Globals))
	}
}

func TestTransformFunction(t *testing.T) {
	long := ctypes.Long()
	fn := rtl.NewFunction("count", long)
	fn.Strings = []string{"hi"}
	emit(fn, 0, rtl.XLea, rtl.NewPReg(x86.RDI, long), rtl.NewString(0), "leaq\t%v1, %vdq")
	emit(fn, 2, rtl.OpStartLoop, nil, nil, "")
	emit(fn, 0, rtl.XMov, rtl.NewPReg(x86.RAX, long), rtl.NewStack(-1, long), "movq\t%v1, %vd")
	emit(fn, 0, rtl.XJmp, nil, rtl.NewLabel(2), "jmp\t%v1")

	layout := &stacking.FrameLayout{LocalSize: 8, CalleeSaved: []x86.Reg{x86.RBX}}
	f, strs, err := TransformFunction(fn, layout)
	if err != nil {
		t.Fatalf("TransformFunction: %v", err)
	}
	want := []asm.Instruction{
		asm.Text{Line: "leaq\t.Lcount.str0(%rip), %rdi"},
		asm.LabelDef{Name: ".Lcount.2"},
		asm.Text{Line: "movq\t-8(%rbp), %rax"},
		asm.Text{Line: "jmp\t.Lcount.2"},
	}
	if len(f.Code) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(f.Code), f.Code)
	}
	for i := range want {
		if f.Code[i] != want[i] {
			t.Errorf("line %d: got %#v, want %#v", i, f.Code[i], want[i])
		}
	}
	if f.FrameSize != 8 || len(f.CalleeSaved) != 1 || f.CalleeSaved[0] != "rbx" {
		t.Errorf("unexpected frame summary %d %v", f.FrameSize, f.CalleeSaved)
	}
	if len(strs) != 1 || strs[0].Name != ".Lcount.str0" || string(strs[0].Init) != "hi\x00" || !strs[0].ReadOnly {
		t.Errorf("unexpected string symbols %+v", strs)
	}
}

func TestTransformRejectsUnselected(t *testing.T) {
	long := ctypes.Long()
	fn := rtl.NewFunction("f", long)
	fn.Emit(rtl.OpAdd, rtl.NewVReg(30, long), rtl.NewConst(1, long), rtl.NewConst(2, long))
	if _, _, err := TransformFunction(fn, nil); !errors.Is(err, ErrUnselected) {
		t.Errorf("expected ErrUnselected, got %v", err)
	}
}

func TestTransformProgramCollectsStrings(t *testing.T) {
	a := rtl.NewFunction("a", nil)
	a.Strings = []string{"x", "y"}
	b := rtl.NewFunction("b", nil)
	prog, err := TransformProgram([]Unit{{Fn: a}, {Fn: b}}, []asm.GlobVar{{Name: "g", Size: 4}})
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Functions) != 2 || len(prog.Globals) != 3 {
		t.Errorf("got %d functions and %d globals", len(prog.Functions), len(prog.Globals))
	}
	if prog.Globals[0].Name != "g" || prog.Globals[2].Name != ".La.str1" {
		t.Errorf("unexpected globals %+v", prog.Globals)
	}
}
