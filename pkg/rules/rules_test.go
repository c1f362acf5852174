package rules

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
)

func TestDefaultRuleSetPassesChecks(t *testing.T) {
	s := Default()
	if err := s.Check(); err != nil {
		for _, e := range multierr.Errors(err) {
			t.Error(e)
		}
	}
	if s.Len() == 0 || s.Len() > MaxRules {
		t.Errorf("unexpected rule count %d", s.Len())
	}
}

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		tmpl string
		size int
		want string
	}{
		{"mov%s\t%v1, %vd", 3, "movl\t%v1l, %vdl"},
		{"add%s\t$%v1, %vd", 4, "addq\t$%v1q, %vdq"},
		{"shl%s\t%v1b, %vd", 2, "shlw\t%v1b, %vdw"},
		{"pushq\t%v1H", 1, "pushq\t%v1H"},
		{"movabsq\t$%v1F, %vdq", 4, "movabsq\t$%v1F, %vdq"},
		{"subq\t$8, %%rsp", 4, "subq\t$8, %%rsp"},
		{"cmp%s\t%v1, %v2", 1, "cmpb\t%v1b, %v2b"},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			if got := ExpandTemplate(tt.tmpl, tt.size); got != tt.want {
				t.Errorf("ExpandTemplate(%q, %d) = %q, want %q", tt.tmpl, tt.size, got, tt.want)
			}
		})
	}
}

func TestFin(t *testing.T) {
	tests := []struct {
		fam  NT
		size int
		want NT
	}{
		{FamRI, 1, RI1},
		{FamRU, 4, RU4},
		{FamMI, 2, MI2},
		{FamRP, 3, RP3},
		{FamCIimm, 3, CI3},
		{FamCIimm, 4, CI3},
		{LAB, 2, LAB},
	}
	for _, tt := range tests {
		if got := Fin(tt.fam, tt.size); got != tt.want {
			t.Errorf("Fin(%s, %d) = %s, want %s", tt.fam, tt.size, got, tt.want)
		}
	}
}

func hasAll(got []NT, want ...NT) bool {
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestConstClasses(t *testing.T) {
	tests := []struct {
		name    string
		v       int64
		typ     ctypes.Type
		want    []NT
		wantNot []NT
	}{
		{"300 int", 300, ctypes.Int(), []NT{CI2, CI3, CI4, CU2, CU3, CU4}, []NT{CI1, CU1}},
		{"minus one", -1, ctypes.Int(), []NT{CI1, CI2, CI3, CI4}, []NT{CU1, CU3}},
		{"200 uchar", 200, ctypes.UChar(), []NT{CI1, CI2, CU1}, nil},
		{"cast keeps width", 1, ctypes.Long(), []NT{CI1, CI4, CU1, CU4}, nil},
		{"large ulong", 1 << 40, ctypes.ULong(), []NT{CI4, CU4}, []NT{CI3, CU3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConstClasses(tt.v, tt.typ)
			if !hasAll(got, tt.want...) {
				t.Errorf("ConstClasses = %v, want at least %v", got, tt.want)
			}
			for _, n := range tt.wantNot {
				if hasAll(got, n) {
					t.Errorf("ConstClasses = %v, should not contain %s", got, n)
				}
			}
		})
	}
}

func TestOperandClasses(t *testing.T) {
	tests := []struct {
		name string
		o    *rtl.Operand
		want []NT
	}{
		{"char reg", rtl.NewVReg(30, ctypes.Char()), []NT{RI1}},
		{"uint reg", rtl.NewVReg(30, ctypes.UInt()), []NT{RU3}},
		{"int pointer", rtl.NewVReg(30, ctypes.Pointer(ctypes.Int())), []NT{RP3, RU4}},
		{"struct pointer", rtl.NewVReg(30, ctypes.Pointer(ctypes.Struct("s", ctypes.Int()))), []NT{RP5, RU4}},
		{"double reg", rtl.NewVReg(30, ctypes.Double()), []NT{RS4}},
		{"global short", rtl.NewGlobal("g", ctypes.Short()), []NT{MI2}},
		{"stack pointer", rtl.NewStack(-1, ctypes.Pointer(ctypes.Char())), []NT{MPV, MU4}},
		{"long double slot", rtl.NewStack(-2, ctypes.LongDouble()), []NT{MLD5}},
		{"float const", rtl.NewFConst(1.5, ctypes.Float()), []NT{CS3}},
		{"label", rtl.NewLabel(1), []NT{LAB}},
		{"string", rtl.NewString(0), []NT{STL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classes(tt.o)
			if len(got) != len(tt.want) || !hasAll(got, tt.want...) {
				t.Errorf("Classes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckReportsEveryProblem(t *testing.T) {
	s := NewSet()
	mov := Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "movl\t%v1l, %vdl")
	s.Add(RI3, rtl.OpMove, RI3, NTNone, 1, mov)
	s.Add(RI3, rtl.OpMove, RI3, NTNone, 2, mov)
	s.Add(RI3, rtl.OpAdd, RI3, RI3, 0, mov)
	s.Add(RI1, rtl.OpAdd, RI4, RI1, 10, mov)

	err := s.Check()
	if err == nil {
		t.Fatal("expected errors")
	}
	errs := multierr.Errors(err)
	if len(errs) != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", len(errs), err)
	}
	for i, want := range []string{"duplicates", "no cost", "loses precision"} {
		if !strings.Contains(errs[i].Error(), want) {
			t.Errorf("problem %d = %q, want it to mention %q", i, errs[i], want)
		}
	}
}

func TestFamilyExpansion(t *testing.T) {
	s := NewSet()
	s.Add(FamRI, rtl.OpAdd, FamRI, FamCIimm, 10,
		Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov%s\t%v1, %vd"),
		Emit(rtl.XAdd, ArgDst, ArgSrc2, ArgDst, "add%s\t$%v1, %vd"))

	if s.Len() != 4 {
		t.Fatalf("expected 4 rules, got %d", s.Len())
	}
	last := s.Rules()[3]
	if last.Dst != RI4 || last.Src1 != RI4 || last.Src2 != CI3 {
		t.Errorf("size 4 rule = %s", last)
	}
	if last.Ops[1].Template != "addq\t$%v1q, %vdq" {
		t.Errorf("template = %q", last.Ops[1].Template)
	}
	if len(s.ForOp(rtl.OpAdd)) != 4 {
		t.Errorf("ForOp(add) = %d rules", len(s.ForOp(rtl.OpAdd)))
	}
}

func TestClobbers(t *testing.T) {
	var add *Rule
	for _, r := range Default().ForOp(rtl.OpAdd) {
		if r.Dst == RI3 && r.Src1 == RI3 && r.Src2 == RI3 {
			add = r
		}
	}
	if add == nil {
		t.Fatal("no register add rule")
	}
	if !add.Clobbers(ArgSrc2) {
		t.Error("mov src1, dst; add src2, dst clobbers src2 when dst aliases it")
	}
	if add.Clobbers(ArgSrc1) {
		t.Error("src1 is read before the destination is written")
	}
}

func TestCoverage(t *testing.T) {
	s := NewSet()
	s.Add(RI3, rtl.OpNone, RI3, NTNone, 0)
	s.Add(RI3, rtl.OpMove, RI3, NTNone, 1, Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "movl\t%v1, %vd"))
	s.MarkUsed(s.Rules()[1])
	s.MarkUsed(s.Rules()[1])

	used, total := s.Coverage()
	if used != 1 || total != 2 {
		t.Errorf("Coverage() = %d/%d, want 1/2", used, total)
	}
	if unused := s.Unused(); len(unused) != 1 || unused[0].Index != 0 {
		t.Errorf("Unused() = %v", unused)
	}

	var buf bytes.Buffer
	s.Fprint(&buf)
	if !strings.Contains(buf.String(), "movl %v1, %vd") {
		t.Errorf("listing missing template:\n%s", buf.String())
	}
}

func TestEveryComparisonHasAFlagForm(t *testing.T) {
	for _, op := range []rtl.Op{rtl.OpEq, rtl.OpNe, rtl.OpLt, rtl.OpGt, rtl.OpLe, rtl.OpGe} {
		found := false
		for _, r := range Default().ForOp(op) {
			if r.Dst.IsCC() {
				found = true
			}
		}
		if !found {
			t.Errorf("%s has no flags-only rule", op)
		}
	}
}
