package regalloc

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// newFunction returns a function defining n long registers with constants.
func newFunction(n int) (*rtl.Function, []int) {
	fn := rtl.NewFunction("f", ctypes.Long())
	var vs []int
	for i := 0; i < n; i++ {
		v := fn.NewVReg(ctypes.Long())
		vs = append(vs, v.VReg)
		fn.Emit(rtl.XMov, v, rtl.NewConst(int64(i), ctypes.Long()), nil)
	}
	return fn, vs
}

func mustAllocate(t *testing.T, fn *rtl.Function, an *Analysis, opts Options) *Result {
	t.Helper()
	res, err := Allocate(fn, an, opts)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	return res
}

func TestAllocateSpillsCheapestWhenBudgetIsFull(t *testing.T) {
	fn, vs := newFunction(3)
	w, v1, v2 := vs[0], vs[1], vs[2]
	an := NewAnalysis(fn.VRegCount + 1)
	an.Graph.AddEdge(w, v1)
	an.Graph.AddEdge(w, v2)
	an.Graph.AddEdge(v1, v2)
	an.SpillCost[w], an.SpillCost[v1], an.SpillCost[v2] = 10, 5, 1

	res := mustAllocate(t, fn, an, Options{IntRegisters: 2})
	if len(res.Spilled) != 1 || res.Spilled[0] != v2 {
		t.Fatalf("expected only r%d spilled, got %v", v2, res.Spilled)
	}
	lw, l1 := res.Locations[w], res.Locations[v1]
	if lw.Spilled || l1.Spilled || lw.Reg == l1.Reg {
		t.Errorf("interfering registers share a location: %v %v", lw, l1)
	}
	for _, l := range []Location{lw, l1} {
		if l.Reg != x86.RAX && l.Reg != x86.RBX {
			t.Errorf("%v is outside a budget of two", l)
		}
	}
	if !res.Locations[v2].Spilled || res.Locations[v2].StackIndex >= 0 {
		t.Errorf("expected a local slot for r%d, got %v", v2, res.Locations[v2])
	}
}

func TestAllocateRespectsBudget(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		k := 1 + r.Intn(4)
		fn, vs := newFunction(10)
		an := NewAnalysis(fn.VRegCount + 1)
		for i := range vs {
			an.SpillCost[vs[i]] = r.Intn(20)
			for j := 0; j < i; j++ {
				if r.Intn(10) < 4 {
					an.Graph.AddEdge(vs[i], vs[j])
				}
			}
		}
		res := mustAllocate(t, fn, an, Options{IntRegisters: k})
		allowed := make(map[x86.Reg]bool)
		for _, reg := range x86.Allocatable(x86.ClassInt)[:k] {
			allowed[reg] = true
		}
		for _, v := range vs {
			lv := res.Locations[v]
			held := make(map[x86.Reg]bool)
			for _, u := range an.Graph.Neighbors(v) {
				lu := res.Locations[u]
				if lu.Spilled {
					continue
				}
				held[lu.Reg] = true
				if !lv.Spilled && lu.Reg == lv.Reg {
					t.Fatalf("round %d: r%d and r%d interfere and share %v", round, u, v, lv)
				}
			}
			switch {
			case lv.Spilled && len(held) < k:
				t.Errorf("round %d: r%d spilled with only %d of %d colors taken", round, v, len(held), k)
			case !lv.Spilled && !allowed[lv.Reg]:
				t.Errorf("round %d: r%d got %v outside the budget", round, v, lv)
			}
		}
	}
}

func TestSpillReusesIncomingSlot(t *testing.T) {
	fn := rtl.NewFunction("f", ctypes.Long())
	w := fn.NewVReg(ctypes.Long())
	p := fn.NewVReg(ctypes.Long())
	p.OriginalStackIndex = 3
	fn.Emit(rtl.XMov, w, rtl.NewConst(1, ctypes.Long()), nil)
	fn.Emit(rtl.XMov, p, rtl.NewStack(3, ctypes.Long()), nil)
	fn.Emit(rtl.XAdd, w, p, w)

	an := NewAnalysis(fn.VRegCount + 1)
	an.Graph.AddEdge(w.VReg, p.VReg)
	an.SpillCost[w.VReg], an.SpillCost[p.VReg] = 3, 2

	res := mustAllocate(t, fn, an, Options{IntRegisters: 1})
	got := res.Locations[p.VReg]
	if !got.Spilled || got.StackIndex != 3 {
		t.Fatalf("expected r%d in its incoming slot 3, got %v", p.VReg, got)
	}
	if fn.StackSlots != 0 {
		t.Errorf("expected no new slot, frame has %d", fn.StackSlots)
	}
	// The reload from its own slot is gone.
	if res.RemovedMoves != 1 || fn.Code.Len() != 2 {
		t.Errorf("expected the reload removed, %d removed, %d left", res.RemovedMoves, fn.Code.Len())
	}
}

func TestAllocateHints(t *testing.T) {
	tests := []struct {
		name   string
		clash  bool
		expect x86.Reg
	}{
		{"free", false, x86.RDI},
		{"taken by a neighbor", true, x86.RAX},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, vs := newFunction(1)
			an := NewAnalysis(fn.VRegCount + 1)
			an.Preferred[vs[0]] = x86.PseudoRDI
			if tt.clash {
				an.Graph.AddEdge(vs[0], x86.PseudoRDI)
			}
			res := mustAllocate(t, fn, an, Options{})
			if got := res.Locations[vs[0]].Reg; got != tt.expect {
				t.Errorf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestAllocateIgnoresHintsWhenDisabled(t *testing.T) {
	fn, vs := newFunction(1)
	an := NewAnalysis(fn.VRegCount + 1)
	an.Preferred[vs[0]] = x86.PseudoR9
	res := mustAllocate(t, fn, an, Options{NoPreferred: true})
	if got := res.Locations[vs[0]].Reg; got != x86.RAX {
		t.Errorf("expected the lowest color, got %v", got)
	}
}

func TestPseudoRegistersArePrecolored(t *testing.T) {
	fn := rtl.NewFunction("f", ctypes.Double())
	fn.Emit(rtl.XMov, rtl.NewVReg(x86.PseudoRCX, ctypes.Long()), rtl.NewConst(1, ctypes.Long()), nil)
	fn.Emit(rtl.XMov, rtl.NewVReg(x86.PseudoXMM0+2, ctypes.Double()), rtl.NewFConst(1, ctypes.Double()), nil)

	mustAllocate(t, fn, NewAnalysis(fn.VRegCount+1), Options{IntRegisters: 2, SSERegisters: 1})
	code := fn.Code.Instrs()
	if got := code[0].Dst.PReg; got != x86.RCX {
		t.Errorf("expected rcx, got %v", got)
	}
	if got := code[1].Dst.PReg; got != x86.XMM2 {
		t.Errorf("expected xmm2, got %v", got)
	}
}

func TestSSEColorsAreSeparate(t *testing.T) {
	fn := rtl.NewFunction("f", ctypes.Double())
	i := fn.NewVReg(ctypes.Long())
	d := fn.NewVReg(ctypes.Double())
	fn.Emit(rtl.XMov, i, rtl.NewConst(1, ctypes.Long()), nil)
	fn.Emit(rtl.XCvt, d, i, nil)
	an := NewAnalysis(fn.VRegCount + 1)
	an.Graph.AddEdge(i.VReg, d.VReg)

	res := mustAllocate(t, fn, an, Options{IntRegisters: 1, SSERegisters: 1})
	if res.Locations[i.VReg].Reg != x86.RAX || res.Locations[d.VReg].Reg != x86.XMM0 {
		t.Errorf("unexpected locations %v %v", res.Locations[i.VReg], res.Locations[d.VReg])
	}
	if len(res.Spilled) != 0 {
		t.Errorf("unexpected spills %v", res.Spilled)
	}
}

func TestSelfMovesRemoved(t *testing.T) {
	fn := rtl.NewFunction("f", ctypes.Long())
	v := fn.NewVReg(ctypes.Long())
	rax := rtl.NewVReg(x86.PseudoRAX, ctypes.Long())
	in := rtl.New(rtl.XMov, v, rax, nil)
	in.Label = 4
	fn.Code.Append(in)
	fn.Emit(rtl.XAdd, v, rtl.NewConst(1, ctypes.Long()), v)
	fn.Emit(rtl.XMov, rax, v, nil)
	fn.Emit(rtl.XRet, nil, rax, nil)

	an := NewAnalysis(fn.VRegCount + 1)
	an.Preferred[v.VReg] = x86.PseudoRAX
	res := mustAllocate(t, fn, an, Options{})

	if res.RemovedMoves != 2 {
		t.Fatalf("expected 2 moves removed, got %d", res.RemovedMoves)
	}
	code := fn.Code.Instrs()
	want := []rtl.Op{rtl.OpNop, rtl.XAdd, rtl.XRet}
	if len(code) != len(want) {
		t.Fatalf("expected %d instructions, got %d", len(want), len(code))
	}
	for i, op := range want {
		if code[i].Op != op {
			t.Errorf("instr %d: expected %v, got %v", i, op, code[i].Op)
		}
	}
	if code[0].Label != 4 {
		t.Errorf("label lost")
	}
	if code[1].Dst.PReg != x86.RAX {
		t.Errorf("add writes %v", code[1].Dst.PReg)
	}
}

func TestAllocateRejectsBadBudget(t *testing.T) {
	fn, _ := newFunction(1)
	_, err := Allocate(fn, NewAnalysis(fn.VRegCount+1), Options{IntRegisters: 13})
	if !errors.Is(err, ErrBudget) {
		t.Errorf("expected ErrBudget, got %v", err)
	}
	if _, err := Allocate(fn, NewAnalysis(2), Options{}); err == nil {
		t.Errorf("expected an error for a graph smaller than the function")
	}
}

func TestGraph(t *testing.T) {
	g := NewGraph(40)
	g.AddEdge(3, 39)
	g.AddEdge(39, 3)
	g.AddEdge(5, 5)
	g.AddEdge(0, 1)
	if !g.Interferes(39, 3) || !g.Interferes(3, 39) {
		t.Errorf("edge 3-39 missing")
	}
	if g.Interferes(5, 5) {
		t.Errorf("self edge recorded")
	}
	if got := g.Neighbors(3); len(got) != 1 || got[0] != 39 {
		t.Errorf("neighbors of 3 = %v", got)
	}
	if g.Degree(1) != 1 || g.Degree(2) != 0 {
		t.Errorf("unexpected degrees %d %d", g.Degree(1), g.Degree(2))
	}
}
