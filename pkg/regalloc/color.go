// Package regalloc assigns every virtual register a physical register or a
// stack slot. Coloring runs top-down once per register class over the
// interference graph; the live-range pseudo-registers are pre-colored.
package regalloc

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// ErrBudget reports a register budget the machine cannot provide.
var ErrBudget = errors.New("register budget out of range")

// Options configures allocation.
type Options struct {
	Logger *zap.Logger
	// IntRegisters and SSERegisters bound the colors used for general
	// coloring. Zero means every allocatable register of the class.
	IntRegisters int
	SSERegisters int
	// NoPreferred ignores the preferred-register hints.
	NoPreferred bool
}

// Location is where a virtual register lives.
type Location struct {
	Reg        x86.Reg
	StackIndex int
	Spilled    bool
}

func (l Location) String() string {
	if l.Spilled {
		return fmt.Sprintf("S[%d]", l.StackIndex)
	}
	return "%" + l.Reg.Name(8)
}

// Result holds the outcome of allocation.
type Result struct {
	Locations map[int]Location
	// Spilled lists the spilled registers in the order they were spilled.
	Spilled []int
	// RemovedMoves counts the self-moves deleted.
	RemovedMoves int
}

// vregInfo is what the function's operands say about one virtual register.
type vregInfo struct {
	typ         ctypes.Type
	class       x86.Class
	originStack int
	preferred   int
}

// Allocator colors one function.
type Allocator struct {
	fn     *rtl.Function
	an     *Analysis
	opts   Options
	log    *zap.Logger
	info   map[int]*vregInfo
	colors map[int]int
	result *Result
}

// NewAllocator prepares allocation of fn from the facts in an.
func NewAllocator(fn *rtl.Function, an *Analysis, opts Options) (*Allocator, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	for _, b := range []struct {
		class x86.Class
		n     int
	}{{x86.ClassInt, opts.IntRegisters}, {x86.ClassSSE, opts.SSERegisters}} {
		if b.n < 0 || b.n > len(x86.Allocatable(b.class)) {
			return nil, fmt.Errorf("%w: %d %s registers", ErrBudget, b.n, b.class)
		}
	}
	if an.Graph.Size() <= fn.VRegCount {
		return nil, fmt.Errorf("interference graph covers %d registers, function has %d", an.Graph.Size()-1, fn.VRegCount)
	}
	a := &Allocator{
		fn:     fn,
		an:     an,
		opts:   opts,
		log:    log.With(zap.String("function", fn.Name)),
		info:   collect(fn),
		colors: make(map[int]int),
		result: &Result{Locations: make(map[int]Location)},
	}
	return a, nil
}

// collect scans the operands of fn for the type, class, incoming stack slot
// and hint of every virtual register.
func collect(fn *rtl.Function) map[int]*vregInfo {
	info := make(map[int]*vregInfo)
	for _, id := range fn.Code.IDs() {
		for _, o := range fn.Code.At(id).Operands() {
			if o.Kind != rtl.VReg {
				continue
			}
			vi := info[o.VReg]
			if vi == nil {
				vi = &vregInfo{typ: o.Type, class: o.Class()}
				info[o.VReg] = vi
			}
			if o.OriginalStackIndex != 0 {
				vi.originStack = o.OriginalStackIndex
			}
			if o.Preferred != 0 && vi.preferred == 0 {
				vi.preferred = o.Preferred
			}
		}
	}
	return info
}

func (a *Allocator) budget(c x86.Class) int {
	n := a.opts.IntRegisters
	if c == x86.ClassSSE {
		n = a.opts.SSERegisters
	}
	if n == 0 {
		n = len(x86.Allocatable(c))
	}
	return n
}

// hint returns the register v would like to share a color with.
func (a *Allocator) hint(v int) int {
	if a.opts.NoPreferred {
		return 0
	}
	if v < len(a.an.Preferred) && a.an.Preferred[v] != 0 {
		return a.an.Preferred[v]
	}
	if vi := a.info[v]; vi != nil {
		return vi.preferred
	}
	return 0
}

// Allocate colors every register, writes the locations into the operands of
// the function and removes the self-moves that result.
func (a *Allocator) Allocate() *Result {
	a.precolor()
	for _, c := range []x86.Class{x86.ClassInt, x86.ClassSSE} {
		a.colorClass(c)
	}
	a.assignLocations()
	a.result.RemovedMoves = a.removeSelfMoves()
	return a.result
}

// precolor binds each live-range pseudo-register to its own physical register.
func (a *Allocator) precolor() {
	for v := 1; v <= x86.PseudoCount; v++ {
		r := x86.PseudoReg(v)
		for i, ar := range x86.Allocatable(r.Class()) {
			if ar == r {
				a.colors[v] = i
			}
		}
	}
}

// classDegree counts the neighbors of v competing for the same registers.
func (a *Allocator) classDegree(v int, c x86.Class) int {
	n := 0
	for _, u := range a.an.Graph.Neighbors(v) {
		if a.classOf(u) == c {
			n++
		}
	}
	return n
}

func (a *Allocator) classOf(v int) x86.Class {
	if x86.IsPseudo(v) {
		return x86.PseudoReg(v).Class()
	}
	if vi := a.info[v]; vi != nil {
		return vi.class
	}
	return x86.ClassNone
}

// tiers splits the registers of class c into constrained, preferred and
// unconstrained, each by descending spill cost.
func (a *Allocator) tiers(c x86.Class) [3][]int {
	var t [3][]int
	k := a.budget(c)
	for v := x86.PseudoCount + 1; v <= a.fn.VRegCount; v++ {
		if a.classOf(v) != c {
			continue
		}
		switch {
		case a.classDegree(v, c) >= k:
			t[0] = append(t[0], v)
		case a.hint(v) != 0:
			t[1] = append(t[1], v)
		default:
			t[2] = append(t[2], v)
		}
	}
	for i := range t {
		vs := t[i]
		sort.SliceStable(vs, func(x, y int) bool {
			return a.an.SpillCost[vs[x]] > a.an.SpillCost[vs[y]]
		})
	}
	return t
}

func (a *Allocator) colorClass(c x86.Class) {
	t := a.tiers(c)
	a.log.Debug("coloring", zap.Stringer("class", c), zap.Int("budget", a.budget(c)),
		zap.Int("constrained", len(t[0])), zap.Int("preferred", len(t[1])), zap.Int("unconstrained", len(t[2])))
	for _, tier := range t {
		for _, v := range tier {
			a.color(v, c)
		}
	}
}

// color gives v the hinted color or the lowest free one, or spills it when
// its neighbors hold every color of the budget.
func (a *Allocator) color(v int, c x86.Class) {
	k := a.budget(c)
	used := make(map[int]bool)
	for _, u := range a.an.Graph.Neighbors(v) {
		if a.classOf(u) != c {
			continue
		}
		if col, ok := a.colors[u]; ok && col < k {
			used[col] = true
		}
	}
	if len(used) >= k {
		a.spill(v)
		return
	}
	if h := a.hint(v); h != 0 {
		if col, ok := a.colors[h]; ok && col < k && !used[col] {
			a.colors[v] = col
			a.log.Debug("hinted", zap.Int("vreg", v), zap.Int("hint", h), zap.Int("color", col))
			return
		}
	}
	for col := 0; col < k; col++ {
		if !used[col] {
			a.colors[v] = col
			return
		}
	}
	rtl.Panicf("regalloc", nil, "no color for r%d with %d of %d colors used", v, len(used), k)
}

// spill puts v in memory: back in its incoming stack slot when it has one,
// otherwise in a fresh local slot.
func (a *Allocator) spill(v int) {
	vi := a.info[v]
	var idx int
	if vi.originStack != 0 {
		idx = vi.originStack
	} else {
		typ := vi.typ
		if typ == nil || ctypes.Sizeof(typ) <= 0 {
			typ = ctypes.Long()
		}
		idx = a.fn.AllocateSlot(typ).StackIndex
	}
	a.result.Locations[v] = Location{Reg: x86.NoReg, StackIndex: idx, Spilled: true}
	a.result.Spilled = append(a.result.Spilled, v)
	a.log.Debug("spilled", zap.Int("vreg", v), zap.Int("slot", idx), zap.Int("cost", a.an.SpillCost[v]))
}

// Allocate runs the allocator over fn. The only error is an invalid
// configuration; a failure to color is an internal error panic.
func Allocate(fn *rtl.Function, an *Analysis, opts Options) (*Result, error) {
	a, err := NewAllocator(fn, an, opts)
	if err != nil {
		return nil, err
	}
	return a.Allocate(), nil
}
