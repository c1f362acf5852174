// Package abi implements the System V x86-64 parameter passing rules: it
// classifies parameter, argument and return types into integer registers,
// SSE registers or stack slots and rewrites function entry, returns, call
// sites and variadic argument access into explicit moves.
package abi

import (
	"fmt"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// Register counts available for passing arguments and returning values.
const (
	IntArgRegisters    = 6
	SSEArgRegisters    = 8
	IntReturnRegisters = 2
	SSEReturnRegisters = 2
)

// Class is the eightbyte classification.
type Class int

const (
	ClassNone Class = iota
	ClassInteger
	ClassSSE
	ClassMemory
)

func (c Class) String() string {
	switch c {
	case ClassInteger:
		return "INTEGER"
	case ClassSSE:
		return "SSE"
	case ClassMemory:
		return "MEMORY"
	}
	return "NONE"
}

// Location places one scalar or one eightbyte of an aggregate. Unused fields
// are -1.
type Location struct {
	IntRegister int
	SSERegister int
	// StackOffset is the byte offset in the stack argument area.
	StackOffset  int64
	StackPadding int64
	// StructOffset, StructSize and StructMemberCount describe the eightbyte
	// window of an aggregate passed in a register.
	StructOffset      int64
	StructSize        int64
	StructMemberCount int
}

func newLocation() Location {
	return Location{IntRegister: -1, SSERegister: -1, StackOffset: -1, StackPadding: -1, StructOffset: -1, StructSize: -1}
}

// OnStack reports whether the location is a stack slot.
func (l Location) OnStack() bool { return l.StackOffset >= 0 }

func (l Location) String() string {
	switch {
	case l.IntRegister >= 0:
		return fmt.Sprintf("int%d", l.IntRegister)
	case l.SSERegister >= 0:
		return fmt.Sprintf("sse%d", l.SSERegister)
	case l.StackOffset >= 0:
		return fmt.Sprintf("stack+%d", l.StackOffset)
	}
	return "none"
}

// ParamLocations is where one parameter goes: a single location for a
// scalar or a stack-passed aggregate, one location per eightbyte for an
// aggregate passed in registers.
type ParamLocations struct {
	Type ctypes.Type
	Locs []Location
}

// InRegisters reports whether every part of the value travels in registers.
func (p *ParamLocations) InRegisters() bool {
	for _, l := range p.Locs {
		if l.OnStack() {
			return false
		}
	}
	return len(p.Locs) > 0
}

// OnStack reports whether the value is passed in the stack argument area.
func (p *ParamLocations) OnStack() bool {
	return len(p.Locs) == 1 && p.Locs[0].OnStack()
}

type counters struct {
	IntRegs          int
	SSERegs          int
	BiggestAlignment int64
	Offset           int64
}

// Allocation accumulates parameter placement for one call or definition.
type Allocation struct {
	counters
	MaxIntRegs int
	MaxSSERegs int
	Params     []*ParamLocations
}

// NewAllocation returns an allocation for arguments.
func NewAllocation() *Allocation {
	return &Allocation{MaxIntRegs: IntArgRegisters, MaxSSERegs: SSEArgRegisters, counters: counters{BiggestAlignment: 8}}
}

func (a *Allocation) snapshot() counters { return a.counters }

func (a *Allocation) restore(c counters) { a.counters = c }

// ReserveIntRegister consumes the next integer register, for the hidden
// return pointer.
func (a *Allocation) ReserveIntRegister() int {
	r := a.IntRegs
	a.IntRegs++
	return r
}

// Add classifies the next parameter of type t.
func (a *Allocation) Add(t ctypes.Type) *ParamLocations {
	p := &ParamLocations{Type: t}
	a.Params = append(a.Params, p)

	switch {
	case ctypes.IsAggregate(t):
		if classes := Classify(t); classes != nil {
			saved := a.snapshot()
			if locs, ok := a.registers(t, classes); ok {
				p.Locs = locs
				return p
			}
			// No splitting of one aggregate across registers and stack.
			a.restore(saved)
		}
		if ctypes.Sizeof(t) == 0 {
			return p
		}
	case ctypes.IsSSE(t):
		if a.SSERegs < a.MaxSSERegs {
			l := newLocation()
			l.SSERegister = a.SSERegs
			a.SSERegs++
			p.Locs = []Location{l}
			return p
		}
	case ctypes.IsLongDouble(t):
	case ctypes.FitsInSingleIntRegister(t):
		if a.IntRegs < a.MaxIntRegs {
			l := newLocation()
			l.IntRegister = a.IntRegs
			a.IntRegs++
			p.Locs = []Location{l}
			return p
		}
	}
	p.Locs = []Location{a.stack(t)}
	return p
}

// AddStack places the next parameter on the stack regardless of registers.
func (a *Allocation) AddStack(t ctypes.Type) *ParamLocations {
	p := &ParamLocations{Type: t, Locs: []Location{a.stack(t)}}
	a.Params = append(a.Params, p)
	return p
}

func (a *Allocation) registers(t ctypes.Type, classes []Class) ([]Location, bool) {
	size := ctypes.Sizeof(t)
	members := eightbyteMembers(t)
	locs := make([]Location, len(classes))
	for i, c := range classes {
		l := newLocation()
		l.StructOffset = int64(i) * 8
		l.StructSize = size - l.StructOffset
		if l.StructSize > 8 {
			l.StructSize = 8
		}
		l.StructMemberCount = members[i]
		switch c {
		case ClassSSE:
			if a.SSERegs >= a.MaxSSERegs {
				return nil, false
			}
			l.SSERegister = a.SSERegs
			a.SSERegs++
		default:
			if a.IntRegs >= a.MaxIntRegs {
				return nil, false
			}
			l.IntRegister = a.IntRegs
			a.IntRegs++
		}
		locs[i] = l
	}
	return locs, true
}

func (a *Allocation) stack(t ctypes.Type) Location {
	align := ctypes.Alignof(t)
	if align < 8 {
		align = 8
	}
	l := newLocation()
	aligned := alignUp(a.Offset, align)
	l.StackPadding = aligned - a.Offset
	l.StackOffset = aligned
	a.Offset = aligned + alignUp(ctypes.Sizeof(t), 8)
	if align > a.BiggestAlignment {
		a.BiggestAlignment = align
	}
	return l
}

// Finalize rounds the stack argument area to the biggest alignment seen and
// returns its size.
func (a *Allocation) Finalize() int64 {
	a.Offset = alignUp(a.Offset, a.BiggestAlignment)
	return a.Offset
}

// StackSize returns the current size of the stack argument area.
func (a *Allocation) StackSize() int64 { return a.Offset }

// Classify returns the class of each eightbyte of an aggregate that can be
// passed in registers, or nil when it must go in memory: larger than 16
// bytes, containing a long double, or with a member that is misaligned or
// straddles an eightbyte boundary.
func Classify(t ctypes.Type) []Class {
	size := ctypes.Sizeof(t)
	if size > 16 || size == 0 {
		return nil
	}
	classes := make([]Class, (size+7)/8)
	for _, s := range ctypes.Flatten(t) {
		if ctypes.IsLongDouble(s.Type) {
			return nil
		}
		sz := ctypes.Sizeof(s.Type)
		if sz == 0 {
			continue
		}
		if s.Offset%ctypes.Alignof(s.Type) != 0 || s.Offset/8 != (s.Offset+sz-1)/8 {
			return nil
		}
		c := ClassInteger
		if ctypes.IsSSE(s.Type) {
			c = ClassSSE
		}
		i := s.Offset / 8
		if classes[i] != ClassInteger {
			classes[i] = c
		}
	}
	for i, c := range classes {
		if c == ClassNone {
			classes[i] = ClassInteger
		}
	}
	return classes
}

func eightbyteMembers(t ctypes.Type) []int {
	counts := make([]int, (ctypes.Sizeof(t)+7)/8)
	for _, s := range ctypes.Flatten(t) {
		if i := s.Offset / 8; int(i) < len(counts) {
			counts[i]++
		}
	}
	return counts
}

// ClassifyReturn places a return value of type t in the result registers.
// It returns nil for values returned in memory through a hidden pointer and
// for void.
func ClassifyReturn(t ctypes.Type) *ParamLocations {
	if t == nil {
		return nil
	}
	if _, ok := t.(ctypes.Tvoid); ok {
		return nil
	}
	if ctypes.IsAggregate(t) && Classify(t) == nil {
		return nil
	}
	a := &Allocation{MaxIntRegs: IntReturnRegisters, MaxSSERegs: SSEReturnRegisters}
	p := a.Add(t)
	if !p.InRegisters() {
		return nil
	}
	return p
}

// ReturnsInMemory reports whether values of type t are returned through a
// hidden pointer.
func ReturnsInMemory(t ctypes.Type) bool {
	return ctypes.IsAggregate(t) && ClassifyReturn(t) == nil
}

// IntRegister returns the physical integer argument register of a location.
func IntRegister(l Location) x86.Reg { return x86.IntArgRegs[l.IntRegister] }

// SSERegister returns the physical SSE argument register of a location.
func SSERegister(l Location) x86.Reg { return x86.SSEArgRegs[l.SSERegister] }

func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
