package x86

// Live-range pseudo-registers. Virtual register ids 1..PseudoCount are
// reserved: each one is bound to a fixed allocatable physical register and is
// pre-colored by the allocator. Argument, return and fixed-operand values are
// routed through them so that the interference analysis sees those registers
// as ordinary live ranges.
const (
	PseudoRAX = iota + 1
	PseudoRBX
	PseudoRCX
	PseudoRDX
	PseudoRSI
	PseudoRDI
	PseudoR8
	PseudoR9
	PseudoR12
	PseudoR13
	PseudoR14
	PseudoR15 // 12

	PseudoXMM0 // 13
)

// PseudoIntCount and PseudoSSECount size the two reserved ranges.
const (
	PseudoIntCount = 12
	PseudoSSECount = 14
	PseudoCount    = PseudoIntCount + PseudoSSECount
)

var pseudoInt = []Reg{RAX, RBX, RCX, RDX, RSI, RDI, R8, R9, R12, R13, R14, R15}

// PseudoReg returns the physical register bound to pseudo-register vreg, or
// NoReg if vreg is not reserved.
func PseudoReg(vreg int) Reg {
	switch {
	case vreg >= PseudoRAX && vreg <= PseudoR15:
		return pseudoInt[vreg-PseudoRAX]
	case vreg >= PseudoXMM0 && vreg < PseudoXMM0+PseudoSSECount:
		return XMM0 + Reg(vreg-PseudoXMM0)
	}
	return NoReg
}

// PseudoFor returns the pseudo-register bound to r, or 0 if r has none.
func PseudoFor(r Reg) int {
	if r >= XMM0 && r < XMM0+PseudoSSECount {
		return PseudoXMM0 + int(r-XMM0)
	}
	for i, p := range pseudoInt {
		if p == r {
			return PseudoRAX + i
		}
	}
	return 0
}

// IsPseudo reports whether vreg is a reserved live-range pseudo-register.
func IsPseudo(vreg int) bool {
	return vreg >= 1 && vreg <= PseudoCount
}

// CallerSavedPseudos lists the pseudo-registers whose values do not survive a
// call.
func CallerSavedPseudos() []int {
	out := []int{PseudoRAX, PseudoRCX, PseudoRDX, PseudoRSI, PseudoRDI, PseudoR8, PseudoR9}
	for i := 0; i < PseudoSSECount; i++ {
		out = append(out, PseudoXMM0+i)
	}
	return out
}
