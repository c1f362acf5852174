package rules

import (
	"fmt"
	"sync"

	"github.com/raymyers/ralph-cg/pkg/rtl"
)

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// Default returns the x86-64 rule set, built on first use.
func Default() *Set {
	defaultOnce.Do(func() { defaultSet = X86() })
	return defaultSet
}

// Costs of the main instruction groups.
const (
	costMove  = 1
	costLoad  = 2
	costStore = 2
	costAdd   = 10
	costMul   = 30
	costDiv   = 50
	costShift = 10
	costCmp   = 15
	costJump  = 5
	costCall  = 5
	costFAdd  = 10
	costFMul  = 20
	costFDiv  = 40

	// A signedness reinterpretation emits nothing but costs more than any
	// sign-correct sequence, so unsigned values only take signed rules
	// when nothing else matches.
	costReinterpret = 20
)

// X86 builds the x86-64 rule set.
func X86() *Set {
	s := NewSet()
	addLeafRules(s)
	addMoveRules(s)
	addFloatMoveRules(s)
	addPointerRules(s)
	addIntegerRules(s)
	addFloatRules(s)
	addComparisonRules(s)
	addJumpRules(s)
	addCallRules(s)
	return s
}

func intFamilies() []NT { return []NT{FamRI, FamRU} }

func memFamily(reg NT) NT {
	if reg == FamRU {
		return FamMU
	}
	return FamMI
}

func regOf(fam NT, size int) NT { return Fin(fam, size) }

func unsignedFam(fam NT) bool { return fam == FamRU || fam == FamMU }

// extendTemplate returns the move widening a register of size from to size
// to, sign- or zero-extending by the source signedness.
func extendTemplate(from, to int, signed bool) (rtl.Op, string) {
	f, t := SizeLetter(from), SizeLetter(to)
	switch {
	case signed:
		return rtl.XMovs, fmt.Sprintf("movs%c%c\t%%v1%c, %%vd%c", f, t, f, t)
	case from == 3:
		// 32-bit writes clear the upper half.
		return rtl.XMovz, "movl\t%v1l, %vdl"
	}
	return rtl.XMovz, fmt.Sprintf("movz%c%c\t%%v1%c, %%vd%c", f, t, f, t)
}

func constLoadTemplate(size int) string {
	if size == 4 {
		return "movabsq\t$%v1q, %vdq"
	}
	return ExpandTemplate("mov%s\t$%v1, %vd", size)
}

func floatSuffix(n NT) string {
	if n == RS3 || n == MS3 || n == CS3 {
		return "ss"
	}
	return "sd"
}

func addLeafRules(s *Set) {
	for n := STL; n <= MSA; n++ {
		s.Add(n, rtl.OpNone, n, NTNone, 0)
	}

	for size := 1; size <= 4; size++ {
		tmpl := constLoadTemplate(size)
		for _, dst := range intFamilies() {
			for _, src := range []NT{FamCI, FamCU} {
				s.Add(regOf(dst, size), rtl.OpNone, Fin(src, size), NTNone, costMove,
					Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
			}
		}
	}

	for size := 1; size <= 4; size++ {
		load := ExpandTemplate("mov%s\t%v1, %vd", size)
		for _, dst := range intFamilies() {
			for _, src := range []NT{FamMI, FamMU} {
				s.Add(regOf(dst, size), rtl.OpNone, Fin(src, size), NTNone, costLoad,
					Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, load))
			}
		}
	}

	// Widening, from registers and from memory.
	for from := 1; from <= 3; from++ {
		for to := from + 1; to <= 4; to++ {
			for _, srcFam := range intFamilies() {
				op, tmpl := extendTemplate(from, to, !unsignedFam(srcFam))
				for _, dstFam := range intFamilies() {
					s.Add(regOf(dstFam, to), rtl.OpNone, regOf(srcFam, from), NTNone, costMove,
						Emit(op, ArgDst, ArgSrc1, ArgNone, tmpl))
					s.Add(regOf(dstFam, to), rtl.OpNone, Fin(memFamily(srcFam), from), NTNone, costLoad,
						Emit(op, ArgDst, ArgSrc1, ArgNone, tmpl))
				}
			}
		}
	}

	// Same register reinterpreted.
	for size := 1; size <= 4; size++ {
		s.Add(Fin(FamRU, size), rtl.OpNone, Fin(FamRI, size), NTNone, costReinterpret)
		s.Add(Fin(FamRI, size), rtl.OpNone, Fin(FamRU, size), NTNone, costReinterpret)
	}
	for rp := RP1; rp <= RP5; rp++ {
		s.Add(rp, rtl.OpNone, RU4, NTNone, 0)
		s.Add(rp, rtl.OpNone, RI4, NTNone, 0)
		s.Add(rp, rtl.OpNone, MPV, NTNone, costLoad,
			Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "movq\t%v1, %vdq"))
		s.Add(rp, rtl.OpNone, STL, NTNone, costMove,
			Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1, %vdq"))
	}
	s.Add(RU4, rtl.OpNone, STL, NTNone, costMove,
		Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1, %vdq"))
	s.Add(RU4, rtl.OpNone, FUN, NTNone, costMove,
		Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1(%%rip), %vdq"))

	// Floats load from memory; float constants go through an integer
	// register.
	for _, p := range [][2]NT{{RS3, MS3}, {RS4, MS4}} {
		s.Add(p[0], rtl.OpNone, p[1], NTNone, costLoad,
			Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov"+floatSuffix(p[0])+"\t%v1, %vd"))
	}
	s.Add(RS3, rtl.OpNone, CS3, NTNone, costMove+costMove,
		Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movl\t$%v1F, %vdl"),
		Emit(rtl.XMovPregClass, ArgDst, ArgSlot1, ArgNone, "movd\t%v1l, %vd"))
	s.Add(RS4, rtl.OpNone, CS4, NTNone, costMove+costMove,
		Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movabsq\t$%v1F, %vdq"),
		Emit(rtl.XMovPregClass, ArgDst, ArgSlot1, ArgNone, "movq\t%v1q, %vd"))
}

func addMoveRules(s *Set) {
	mov := Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov%s\t%v1, %vd")

	for _, fam := range intFamilies() {
		s.Add(fam, rtl.OpMove, fam, NTNone, costMove, mov)
		s.Add(fam, rtl.OpMove, memFamily(fam), NTNone, costLoad, mov)
		s.Add(memFamily(fam), rtl.OpMove, fam, NTNone, costStore, mov)
		s.Add(memFamily(fam), rtl.OpMove, FamCIimm, NTNone, costStore,
			Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov%s\t$%v1, %vd"))
	}
	// Cross-signedness memory moves of the same width.
	s.Add(FamRI, rtl.OpMove, FamMU, NTNone, costLoad, mov)
	s.Add(FamRU, rtl.OpMove, FamMI, NTNone, costLoad, mov)
	s.Add(FamMI, rtl.OpMove, FamRU, NTNone, costStore, mov)
	s.Add(FamMU, rtl.OpMove, FamRI, NTNone, costStore, mov)

	for size := 1; size <= 4; size++ {
		tmpl := constLoadTemplate(size)
		for _, dst := range intFamilies() {
			for _, src := range []NT{FamCI, FamCU} {
				s.Add(regOf(dst, size), rtl.OpMove, Fin(src, size), NTNone, costMove,
					Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
			}
		}
	}

	for from := 1; from <= 4; from++ {
		for to := 1; to <= 4; to++ {
			if from == to {
				continue
			}
			for _, srcFam := range intFamilies() {
				for _, dstFam := range intFamilies() {
					if from < to {
						op, tmpl := extendTemplate(from, to, !unsignedFam(srcFam))
						s.Add(regOf(dstFam, to), rtl.OpMove, regOf(srcFam, from), NTNone, costMove,
							Emit(op, ArgDst, ArgSrc1, ArgNone, tmpl))
						continue
					}
					// Narrowing keeps the low bytes.
					l := SizeLetter(to)
					tmpl := fmt.Sprintf("mov%c\t%%v1%c, %%vd%c", l, l, l)
					s.Add(regOf(dstFam, to), rtl.OpMove, regOf(srcFam, from), NTNone, costMove,
						Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
					s.Add(Fin(memFamily(dstFam), to), rtl.OpMove, regOf(srcFam, from), NTNone, costStore,
						Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
				}
			}
		}
	}

	s.Add(RU4, rtl.OpMove, STL, NTNone, costMove,
		Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1, %vdq"))
	s.Add(RU4, rtl.OpMove, FUN, NTNone, costMove,
		Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1(%%rip), %vdq"))

	// Long doubles are copied through an integer scratch register.
	s.Add(MLD5, rtl.OpMove, MLD5, NTNone, 4*costMove,
		Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movq\t%v1L, %vdq"),
		Emit(rtl.XMov, ArgDst, ArgSlot1, ArgNone, "movq\t%v1q, %vdL"),
		Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movq\t%v1H, %vdq"),
		Emit(rtl.XMov, ArgDst, ArgSlot1, ArgNone, "movq\t%v1q, %vdH"))
}

func addFloatMoveRules(s *Set) {
	for _, p := range [][2]NT{{RS3, MS3}, {RS4, MS4}} {
		reg, mem := p[0], p[1]
		tmpl := "mov" + floatSuffix(reg) + "\t%v1, %vd"
		s.Add(reg, rtl.OpMove, reg, NTNone, costMove, Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
		s.Add(reg, rtl.OpMove, mem, NTNone, costLoad, Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
		s.Add(mem, rtl.OpMove, reg, NTNone, costStore, Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, tmpl))
	}
	s.Add(RS3, rtl.OpMove, CS3, NTNone, costMove+costMove,
		Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movl\t$%v1F, %vdl"),
		Emit(rtl.XMovPregClass, ArgDst, ArgSlot1, ArgNone, "movd\t%v1l, %vd"))
	s.Add(RS4, rtl.OpMove, CS4, NTNone, costMove+costMove,
		Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movabsq\t$%v1F, %vdq"),
		Emit(rtl.XMovPregClass, ArgDst, ArgSlot1, ArgNone, "movq\t%v1q, %vd"))

	s.Add(RS4, rtl.OpMove, RS3, NTNone, costMove, Emit(rtl.XCvt, ArgDst, ArgSrc1, ArgNone, "cvtss2sd\t%v1, %vd"))
	s.Add(RS3, rtl.OpMove, RS4, NTNone, costMove, Emit(rtl.XCvt, ArgDst, ArgSrc1, ArgNone, "cvtsd2ss\t%v1, %vd"))

	for _, f := range []NT{RS3, RS4} {
		sfx := floatSuffix(f)
		// Integer to float. Unsigned 32-bit values are zero-extended and
		// converted as 64-bit.
		s.Add(f, rtl.OpMove, RI3, NTNone, costMove,
			Emit(rtl.XCvt, ArgDst, ArgSrc1, ArgNone, "cvtsi2"+sfx+"l\t%v1l, %vd"))
		s.Add(f, rtl.OpMove, RI4, NTNone, costMove,
			Emit(rtl.XCvt, ArgDst, ArgSrc1, ArgNone, "cvtsi2"+sfx+"q\t%v1q, %vd"))
		s.Add(f, rtl.OpMove, RU3, NTNone, 2*costMove,
			Emit(rtl.XMovz, ArgSlot1, ArgSrc1, ArgNone, "movl\t%v1l, %vdl"),
			Emit(rtl.XCvt, ArgDst, ArgSlot1, ArgNone, "cvtsi2"+sfx+"q\t%v1q, %vd"))
		// Unsigned 64-bit values with the top bit set are halved, keeping
		// the low bit for rounding, converted, and doubled by adding one to
		// the exponent. CL holds the top bit throughout.
		expShift, bits, xfer := "52", "q", "movq"
		if f == RS3 {
			expShift, bits, xfer = "23", "l", "movd"
		}
		s.Add(f, rtl.OpMove, RU4, NTNone, 8*costMove,
			Emit(rtl.XMov, ArgRCX, ArgSrc1, ArgNone, "movq\t%v1q, %vdq"),
			Emit(rtl.XShr, ArgRCX, ArgNone, ArgRCX, "shrq\t$63, %vdq"),
			Emit(rtl.XMov, ArgSlot1, ArgSrc1, ArgNone, "movq\t%v1q, %vdq"),
			Emit(rtl.XShr, ArgSlot1, ArgRCX, ArgSlot1, "shrq\t%v1b, %vdq"),
			Emit(rtl.XMov, ArgSlot2, ArgRCX, ArgNone, "movq\t%v1q, %vdq"),
			Emit(rtl.XBand, ArgSlot2, ArgSrc1, ArgSlot2, "andq\t%v1q, %vdq"),
			Emit(rtl.XBor, ArgSlot1, ArgSlot2, ArgSlot1, "orq\t%v1q, %vdq"),
			Emit(rtl.XCvt, ArgDst, ArgSlot1, ArgNone, "cvtsi2"+sfx+"q\t%v1q, %vd"),
			Emit(rtl.XMovPregClass, ArgSlot2, ArgDst, ArgNone, xfer+"\t%v1, %vd"+bits),
			Emit(rtl.XShl, ArgRCX, ArgNone, ArgRCX, "shlq\t$"+expShift+", %vdq"),
			Emit(rtl.XAdd, ArgSlot2, ArgRCX, ArgSlot2, "add"+bits+"\t%v1"+bits+", %vd"+bits),
			Emit(rtl.XMovPregClass, ArgDst, ArgSlot2, ArgNone, xfer+"\t%v1"+bits+", %vd"))

		// Float to integer, truncating.
		for size := 1; size <= 4; size++ {
			for _, fam := range intFamilies() {
				w := byte('l')
				if size == 4 || size == 3 && fam == FamRU {
					w = 'q'
				}
				s.Add(regOf(fam, size), rtl.OpMove, f, NTNone, costMove,
					Emit(rtl.XCvt, ArgDst, ArgSrc1, ArgNone, fmt.Sprintf("cvtt%s2si\t%%v1, %%vd%c", sfx, w)))
			}
		}
	}

	for _, p := range []struct {
		sse, gp NT
		tmpl    string
		back    string
	}{
		{RS4, RI4, "movq\t%v1q, %vd", "movq\t%v1, %vdq"},
		{RS4, RU4, "movq\t%v1q, %vd", "movq\t%v1, %vdq"},
		{RS3, RI3, "movd\t%v1l, %vd", "movd\t%v1, %vdl"},
		{RS3, RU3, "movd\t%v1l, %vd", "movd\t%v1, %vdl"},
	} {
		s.Add(p.sse, rtl.OpMovePregClass, p.gp, NTNone, costMove,
			Emit(rtl.XMovPregClass, ArgDst, ArgSrc1, ArgNone, p.tmpl))
		s.Add(p.gp, rtl.OpMovePregClass, p.sse, NTNone, costMove,
			Emit(rtl.XMovPregClass, ArgDst, ArgSrc1, ArgNone, p.back))
	}
}

func addPointerRules(s *Set) {
	for _, fam := range intFamilies() {
		s.Add(fam, rtl.OpIndirect, FamRP, NTNone, costLoad,
			Emit(rtl.XMovFromInd, ArgDst, ArgSrc1, ArgNone, "mov%s\t(%v1q), %vd"))
		s.Add(FamRP, rtl.OpMoveToPtr, FamRP, fam, costStore,
			Emit(rtl.XMovToInd, ArgDst, ArgSrc2, ArgNone, "mov%s\t%v1, (%vdq)"))
	}
	s.Add(FamRP, rtl.OpMoveToPtr, FamRP, FamCIimm, costStore,
		Emit(rtl.XMovToInd, ArgDst, ArgSrc2, ArgNone, "mov%s\t$%v1, (%vdq)"))

	for _, p := range [][2]NT{{RS3, RP3}, {RS4, RP4}} {
		sfx := floatSuffix(p[0])
		s.Add(p[0], rtl.OpIndirect, p[1], NTNone, costLoad,
			Emit(rtl.XMovFromInd, ArgDst, ArgSrc1, ArgNone, "mov"+sfx+"\t(%v1q), %vd"))
		s.Add(p[1], rtl.OpMoveToPtr, p[1], p[0], costStore,
			Emit(rtl.XMovToInd, ArgDst, ArgSrc2, ArgNone, "mov"+sfx+"\t%v1, (%vdq)"))
	}

	lea := Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1, %vdq")
	for n := MI1; n <= MS4; n++ {
		s.Add(RU4, rtl.OpAddressOf, n, NTNone, costMove, lea)
	}
	for _, n := range []NT{MPV, MLD5, MSA, STL} {
		s.Add(RU4, rtl.OpAddressOf, n, NTNone, costMove, lea)
	}
	s.Add(RU4, rtl.OpAddressOf, FUN, NTNone, costMove,
		Emit(rtl.XLea, ArgDst, ArgSrc1, ArgNone, "leaq\t%v1(%%rip), %vdq"))
}

// commutative emits "mov src1, dst; op src2, dst" and the mirrored forms.
func addCommutative(s *Set, op rtl.Op, xop rtl.Op, mnemonic string, cost int) {
	for _, fam := range intFamilies() {
		for size := 1; size <= 4; size++ {
			name := mnemonic + "%s"
			if xop == rtl.XMul && size == 1 {
				// imul has no byte form; the low byte of a word multiply is
				// the same.
				name = "imulw"
			}
			rr := ExpandTemplate(name+"\t%v1, %vd", size)
			cr := ExpandTemplate(name+"\t$%v1, %vd", size)
			if xop == rtl.XMul && size == 1 {
				rr, cr = "imulw\t%v1w, %vdw", "imulw\t$%v1, %vdw"
			}
			mov := ExpandTemplate("mov%s\t%v1, %vd", size)
			r, imm, m := Fin(fam, size), Fin(FamCIimm, size), Fin(memFamily(fam), size)

			s.Add(r, op, r, r, cost,
				Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, mov),
				Emit(xop, ArgDst, ArgSrc2, ArgDst, rr))
			s.Add(r, op, r, imm, cost,
				Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, mov),
				Emit(xop, ArgDst, ArgSrc2, ArgDst, cr))
			s.Add(r, op, imm, r, cost,
				Emit(rtl.XMov, ArgDst, ArgSrc2, ArgNone, mov),
				Emit(xop, ArgDst, ArgSrc1, ArgDst, cr))
			if !(xop == rtl.XMul && size == 1) {
				s.Add(r, op, r, m, cost+1,
					Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, mov),
					Emit(xop, ArgDst, ArgSrc2, ArgDst, rr))
			}
		}
	}
}

func addIntegerRules(s *Set) {
	addCommutative(s, rtl.OpAdd, rtl.XAdd, "add", costAdd)
	addCommutative(s, rtl.OpMul, rtl.XMul, "imul", costMul)
	addCommutative(s, rtl.OpBor, rtl.XBor, "or", costAdd)
	addCommutative(s, rtl.OpBand, rtl.XBand, "and", costAdd)
	addCommutative(s, rtl.OpXor, rtl.XXor, "xor", costAdd)

	mov := Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov%s\t%v1, %vd")
	for _, fam := range intFamilies() {
		s.Add(fam, rtl.OpSub, fam, fam, costAdd, mov,
			Emit(rtl.XSub, ArgDst, ArgSrc2, ArgDst, "sub%s\t%v1, %vd"))
		s.Add(fam, rtl.OpSub, fam, FamCIimm, costAdd, mov,
			Emit(rtl.XSub, ArgDst, ArgSrc2, ArgDst, "sub%s\t$%v1, %vd"))
		s.Add(fam, rtl.OpSub, fam, memFamily(fam), costAdd+1, mov,
			Emit(rtl.XSub, ArgDst, ArgSrc2, ArgDst, "sub%s\t%v1, %vd"))
		s.Add(fam, rtl.OpSub, FamCIimm, fam, costAdd,
			Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov%s\t$%v1, %vd"),
			Emit(rtl.XSub, ArgDst, ArgSrc2, ArgDst, "sub%s\t%v1, %vd"))

		s.Add(fam, rtl.OpBnot, fam, NTNone, 3, mov,
			Emit(rtl.XBnot, ArgDst, ArgDst, ArgNone, "not%s\t%vd"))
	}

	// Division goes through RDX:RAX. The sources decide signedness; the
	// result may be either family.
	for size := 2; size <= 4; size++ {
		ext := map[int]string{2: "cwtd", 3: "cltd", 4: "cqto"}[size]
		extOp := rtl.XCltd
		if size == 4 {
			extOp = rtl.XCqto
		}
		for _, fam := range intFamilies() {
			r := Fin(fam, size)
			for _, p := range []struct {
				op     rtl.Op
				result Arg
			}{{rtl.OpDiv, ArgRAX}, {rtl.OpMod, ArgRDX}} {
				toRAX := Emit(rtl.XMov, ArgRAX, ArgSrc1, ArgNone, ExpandTemplate("mov%s\t%v1, %vd", size))
				out := Emit(rtl.XMov, ArgDst, p.result, ArgNone, ExpandTemplate("mov%s\t%v1, %vd", size))
				for _, dstFam := range intFamilies() {
					dst := Fin(dstFam, size)
					if fam == FamRU {
						s.Add(dst, p.op, r, r, costDiv, toRAX,
							Emit(rtl.XXor, ArgRDX, ArgNone, ArgNone, "xorl\t%vdl, %vdl"),
							Emit(rtl.XDiv, ArgRAX, ArgSrc2, ArgRDX, ExpandTemplate("div%s\t%v1", size)),
							out)
						continue
					}
					s.Add(dst, p.op, r, r, costDiv, toRAX,
						Emit(extOp, ArgRDX, ArgRAX, ArgNone, ext),
						Emit(rtl.XIdiv, ArgRAX, ArgSrc2, ArgRDX, ExpandTemplate("idiv%s\t%v1", size)),
						out)
				}
			}
		}
	}

	// Byte division divides AX: the quotient lands in AL and the remainder
	// in AH.
	for _, fam := range intFamilies() {
		r := Fin(fam, 1)
		widen := Emit(rtl.XMovs, ArgRAX, ArgSrc1, ArgNone, "movsbw\t%v1b, %vdw")
		divide := Emit(rtl.XIdiv, ArgRAX, ArgSrc2, ArgNone, "idivb\t%v1b")
		if fam == FamRU {
			widen = Emit(rtl.XMovz, ArgRAX, ArgSrc1, ArgNone, "movzbw\t%v1b, %vdw")
			divide = Emit(rtl.XDiv, ArgRAX, ArgSrc2, ArgNone, "divb\t%v1b")
		}
		out := Emit(rtl.XMov, ArgDst, ArgRAX, ArgNone, "movb\t%v1b, %vdb")
		for _, dstFam := range intFamilies() {
			dst := Fin(dstFam, 1)
			s.Add(dst, rtl.OpDiv, r, r, costDiv, widen, divide, out)
			s.Add(dst, rtl.OpMod, r, r, costDiv, widen, divide,
				Emit(rtl.XShr, ArgRAX, ArgNone, ArgRAX, "shrw\t$8, %vdw"),
				out)
		}
	}

	// Shifts take a variable count in CL.
	for _, p := range []struct {
		op       rtl.Op
		xop      rtl.Op
		mnemonic string
	}{
		{rtl.OpBshl, rtl.XShl, "shl"},
		{rtl.OpBshr, rtl.XShr, "shr"},
		{rtl.OpAshr, rtl.XSar, "sar"},
	} {
		for _, fam := range intFamilies() {
			for size := 1; size <= 4; size++ {
				r := Fin(fam, size)
				shiftCL := ExpandTemplate(p.mnemonic+"%s\t%v1b, %vd", size)
				toDst := ExpandTemplate("mov%s\t%v1, %vd", size)
				for _, countFam := range intFamilies() {
					for csize := 1; csize <= 4; csize++ {
						s.Add(r, p.op, r, Fin(countFam, csize), costShift,
							Emit(rtl.XMov, ArgRCX, ArgSrc2, ArgNone, ExpandTemplate("mov%s\t%v1, %vd", csize)),
							Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, toDst),
							Emit(p.xop, ArgDst, ArgRCX, ArgDst, shiftCL))
					}
				}
				s.Add(r, p.op, r, CI1, costShift-1,
					Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, toDst),
					Emit(p.xop, ArgDst, ArgSrc2, ArgDst, ExpandTemplate(p.mnemonic+"%s\t$%v1b, %vd", size)))
			}
		}
	}
}

func addFloatRules(s *Set) {
	for _, p := range []struct {
		op   rtl.Op
		xop  rtl.Op
		name string
		cost int
	}{
		{rtl.OpAdd, rtl.XFadd, "add", costFAdd},
		{rtl.OpSub, rtl.XFsub, "sub", costFAdd},
		{rtl.OpMul, rtl.XFmul, "mul", costFMul},
		{rtl.OpDiv, rtl.XFdiv, "div", costFDiv},
	} {
		for _, f := range [][2]NT{{RS3, MS3}, {RS4, MS4}} {
			reg, mem := f[0], f[1]
			sfx := floatSuffix(reg)
			mov := Emit(rtl.XMov, ArgDst, ArgSrc1, ArgNone, "mov"+sfx+"\t%v1, %vd")
			s.Add(reg, p.op, reg, reg, p.cost, mov,
				Emit(p.xop, ArgDst, ArgSrc2, ArgDst, p.name+sfx+"\t%v1, %vd"))
			s.Add(reg, p.op, reg, mem, p.cost+1, mov,
				Emit(p.xop, ArgDst, ArgSrc2, ArgDst, p.name+sfx+"\t%v1, %vd"))
		}
	}
}

type condition struct {
	op       rtl.Op
	signed   string // setcc/jcc suffix for signed operands
	unsigned string // for unsigned and float operands
}

var conditions = []condition{
	{rtl.OpEq, "e", "e"},
	{rtl.OpNe, "ne", "ne"},
	{rtl.OpLt, "l", "b"},
	{rtl.OpGt, "g", "a"},
	{rtl.OpLe, "le", "be"},
	{rtl.OpGe, "ge", "ae"},
}

var ccBySuffix = map[string]NT{
	"e": CCEQ, "ne": CCNE, "l": CCLT, "g": CCGT, "le": CCLE, "ge": CCGE,
	"b": CCB, "a": CCA, "be": CCBE, "ae": CCAE,
}

var ccSuffix = map[NT]string{
	CCEQ: "e", CCNE: "ne", CCLT: "l", CCGT: "g", CCLE: "le", CCGE: "ge",
	CCB: "b", CCA: "a", CCBE: "be", CCAE: "ae",
}

var ccInverse = map[NT]NT{
	CCEQ: CCNE, CCNE: CCEQ, CCLT: CCGE, CCGE: CCLT, CCGT: CCLE, CCLE: CCGT,
	CCB: CCAE, CCAE: CCB, CCA: CCBE, CCBE: CCA,
}

var setOps = map[string]rtl.Op{
	"e": rtl.XSete, "ne": rtl.XSetne, "l": rtl.XSetlt, "g": rtl.XSetgt, "le": rtl.XSetle,
	"ge": rtl.XSetge, "b": rtl.XSetb, "a": rtl.XSeta, "be": rtl.XSetbe, "ae": rtl.XSetae,
}

var jumpOps = map[string]rtl.Op{
	"e": rtl.XJe, "ne": rtl.XJne, "l": rtl.XJlt, "g": rtl.XJgt, "le": rtl.XJle,
	"ge": rtl.XJge, "b": rtl.XJb, "a": rtl.XJa, "be": rtl.XJbe, "ae": rtl.XJae,
}

// Inverse returns the condition that holds exactly when cc does not.
func Inverse(cc NT) NT { return ccInverse[cc] }

// setValue materialises the flags as 0 or 1 in a destination of class dst.
func setValue(suffix string, dst NT) []MicroOp {
	ops := []MicroOp{Emit(setOps[suffix], ArgDst, ArgNone, ArgNone, "set"+suffix+"\t%vdb")}
	if size := dst.Size(); size > 1 {
		l := SizeLetter(size)
		ops = append(ops, Emit(rtl.XMovz, ArgDst, ArgDst, ArgNone, fmt.Sprintf("movzb%c\t%%v1b, %%vd%c", l, l)))
	}
	return ops
}

func valueClasses() []NT {
	return []NT{RI1, RI2, RI3, RI4, RU1, RU2, RU3, RU4}
}

func addComparisonRules(s *Set) {
	for _, c := range conditions {
		for _, fam := range intFamilies() {
			suffix := c.signed
			if fam == FamRU {
				suffix = c.unsigned
			}
			for size := 1; size <= 4; size++ {
				r, imm := Fin(fam, size), Fin(FamCIimm, size)
				cmpRR := Emit(rtl.XCmp, ArgNone, ArgSrc2, ArgSrc1, ExpandTemplate("cmp%s\t%v1, %v2", size))
				cmpRC := Emit(rtl.XCmp, ArgNone, ArgSrc2, ArgSrc1, ExpandTemplate("cmp%s\t$%v1, %v2", size))
				for _, dst := range valueClasses() {
					set := setValue(suffix, dst)
					s.Add(dst, c.op, r, r, costCmp, append([]MicroOp{cmpRR}, set...)...)
					s.Add(dst, c.op, r, imm, costCmp, append([]MicroOp{cmpRC}, set...)...)
				}
				s.Add(ccBySuffix[suffix], c.op, r, r, costJump, cmpRR)
				s.Add(ccBySuffix[suffix], c.op, r, imm, costJump, cmpRC)
			}
		}
		for _, f := range []NT{RS3, RS4} {
			comis := Emit(rtl.XComis, ArgNone, ArgSrc2, ArgSrc1, "comi"+floatSuffix(f)+"\t%v1, %v2")
			for _, dst := range valueClasses() {
				s.Add(dst, c.op, f, f, costCmp, append([]MicroOp{comis}, setValue(c.unsigned, dst)...)...)
			}
			s.Add(ccBySuffix[c.unsigned], c.op, f, f, costJump, comis)
		}
	}

	// Logical not and the non-short-circuit logical and/or of two values.
	for _, fam := range intFamilies() {
		for size := 1; size <= 4; size++ {
			r := Fin(fam, size)
			test := func(src Arg) MicroOp {
				return Emit(rtl.XCmpz, ArgNone, src, ArgNone, ExpandTemplate("cmp%s\t$0, %v1", size))
			}
			for _, dst := range valueClasses() {
				s.Add(dst, rtl.OpLnot, r, NTNone, costCmp, append([]MicroOp{test(ArgSrc1)}, setValue("e", dst)...)...)
				for _, p := range []struct {
					op  rtl.Op
					xop rtl.Op
					ins string
				}{{rtl.OpLand, rtl.XBand, "andb"}, {rtl.OpLor, rtl.XBor, "orb"}} {
					ops := []MicroOp{
						test(ArgSrc1),
						Emit(rtl.XSetne, ArgSlot1, ArgNone, ArgNone, "setne\t%vdb"),
						test(ArgSrc2),
						Emit(rtl.XSetne, ArgDst, ArgNone, ArgNone, "setne\t%vdb"),
						Emit(p.xop, ArgDst, ArgSlot1, ArgDst, p.ins+"\t%v1b, %vdb"),
					}
					if size := dst.Size(); size > 1 {
						l := SizeLetter(size)
						ops = append(ops, Emit(rtl.XMovz, ArgDst, ArgDst, ArgNone, fmt.Sprintf("movzb%c\t%%v1b, %%vd%c", l, l)))
					}
					s.Add(dst, p.op, r, r, 2*costCmp, ops...)
				}
			}
		}
	}
}

func addJumpRules(s *Set) {
	s.Add(NTNone, rtl.OpJmp, LAB, NTNone, 1, Emit(rtl.XJmp, ArgNone, ArgSrc1, ArgNone, "jmp\t%v1"))

	for _, fam := range intFamilies() {
		s.Add(NTNone, rtl.OpJz, fam, LAB, costJump,
			Emit(rtl.XCmpz, ArgNone, ArgSrc1, ArgNone, "cmp%s\t$0, %v1"),
			Emit(rtl.XJz, ArgNone, ArgSrc2, ArgNone, "jz\t%v1"))
		s.Add(NTNone, rtl.OpJnz, fam, LAB, costJump,
			Emit(rtl.XCmpz, ArgNone, ArgSrc1, ArgNone, "cmp%s\t$0, %v1"),
			Emit(rtl.XJnz, ArgNone, ArgSrc2, ArgNone, "jnz\t%v1"))
	}

	// A comparison merged into a conditional jump only sets the flags.
	for cc := CCEQ; cc <= CCAE; cc++ {
		taken := ccSuffix[cc]
		skip := ccSuffix[Inverse(cc)]
		s.Add(NTNone, rtl.OpJz, cc, LAB, 1,
			Emit(jumpOps[skip], ArgNone, ArgSrc2, ArgNone, "j"+skip+"\t%v1"))
		s.Add(NTNone, rtl.OpJnz, cc, LAB, 1,
			Emit(jumpOps[taken], ArgNone, ArgSrc2, ArgNone, "j"+taken+"\t%v1"))
	}
}

func addCallRules(s *Set) {
	ret := Emit(rtl.XRet, ArgNone, ArgNone, ArgNone, "ret")
	retRAX := Emit(rtl.XRet, ArgNone, ArgRAX, ArgNone, "ret")
	retXMM0 := Emit(rtl.XRet, ArgNone, ArgXMM0, ArgNone, "ret")
	s.Add(NTNone, rtl.OpReturn, NTNone, NTNone, 1, ret)
	for _, fam := range intFamilies() {
		s.Add(NTNone, rtl.OpReturn, fam, NTNone, costMove+1,
			Emit(rtl.XMov, ArgRAX, ArgSrc1, ArgNone, "mov%s\t%v1, %vd"), retRAX)
	}
	for size := 1; size <= 4; size++ {
		s.Add(NTNone, rtl.OpReturn, Fin(FamCI, size), NTNone, costMove+1,
			Emit(rtl.XMov, ArgRAX, ArgSrc1, ArgNone, constLoadTemplate(size)), retRAX)
	}
	for _, f := range []NT{RS3, RS4} {
		s.Add(NTNone, rtl.OpReturn, f, NTNone, costMove+1,
			Emit(rtl.XMov, ArgXMM0, ArgSrc1, ArgNone, "mov"+floatSuffix(f)+"\t%v1, %vd"), retXMM0)
	}
	s.Add(NTNone, rtl.OpReturn, MLD5, NTNone, costLoad+1,
		Emit(rtl.XMov, ArgNone, ArgSrc1, ArgNone, "fldt\t%v1"), ret)

	push := Emit(rtl.XPush, ArgNone, ArgSrc1, ArgNone, "pushq\t%v1q")
	s.Add(NTNone, rtl.OpArg, RI4, NTNone, costStore, push)
	s.Add(NTNone, rtl.OpArg, RU4, NTNone, costStore, push)
	s.Add(NTNone, rtl.OpArg, MI4, NTNone, costStore, push)
	s.Add(NTNone, rtl.OpArg, MU4, NTNone, costStore, push)
	s.Add(NTNone, rtl.OpArg, MPV, NTNone, costStore, push)
	s.Add(NTNone, rtl.OpArg, MS4, NTNone, costStore, push)
	s.Add(NTNone, rtl.OpArg, CI3, NTNone, costStore,
		Emit(rtl.XPush, ArgNone, ArgSrc1, ArgNone, "pushq\t$%v1l"))
	for _, f := range []NT{RS3, RS4} {
		s.Add(NTNone, rtl.OpArg, f, NTNone, 2*costStore,
			Emit(rtl.XStack, ArgNone, ArgNone, ArgNone, "subq\t$8, %%rsp"),
			Emit(rtl.XMov, ArgNone, ArgSrc1, ArgNone, "mov"+floatSuffix(f)+"\t%v1, (%%rsp)"))
	}
	s.Add(NTNone, rtl.OpArg, MLD5, NTNone, 2*costStore,
		Emit(rtl.XPush, ArgNone, ArgSrc1, ArgNone, "pushq\t%v1H"),
		Emit(rtl.XPush, ArgNone, ArgSrc1, ArgNone, "pushq\t%v1L"))

	s.Add(NTNone, rtl.OpArgStackPadding, NTNone, NTNone, 1,
		Emit(rtl.XStack, ArgNone, ArgNone, ArgNone, "subq\t$8, %%rsp"))
	s.Add(NTNone, rtl.OpAllocateStack, CI3, NTNone, 1,
		Emit(rtl.XStack, ArgNone, ArgSrc1, ArgNone, "subq\t$%v1q, %%rsp"))
	s.Add(NTNone, rtl.OpReleaseStack, CI3, NTNone, 1,
		Emit(rtl.XStack, ArgNone, ArgSrc1, ArgNone, "addq\t$%v1q, %%rsp"))

	s.Add(NTNone, rtl.OpCall, FUN, NTNone, costCall,
		Emit(rtl.XCall, ArgNone, ArgSrc1, ArgNone, "call\t%v1"))
	s.Add(NTNone, rtl.OpCall, RU4, NTNone, costCall,
		Emit(rtl.XCall, ArgNone, ArgSrc1, ArgNone, "call\t*%v1q"))
}
