package regalloc

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/rules"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

func scratch(o *rtl.Operand, k int) *rtl.Operand {
	if o.Class() == x86.ClassSSE {
		return rtl.NewPReg(x86.SSEScratch[k], o.Type)
	}
	return rtl.NewPReg(x86.IntScratch[k], o.Type)
}

func moveTemplate(o *rtl.Operand) string {
	if o.Class() == x86.ClassSSE {
		if o.Width() == 4 {
			return "movss\t%v1, %vd"
		}
		return "movsd\t%v1, %vd"
	}
	return rules.ExpandTemplate("mov%s\t%v1, %vd", rules.SizeIndex(int64(o.Width())))
}

func spillLoad(o *rtl.Operand, reg *rtl.Operand) rtl.Instr {
	in := rtl.New(rtl.XMov, reg, rtl.NewStack(o.StackIndex, o.Type), nil)
	in.Template = moveTemplate(o)
	return in
}

func spillStore(o *rtl.Operand, reg *rtl.Operand) rtl.Instr {
	in := rtl.New(rtl.XMov, rtl.NewStack(o.StackIndex, o.Type), reg, nil)
	in.Template = moveTemplate(o)
	return in
}

func isSpilled(o *rtl.Operand) bool {
	return o != nil && o.Kind == rtl.VReg && o.Spilled
}

func sameVReg(a, b *rtl.Operand) bool {
	return a != nil && b != nil && a.Kind == rtl.VReg && b.Kind == rtl.VReg && a.VReg == b.VReg
}

// InsertSpillCode rewrites every spilled operand to a scratch register: a
// source is loaded just before its instruction and a destination stored just
// after it. Source 1 uses the first scratch register and source 2 the second.
// A destination that is also a source shares that source's register so the
// instruction still updates in place. It returns the number of instructions
// added.
func InsertSpillCode(fn *rtl.Function, log *zap.Logger) int {
	if log == nil {
		log = zap.NewNop()
	}
	code := fn.Code
	added := 0
	for _, id := range code.IDs() {
		in := code.At(id)
		var loads, stores []rtl.Instr

		srcs := [2]**rtl.Operand{&in.Src1, &in.Src2}
		regs := [2]*rtl.Operand{}
		for k, p := range srcs {
			o := *p
			if !isSpilled(o) {
				continue
			}
			regs[k] = scratch(o, k)
			loads = append(loads, spillLoad(o, regs[k]))
		}

		if d := in.Dst; isSpilled(d) {
			switch {
			case in.Op == rtl.XMovToInd || in.Op == rtl.OpMoveToPtr:
				// The destination is the pointer, read and not written.
				if regs[1] != nil {
					rtl.Panicf("spill", in, "no scratch register left for the pointer")
				}
				regs[1] = scratch(d, 1)
				loads = append(loads, spillLoad(d, regs[1]))
				in.Dst = regs[1]
			case sameVReg(d, in.Src1):
				stores = append(stores, spillStore(d, regs[0]))
				in.Dst = regs[0]
			case sameVReg(d, in.Src2):
				stores = append(stores, spillStore(d, regs[1]))
				in.Dst = regs[1]
			default:
				if regs[1] != nil {
					rtl.Panicf("spill", in, "destination and both sources spilled")
				}
				reg := scratch(d, 1)
				stores = append(stores, spillStore(d, reg))
				in.Dst = reg
			}
		}
		for k, p := range srcs {
			if regs[k] != nil && isSpilled(*p) {
				*p = regs[k]
			}
		}

		if len(loads) == 0 && len(stores) == 0 {
			continue
		}
		if in.Label != 0 && len(loads) > 0 {
			loads[0].Label = in.Label
			in.Label = 0
		}
		for _, l := range loads {
			code.InsertBefore(id, l)
		}
		at := id
		for _, s := range stores {
			at = code.InsertAfter(at, s)
		}
		added += len(loads) + len(stores)
		log.Debug("spill code", zap.String("instr", rtl.FormatInstr(code.At(id))),
			zap.Int("loads", len(loads)), zap.Int("stores", len(stores)))
	}
	return added
}
