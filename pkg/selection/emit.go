package selection

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/rules"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// selectTree tiles one tree and emits its machine instructions.
func (b *blockContext) selectTree(t *tree) {
	in := &t.instr
	tl := newTiling(b)
	tl.label(t.root, in)
	nt, c, ok := tl.cheapest(t.root)
	if !ok {
		rtl.Panicf("select", in, "no rule matches %s", b.format(t.root))
	}
	if ce := b.log.Check(zap.DebugLevel, "tile"); ce != nil {
		ce.Write(zap.String("tree", b.format(t.root)), zap.Int("cost", c.cost), zap.Stringer("class", nt))
	}

	b.label = in.Label
	tl.reduceRoot(t.root, c, in.Dst)
	if b.label != 0 {
		b.out.Append(labelledNop(b.label))
		b.label = 0
	}
}

func labelledNop(label int) rtl.Instr {
	in := rtl.New(rtl.OpNop, nil, nil, nil)
	in.Label = label
	return in
}

// reduceRoot emits the root rule writing dst. When dst is also a source the
// rule overwrites before its last read, the result goes through a temporary.
func (tl *tiling) reduceRoot(i int, c choice, dst *rtl.Operand) {
	n := &tl.b.nodes[i]
	srcs := tl.reduceKids(n, c)
	if dst != nil && dst.Kind == rtl.VReg {
		for k, arg := range []rules.Arg{rules.ArgSrc1, rules.ArgSrc2} {
			s := srcs[k]
			if s == nil || s.Kind != rtl.VReg || s.VReg != dst.VReg || !c.rule.Clobbers(arg) {
				continue
			}
			tmp := tl.b.fn.NewVReg(dst.Type)
			tl.apply(c.rule, tmp, srcs[0], srcs[1], n.typ)
			tl.b.selectInstr(rtl.New(rtl.OpMove, dst, tmp, nil))
			return
		}
	}
	tl.apply(c.rule, dst, srcs[0], srcs[1], n.typ)
}

// reduce emits the instructions producing class want at node i and returns
// the operand holding the result. Flags results return nil.
func (tl *tiling) reduce(i int, c choice, want rules.NT) *rtl.Operand {
	n := &tl.b.nodes[i]
	switch {
	case n.isLeaf():
		return tl.applyLeaf(c.rule, n.leaf, want)
	case c.from != rules.NTNone:
		inner := tl.reduce(i, tl.base[i][c.from], c.from)
		return tl.applyLeaf(c.rule, inner, want)
	}
	srcs := tl.reduceKids(n, c)
	var dst *rtl.Operand
	if c.rule.Dst.IsRegister() {
		dst = tl.b.fn.NewVReg(rules.ResultType(c.rule.Dst, n.typ))
	}
	tl.apply(c.rule, dst, srcs[0], srcs[1], n.typ)
	return dst
}

func (tl *tiling) reduceKids(n *node, c choice) [2]*rtl.Operand {
	var srcs [2]*rtl.Operand
	for k, kid := range n.kids {
		if kid < 0 {
			continue
		}
		want := c.kids[k]
		srcs[k] = tl.reduce(kid, tl.best[kid][want], want)
	}
	return srcs
}

func (tl *tiling) applyLeaf(r *rules.Rule, src *rtl.Operand, want rules.NT) *rtl.Operand {
	if len(r.Ops) == 0 {
		return src
	}
	dst := tl.b.fn.NewVReg(rules.ResultType(want, src.Type))
	tl.apply(r, dst, src, nil, src.Type)
	return dst
}

// apply emits the micro-operations of r. Scratch slots are fresh registers
// per application; fixed-register arguments use the live-range
// pseudo-registers so the allocator sees them.
func (tl *tiling) apply(r *rules.Rule, dst, src1, src2 *rtl.Operand, typ ctypes.Type) {
	tl.set.MarkUsed(r)
	if typ == nil || !ctypes.IsInteger(typ) && !ctypes.IsPointer(typ) && !ctypes.IsSSE(typ) {
		typ = ctypes.Long()
	}
	var slots [rules.Slots]*rtl.Operand
	resolve := func(a rules.Arg) *rtl.Operand {
		switch a {
		case rules.ArgDst:
			return dst
		case rules.ArgSrc1:
			return src1
		case rules.ArgSrc2:
			return src2
		case rules.ArgRAX:
			return rtl.NewVReg(x86.PseudoRAX, typ)
		case rules.ArgRCX:
			return rtl.NewVReg(x86.PseudoRCX, typ)
		case rules.ArgRDX:
			return rtl.NewVReg(x86.PseudoRDX, typ)
		case rules.ArgXMM0:
			return rtl.NewVReg(x86.PseudoXMM0, typ)
		}
		if a.IsSlot() {
			k := int(a - rules.ArgSlot1)
			if slots[k] == nil {
				slots[k] = tl.b.fn.NewVReg(ctypes.Long())
			}
			return slots[k]
		}
		return nil
	}
	for _, m := range r.Ops {
		in := rtl.New(m.Op, resolve(m.Dst), resolve(m.V1), resolve(m.V2))
		in.Template = m.Template
		tl.b.emit(in)
	}
}

// emit appends a selected instruction, giving it the pending label.
func (b *blockContext) emit(in rtl.Instr) {
	if b.label != 0 {
		in.Label = b.label
		b.label = 0
	}
	b.out.Append(in)
}
