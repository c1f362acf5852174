package selection

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
)

// node is one expression tree node. Leaves carry an operand, operation nodes
// an IR operation and up to two children.
type node struct {
	op   rtl.Op
	leaf *rtl.Operand
	// dst is the destination of the instruction the node came from. Only
	// the root's is written; merged subtrees get fresh registers.
	dst  *rtl.Operand
	typ  ctypes.Type
	kids [2]int
}

func (n *node) isLeaf() bool { return n.op == rtl.OpNone }

// tree is the expression tree of one instruction.
type tree struct {
	root   int
	instr  rtl.Instr
	merged bool
}

func valueType(in *rtl.Instr) ctypes.Type {
	if in.Dst != nil {
		return in.Dst.Type
	}
	if in.Src1 != nil {
		return in.Src1.Type
	}
	return nil
}

func (b *blockContext) add(n node) int {
	b.nodes = append(b.nodes, n)
	return len(b.nodes) - 1
}

func (b *blockContext) leaf(o *rtl.Operand) int {
	if o == nil {
		return -1
	}
	return b.add(node{op: rtl.OpNone, leaf: o, typ: o.Type, kids: [2]int{-1, -1}})
}

func (b *blockContext) build(in rtl.Instr) tree {
	kids := [2]int{b.leaf(in.Src1), b.leaf(in.Src2)}
	root := b.add(node{op: in.Op, dst: in.Dst, typ: valueType(&in), kids: kids})
	return tree{root: root, instr: in}
}

// leaves returns the leaf nodes under i, left to right.
func (b *blockContext) leaves(i int) []int {
	n := &b.nodes[i]
	if n.isLeaf() {
		return []int{i}
	}
	var out []int
	for _, k := range n.kids {
		if k >= 0 {
			out = append(out, b.leaves(k)...)
		}
	}
	return out
}

// reads returns the virtual registers the subtree at i reads and whether it
// reads memory.
func (b *blockContext) reads(i int) (map[int]bool, bool) {
	vregs := make(map[int]bool)
	memory := false
	for _, l := range b.leaves(i) {
		o := b.nodes[l].leaf
		switch {
		case o.Kind == rtl.VReg:
			vregs[o.VReg] = true
		case o.IsMemory():
			memory = true
		}
	}
	var walk func(int)
	walk = func(i int) {
		n := &b.nodes[i]
		if n.op == rtl.OpIndirect {
			memory = true
		}
		for _, k := range n.kids {
			if k >= 0 {
				walk(k)
			}
		}
	}
	walk(i)
	return vregs, memory
}

// simplify removes moves that only restate a type. A moved pointer to an
// aggregate hands its type down to the value it replaces. A root move of an
// operation becomes that operation writing the move's destination.
func (b *blockContext) simplify(i int, root bool) {
	n := &b.nodes[i]
	for _, k := range n.kids {
		if k >= 0 {
			b.simplify(k, false)
		}
	}
	n = &b.nodes[i]
	if n.op != rtl.OpMove || n.kids[0] < 0 {
		return
	}
	child := b.nodes[n.kids[0]]
	if !sameRepresentation(n.typ, child.typ) {
		return
	}
	if root {
		if child.isLeaf() || n.dst == nil || n.dst.IsMemory() {
			return
		}
		child.dst = n.dst
		child.typ = n.typ
		b.nodes[i] = child
		return
	}
	if isPointerToAggregate(n.typ) {
		child.typ = n.typ
		if child.isLeaf() {
			child.leaf = child.leaf.WithType(n.typ)
		}
	}
	b.nodes[i] = child
}

// fold evaluates operations on integer constants. A folded root becomes a
// move of the constant so the result still reaches its destination.
func (b *blockContext) fold(i int, root bool) {
	for _, k := range b.nodes[i].kids {
		if k >= 0 {
			b.fold(k, false)
		}
	}
	n := b.nodes[i]
	if n.isLeaf() || root && n.dst == nil {
		return
	}
	v, ok := b.evaluate(&n)
	if !ok {
		return
	}
	c := b.leaf(rtl.NewConst(v, n.typ))
	if root {
		b.nodes[i].op = rtl.OpMove
		b.nodes[i].kids = [2]int{c, -1}
		return
	}
	b.nodes[i] = b.nodes[c]
}

func (b *blockContext) constKid(k int) (int64, ctypes.Type, bool) {
	if k < 0 {
		return 0, nil, false
	}
	n := &b.nodes[k]
	if !n.isLeaf() || !n.leaf.IsConst() {
		return 0, nil, false
	}
	return n.leaf.Int, n.leaf.Type, true
}

func (b *blockContext) evaluate(n *node) (int64, bool) {
	if !ctypes.IsInteger(n.typ) {
		return 0, false
	}
	x, tx, ok := b.constKid(n.kids[0])
	if !ok {
		return 0, false
	}
	if !ctypes.IsInteger(tx) {
		tx = n.typ
	}
	x = truncate(x, tx)
	unary := n.kids[1] < 0
	var y int64
	if !unary {
		var ty ctypes.Type
		if y, ty, ok = b.constKid(n.kids[1]); !ok {
			return 0, false
		}
		if !ctypes.IsInteger(ty) {
			ty = tx
		}
		y = truncate(y, ty)
	}
	unsigned := ctypes.IsUnsigned(tx)

	var r int64
	switch {
	case unary:
		switch n.op {
		case rtl.OpMove:
			r = x
		case rtl.OpBnot:
			r = ^x
		case rtl.OpLnot:
			r = boolValue(x == 0)
		default:
			return 0, false
		}
	default:
		switch n.op {
		case rtl.OpAdd:
			r = x + y
		case rtl.OpSub:
			r = x - y
		case rtl.OpMul:
			r = x * y
		case rtl.OpDiv, rtl.OpMod:
			if y == 0 {
				return 0, false
			}
			r = divide(n.op, x, y, unsigned)
		case rtl.OpBor:
			r = x | y
		case rtl.OpBand:
			r = x & y
		case rtl.OpXor:
			r = x ^ y
		case rtl.OpBshl:
			r = x << uint(y&63)
		case rtl.OpBshr:
			r = int64(uint64(truncate(x, ctypes.IntOfSize(ctypes.Sizeof(tx), ctypes.Unsigned))) >> uint(y&63))
		case rtl.OpAshr:
			r = x >> uint(y&63)
		case rtl.OpLand:
			r = boolValue(x != 0 && y != 0)
		case rtl.OpLor:
			r = boolValue(x != 0 || y != 0)
		case rtl.OpEq, rtl.OpNe, rtl.OpLt, rtl.OpGt, rtl.OpLe, rtl.OpGe:
			r = boolValue(compare(n.op, x, y, unsigned))
		default:
			return 0, false
		}
	}
	return truncate(r, n.typ), true
}

func divide(op rtl.Op, x, y int64, unsigned bool) int64 {
	if unsigned {
		if op == rtl.OpDiv {
			return int64(uint64(x) / uint64(y))
		}
		return int64(uint64(x) % uint64(y))
	}
	if op == rtl.OpDiv {
		return x / y
	}
	return x % y
}

func compare(op rtl.Op, x, y int64, unsigned bool) bool {
	less := x < y
	if unsigned {
		less = uint64(x) < uint64(y)
	}
	switch op {
	case rtl.OpEq:
		return x == y
	case rtl.OpNe:
		return x != y
	case rtl.OpLt:
		return less
	case rtl.OpGt:
		return !less && x != y
	case rtl.OpLe:
		return less || x == y
	}
	return !less
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// truncate wraps v to the width and signedness of t.
func truncate(v int64, t ctypes.Type) int64 {
	size := ctypes.Sizeof(t)
	if size <= 0 || size >= 8 {
		return v
	}
	shift := uint(64 - 8*size)
	if ctypes.IsUnsigned(t) {
		return int64(uint64(v) << shift >> shift)
	}
	return v << shift >> shift
}

// format renders the subtree at i for debug output.
func (b *blockContext) format(i int) string {
	n := &b.nodes[i]
	if n.isLeaf() {
		return n.leaf.String()
	}
	var args []string
	for _, k := range n.kids {
		if k >= 0 {
			args = append(args, b.format(k))
		}
	}
	return fmt.Sprintf("(%s %s)", n.op, strings.Join(args, " "))
}
