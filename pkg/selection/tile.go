package selection

import (
	"sort"

	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/rules"
)

// choice is the cheapest way found to produce class nt at a node.
type choice struct {
	cost int
	rule *rules.Rule
	// kids are the classes the rule requires of the children.
	kids [2]rules.NT
	// from is set for a chain: a leaf rule applied to the node's own result
	// of class from.
	from rules.NT
}

func better(c, old choice) bool {
	if c.cost != old.cost {
		return c.cost < old.cost
	}
	return c.rule.Index < old.rule.Index
}

func offer(m map[rules.NT]choice, nt rules.NT, c choice) {
	if old, ok := m[nt]; !ok || better(c, old) {
		m[nt] = c
	}
}

// tiling is the cost graph of one tree. It is indexed by node and discarded
// once the tree is emitted.
type tiling struct {
	b    *blockContext
	set  *rules.Set
	best []map[rules.NT]choice
	// base holds the choices before chains, for emitting a chain's source.
	base []map[rules.NT]choice
}

func newTiling(b *blockContext) *tiling {
	return &tiling{
		b:    b,
		set:  b.set,
		best: make([]map[rules.NT]choice, len(b.nodes)),
		base: make([]map[rules.NT]choice, len(b.nodes)),
	}
}

// label computes the choices of every node under i, children first.
func (tl *tiling) label(i int, root *rtl.Instr) {
	n := &tl.b.nodes[i]
	m := make(map[rules.NT]choice)
	if n.isLeaf() {
		for _, c := range rules.Classes(n.leaf) {
			for _, r := range tl.set.LeavesFrom(c) {
				offer(m, r.Dst, choice{cost: r.Cost, rule: r})
			}
		}
		tl.best[i], tl.base[i] = m, m
		return
	}

	for _, k := range n.kids {
		if k >= 0 {
			tl.label(k, nil)
		}
	}
	for _, r := range tl.set.ForOp(n.op) {
		cost, ok := tl.match(n, r)
		if !ok {
			continue
		}
		if root != nil {
			if !rootDst(r.Dst, root.Dst) {
				continue
			}
		} else if !rules.Compatible(r.Dst, n.typ) {
			continue
		}
		offer(m, r.Dst, choice{cost: cost, rule: r, kids: [2]rules.NT{r.Src1, r.Src2}})
	}
	tl.base[i] = m
	if root != nil {
		tl.best[i] = m
		return
	}

	// One leaf rule may follow an operation below the root, to widen or
	// reinterpret its result.
	all := make(map[rules.NT]choice, len(m))
	for nt, c := range m {
		all[nt] = c
	}
	for _, from := range sortedClasses(m) {
		if !from.IsRegister() {
			continue
		}
		c := m[from]
		for _, r := range tl.set.LeavesFrom(from) {
			if r.Dst == r.Src1 {
				continue
			}
			offer(all, r.Dst, choice{cost: c.cost + r.Cost, rule: r, from: from})
		}
	}
	tl.best[i] = all
}

func (tl *tiling) match(n *node, r *rules.Rule) (int, bool) {
	cost := r.Cost
	for k, want := range [2]rules.NT{r.Src1, r.Src2} {
		kid := n.kids[k]
		switch {
		case want == rules.NTNone && kid < 0:
			continue
		case want == rules.NTNone || kid < 0:
			return 0, false
		}
		c, ok := tl.best[kid][want]
		if !ok {
			return 0, false
		}
		cost += c.cost
	}
	return cost, true
}

func rootDst(nt rules.NT, dst *rtl.Operand) bool {
	if dst == nil {
		return nt == rules.NTNone
	}
	return nt != rules.NTNone && rules.Matches(dst, nt)
}

// cheapest returns the root choice of least cost.
func (tl *tiling) cheapest(i int) (rules.NT, choice, bool) {
	var (
		bestNT rules.NT
		best   choice
		found  bool
	)
	for _, nt := range sortedClasses(tl.best[i]) {
		c := tl.best[i][nt]
		if !found || better(c, best) {
			bestNT, best, found = nt, c, true
		}
	}
	return bestNT, best, found
}

func sortedClasses(m map[rules.NT]choice) []rules.NT {
	out := make([]rules.NT, 0, len(m))
	for nt := range m {
		out = append(out, nt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
